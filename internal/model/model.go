package model

import (
	"time"

	"github.com/shopspring/decimal"

	"lv-settle/internal/types"
)

// LedgerEntry is one debit-or-credit leg of a double-entry posting.
// Entries are append-only: never updated, never deleted.
type LedgerEntry struct {
	ID            string          `json:"id"`
	AccountCode   string          `json:"account_code"`
	EntityID      string          `json:"entity_id"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	Currency      string          `json:"currency"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	PammFundID    string          `json:"pamm_fund_id,omitempty"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Wallet is the per-user per-currency cash balance. Balance and Locked are
// mutated only via atomic increments.
type Wallet struct {
	UserID    string          `json:"user_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Locked    decimal.Decimal `json:"locked"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type WalletTransaction struct {
	ID          string                  `json:"id"`
	UserID      string                  `json:"user_id"`
	Currency    string                  `json:"currency"`
	Type        types.TransactionType   `json:"type"`
	Amount      decimal.Decimal         `json:"amount"`
	Status      types.TransactionStatus `json:"status"`
	ReferenceID string                  `json:"reference_id,omitempty"`
	Description string                  `json:"description,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// TradingAccount is a sub-balance under a user. Only live and pamm accounts
// ever touch the ledger or wallet; demo is fully isolated.
type TradingAccount struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Mode      types.AccountMode `json:"mode"`
	Name      string            `json:"name"`
	Balance   decimal.Decimal   `json:"balance"`
	IsActive  bool              `json:"is_active"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Position mutates in place until terminal. Volume + ClosedVolume is
// invariant across partial closes.
type Position struct {
	ID           string             `json:"id"`
	UserID       string             `json:"user_id"`
	AccountID    string             `json:"account_id"`
	Symbol       string             `json:"symbol"`
	Side         types.PositionSide `json:"side"`
	Volume       decimal.Decimal    `json:"volume"`
	ClosedVolume decimal.Decimal    `json:"closed_volume"`
	OpenPrice    decimal.Decimal    `json:"open_price"`
	ClosePrice   decimal.Decimal    `json:"close_price"`
	Pnl          decimal.Decimal    `json:"pnl"`
	OpenedAt     time.Time          `json:"opened_at"`
	ClosedAt     *time.Time         `json:"closed_at,omitempty"`
}

// Closed reports whether the position reached its terminal state.
func (p *Position) Closed() bool {
	return p.ClosedAt != nil
}

type PammFund struct {
	ID                    string           `json:"id"`
	UserID                string           `json:"user_id"`
	AccountID             string           `json:"account_id"`
	Name                  string           `json:"name"`
	CurrentDeposit        decimal.Decimal  `json:"current_deposit"`
	PerformanceFeePercent decimal.Decimal  `json:"performance_fee_percent"`
	AllocationPercent     decimal.Decimal  `json:"allocation_percent"`
	Status                types.FundStatus `json:"status"`
	CreatedAt             time.Time        `json:"created_at"`
}

type PammAllocation struct {
	ID               string                 `json:"id"`
	FundID           string                 `json:"fund_id"`
	FollowerID       string                 `json:"follower_id"`
	ManagerID        string                 `json:"manager_id"`
	AllocatedBalance decimal.Decimal        `json:"allocated_balance"`
	RealizedPnl      decimal.Decimal        `json:"realized_pnl"`
	Status           types.AllocationStatus `json:"status"`
	CreatedAt        time.Time              `json:"created_at"`
	ClosedAt         *time.Time             `json:"closed_at,omitempty"`
}

// PammTrade is the distribution history row for one closed fund trade.
type PammTrade struct {
	ID            string          `json:"id"`
	FundID        string          `json:"fund_id"`
	PositionID    string          `json:"position_id"`
	Pnl           decimal.Decimal `json:"pnl"`
	Fee           decimal.Decimal `json:"fee"`
	DistributedAt time.Time       `json:"distributed_at"`
}

// IBProfile is one node of the referral forest. A nil ParentID marks a root
// (level 1). RatePerLot overrides the level-indexed default when set.
type IBProfile struct {
	UserID     string           `json:"user_id"`
	ParentID   string           `json:"parent_id,omitempty"`
	RatePerLot *decimal.Decimal `json:"rate_per_lot,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

type IBCommission struct {
	ID           string                 `json:"id"`
	IBID         string                 `json:"ib_id"`
	TradeID      string                 `json:"trade_id"`
	ClientUserID string                 `json:"client_user_id,omitempty"`
	Volume       decimal.Decimal        `json:"volume"`
	RatePerLot   decimal.Decimal        `json:"rate_per_lot"`
	Amount       decimal.Decimal        `json:"amount"`
	Status       types.CommissionStatus `json:"status"`
	PayoutID     string                 `json:"payout_id,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

type IBPayout struct {
	ID          string          `json:"id"`
	IBID        string          `json:"ib_id"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	RequestedAt time.Time       `json:"requested_at"`
}

// OutboxItem is a pending secondary effect of a settlement: attempted once
// synchronously after commit, retried by the outbox worker until done or the
// attempt budget is spent.
type OutboxItem struct {
	ID        string             `json:"id"`
	Kind      types.OutboxKind   `json:"kind"`
	Payload   []byte             `json:"payload"`
	Status    types.OutboxStatus `json:"status"`
	Attempts  int                `json:"attempts"`
	LastError string             `json:"last_error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}
