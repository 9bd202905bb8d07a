// Package store defines the persistence interface for the settlement core.
// PostgreSQL is the source of truth; the in-memory implementation backs the
// test suite.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"lv-settle/internal/model"
	"lv-settle/internal/types"
)

// LedgerSum is the aggregated debit/credit of one account code for one
// entity.
type LedgerSum struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// Store is the persistence interface. Multi-document money movement runs
// inside Atomic; everything else relies on per-row atomic statements.
type Store interface {
	// Atomic runs fn against a transactional view of the store. A non-nil
	// error aborts every write made inside fn.
	Atomic(ctx context.Context, fn func(Store) error) error

	// --- Immutable journal ---

	InsertLedgerEntries(ctx context.Context, entries []model.LedgerEntry) error
	// SumLedger aggregates debit and credit for one entity/code pair up to
	// the optional cutoff. An empty currency matches every currency.
	SumLedger(ctx context.Context, entityID, accountCode, currency string, asOf *time.Time) (debit, credit decimal.Decimal, err error)
	// SumLedgerWindow aggregates debit and credit inside [from, to].
	SumLedgerWindow(ctx context.Context, entityID, accountCode string, from, to time.Time) (debit, credit decimal.Decimal, err error)
	// ListLedgerSums aggregates per account code over every code the entity
	// has touched.
	ListLedgerSums(ctx context.Context, entityID string, asOf *time.Time) ([]LedgerSum, error)

	// --- Wallets ---

	GetWallet(ctx context.Context, userID, currency string) (*model.Wallet, error)
	// EnsureWallet is an idempotent get-or-insert of a zero-balance row.
	EnsureWallet(ctx context.Context, userID, currency string) (*model.Wallet, error)
	// IncrementWallet applies balance and locked deltas as one atomic
	// in-place update; the row is never read-modify-written.
	IncrementWallet(ctx context.Context, userID, currency string, balanceDelta, lockedDelta decimal.Decimal) error
	// SettleWallet applies a trade settlement delta to the balance. Unlike
	// IncrementWallet it carries no floor: a loss larger than the balance
	// takes the wallet negative.
	SettleWallet(ctx context.Context, userID, currency string, delta decimal.Decimal) error
	ListWallets(ctx context.Context) ([]model.Wallet, error)

	InsertWalletTransaction(ctx context.Context, wt model.WalletTransaction) error
	GetWalletTransaction(ctx context.Context, id string) (*model.WalletTransaction, error)
	// CompleteWalletTransaction flips pending to completed exactly once and
	// reports whether this call won the transition.
	CompleteWalletTransaction(ctx context.Context, id string, completedAt time.Time) (bool, error)
	// FailWalletTransaction flips pending to failed exactly once.
	FailWalletTransaction(ctx context.Context, id, reason string) (bool, error)
	ListWalletTransactions(ctx context.Context, userID, currency string, limit int) ([]model.WalletTransaction, error)

	// --- Trading accounts ---

	InsertTradingAccount(ctx context.Context, acc model.TradingAccount) error
	GetTradingAccount(ctx context.Context, id string) (*model.TradingAccount, error)
	ListTradingAccounts(ctx context.Context, userID string) ([]model.TradingAccount, error)
	SetActiveTradingAccount(ctx context.Context, userID, accountID string) error
	UpdateTradingAccountName(ctx context.Context, accountID, name string) error
	IncrementTradingAccountBalance(ctx context.Context, accountID string, delta decimal.Decimal) error

	// --- Positions ---

	InsertPosition(ctx context.Context, p model.Position) error
	GetPosition(ctx context.Context, id string) (*model.Position, error)
	ListPositions(ctx context.Context, userID string, openOnly bool) ([]model.Position, error)
	// PartialClosePosition moves v from volume to closed_volume while the
	// position stays open.
	PartialClosePosition(ctx context.Context, id string, v decimal.Decimal) error
	// MarkPositionClosed writes the terminal state, guarded on the position
	// still being open; reports whether this call won the close.
	MarkPositionClosed(ctx context.Context, id string, closePrice, pnl decimal.Decimal, closedAt time.Time) (bool, error)

	// --- PAMM ---

	InsertPammFund(ctx context.Context, f model.PammFund) error
	GetPammFund(ctx context.Context, id string) (*model.PammFund, error)
	GetPammFundByManager(ctx context.Context, managerID string) (*model.PammFund, error)
	GetPammFundByAccount(ctx context.Context, accountID string) (*model.PammFund, error)
	IncrementPammFundDeposit(ctx context.Context, id string, delta decimal.Decimal) error

	InsertPammAllocation(ctx context.Context, a model.PammAllocation) error
	GetPammAllocation(ctx context.Context, id string) (*model.PammAllocation, error)
	GetActivePammAllocation(ctx context.Context, fundID, followerID string) (*model.PammAllocation, error)
	ListActivePammAllocations(ctx context.Context, fundID string) ([]model.PammAllocation, error)
	AddPammAllocationPnl(ctx context.Context, id string, delta decimal.Decimal) error
	// ClosePammAllocation flips active to closed exactly once.
	ClosePammAllocation(ctx context.Context, id string, closedAt time.Time) (bool, error)
	// InsertPammTrade is idempotent per position; it reports whether this
	// call actually inserted the row.
	InsertPammTrade(ctx context.Context, t model.PammTrade) (bool, error)

	// --- IB ---

	UpsertIBProfile(ctx context.Context, p model.IBProfile) error
	GetIBProfile(ctx context.Context, userID string) (*model.IBProfile, error)
	// InsertIBCommission is idempotent per (ib, trade) pair; it reports
	// whether this call actually inserted the row.
	InsertIBCommission(ctx context.Context, c model.IBCommission) (bool, error)
	ListIBCommissions(ctx context.Context, ibID string, status types.CommissionStatus, limit int) ([]model.IBCommission, error)
	SumPendingIBCommissions(ctx context.Context, ibID string) (decimal.Decimal, error)
	// MarkIBCommissionsPaid bulk-flips every pending commission of one IB to
	// paid, stamping the payout id; returns the number of rows flipped.
	MarkIBCommissionsPaid(ctx context.Context, ibID, payoutID string) (int64, error)
	InsertIBPayout(ctx context.Context, p model.IBPayout) error

	// --- Settlement outbox ---

	EnqueueOutbox(ctx context.Context, item model.OutboxItem) error
	// ClaimOutbox picks the oldest pending item below the attempt cap and
	// increments its attempt counter; nil when the queue is drained.
	ClaimOutbox(ctx context.Context, maxAttempts int) (*model.OutboxItem, error)
	MarkOutboxDone(ctx context.Context, id string) error
	// MarkOutboxError records the failure; the item stays pending until its
	// attempts reach maxAttempts, then flips to failed.
	MarkOutboxError(ctx context.Context, id, lastError string, maxAttempts int) error

	// --- Risk ---

	IsUserBlocked(ctx context.Context, userID string) (bool, error)
	BlockUser(ctx context.Context, userID, reason string) error
}
