// Package ledger is the double-entry journal: an append-only record of every
// money movement, posted in balanced batches against the chart of accounts.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lv-settle/internal/apperr"
	"lv-settle/internal/chart"
	"lv-settle/internal/metrics"
	"lv-settle/internal/model"
	"lv-settle/internal/store"
	"lv-settle/internal/types"
)

// SystemEntity owns the house-side accounts (Cash/Bank, Trading P&L,
// Commission Income/Paid, Client Funds, PAMM Fees).
const SystemEntity = "system"

// balanceTolerance is the largest debit/credit mismatch a posting may carry.
var balanceTolerance = decimal.NewFromFloat(0.001)

type Service struct {
	store store.Store
	log   zerolog.Logger
}

func NewService(st store.Store, log zerolog.Logger) *Service {
	return &Service{store: st, log: log.With().Str("component", "ledger").Logger()}
}

// WithStore rebinds the service to st, so callers inside an Atomic block can
// post journal entries through the same transaction.
func (s *Service) WithStore(st store.Store) *Service {
	return &Service{store: st, log: s.log}
}

// Post validates and inserts a balanced batch of journal legs. All legs share
// one timestamp; each gets a generated id. Returns the ids in input order.
func (s *Service) Post(ctx context.Context, entries []model.LedgerEntry) ([]string, error) {
	if len(entries) < 2 {
		return nil, apperr.Validation("journal posting needs at least 2 legs, got %d", len(entries))
	}

	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	for i := range entries {
		e := &entries[i]
		if !chart.Valid(e.AccountCode) {
			return nil, apperr.Validation("unknown account code %q", e.AccountCode)
		}
		if e.Debit.IsNegative() || e.Credit.IsNegative() {
			return nil, apperr.Validation("negative amount on account %s", e.AccountCode)
		}
		if e.Debit.IsPositive() && e.Credit.IsPositive() {
			return nil, apperr.Validation("leg on account %s sets both debit and credit", e.AccountCode)
		}
		if e.Currency == "" {
			return nil, apperr.Validation("leg on account %s has no currency", e.AccountCode)
		}
		totalDebit = totalDebit.Add(e.Debit)
		totalCredit = totalCredit.Add(e.Credit)
	}
	if totalDebit.Sub(totalCredit).Abs().Cmp(balanceTolerance) > 0 {
		return nil, apperr.Validation("journal entries unbalanced: debit %s vs credit %s",
			totalDebit.StringFixed(2), totalCredit.StringFixed(2))
	}

	now := time.Now().UTC()
	ids := make([]string, len(entries))
	for i := range entries {
		entries[i].ID = uuid.New().String()
		entries[i].CreatedAt = now
		ids[i] = entries[i].ID
	}

	err := s.store.Atomic(ctx, func(st store.Store) error {
		return st.InsertLedgerEntries(ctx, entries)
	})
	if err != nil {
		return nil, err
	}
	metrics.LedgerPostings.WithLabelValues(entries[0].ReferenceType).Inc()
	s.log.Debug().Int("legs", len(entries)).
		Str("reference_type", entries[0].ReferenceType).
		Str("reference_id", entries[0].ReferenceID).
		Msg("journal posted")
	return ids, nil
}

func leg(code, entityID string, debit, credit decimal.Decimal) model.LedgerEntry {
	return model.LedgerEntry{
		AccountCode: code,
		EntityID:    entityID,
		Debit:       debit,
		Credit:      credit,
	}
}

func (s *Service) postPair(ctx context.Context, debitLeg, creditLeg model.LedgerEntry,
	currency, refType, refID, fundID, desc string) ([]string, error) {
	pair := []model.LedgerEntry{debitLeg, creditLeg}
	for i := range pair {
		pair[i].Currency = currency
		pair[i].ReferenceType = refType
		pair[i].ReferenceID = refID
		pair[i].PammFundID = fundID
		pair[i].Description = desc
	}
	return s.Post(ctx, pair)
}

// RecordDeposit books client money arriving: Cash/Bank against the user's
// wallet liability.
func (s *Service) RecordDeposit(ctx context.Context, userID string, amount decimal.Decimal, currency, refID string) ([]string, error) {
	return s.postPair(ctx,
		leg(chart.CashBank, SystemEntity, amount, decimal.Zero),
		leg(chart.ClientWallet, userID, decimal.Zero, amount),
		currency, types.RefDeposit, refID, "", "client deposit")
}

// RecordWithdrawal books client money leaving.
func (s *Service) RecordWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, currency, refID string) ([]string, error) {
	return s.postPair(ctx,
		leg(chart.ClientWallet, userID, amount, decimal.Zero),
		leg(chart.CashBank, SystemEntity, decimal.Zero, amount),
		currency, types.RefWithdrawal, refID, "", "client withdrawal")
}

// RecordTransfer moves wallet liability between two users.
func (s *Service) RecordTransfer(ctx context.Context, fromUserID, toUserID string, amount decimal.Decimal, currency, refID string) ([]string, error) {
	return s.postPair(ctx,
		leg(chart.ClientWallet, fromUserID, amount, decimal.Zero),
		leg(chart.ClientWallet, toUserID, decimal.Zero, amount),
		currency, types.RefTransfer, refID, "", "internal transfer")
}

// RecordAdminCredit books a back-office top-up of a user wallet.
func (s *Service) RecordAdminCredit(ctx context.Context, userID string, amount decimal.Decimal, currency, refID string) ([]string, error) {
	return s.postPair(ctx,
		leg(chart.CashBank, SystemEntity, amount, decimal.Zero),
		leg(chart.ClientWallet, userID, decimal.Zero, amount),
		currency, types.RefAdminCredit, refID, "", "admin credit")
}

// RecordTradePnl books realized trading P&L; the sign of pnl decides the
// direction. Zero is a no-op.
func (s *Service) RecordTradePnl(ctx context.Context, userID string, pnl decimal.Decimal, currency, refID string) ([]string, error) {
	if pnl.IsZero() {
		return nil, nil
	}
	// The P&L leg carries the user's entity id so GetPnlForPeriod can
	// aggregate realized P&L per user.
	amount := pnl.Abs()
	if pnl.IsPositive() {
		return s.postPair(ctx,
			leg(chart.TradingPnl, userID, amount, decimal.Zero),
			leg(chart.ClientWallet, userID, decimal.Zero, amount),
			currency, types.RefTrade, refID, "", "trading profit")
	}
	return s.postPair(ctx,
		leg(chart.ClientWallet, userID, amount, decimal.Zero),
		leg(chart.TradingPnl, userID, decimal.Zero, amount),
		currency, types.RefTrade, refID, "", "trading loss")
}

// RecordCommissionEarned accrues an IB commission as a receivable.
func (s *Service) RecordCommissionEarned(ctx context.Context, ibID string, amount decimal.Decimal, currency, refID string) ([]string, error) {
	return s.postPair(ctx,
		leg(chart.IBReceivables, ibID, amount, decimal.Zero),
		leg(chart.CommissionIncome, SystemEntity, decimal.Zero, amount),
		currency, types.RefIBCommission, refID, "", "ib commission earned")
}

// RecordCommissionPaid settles an IB's receivable on payout.
func (s *Service) RecordCommissionPaid(ctx context.Context, ibID string, amount decimal.Decimal, currency, refID string) ([]string, error) {
	return s.postPair(ctx,
		leg(chart.CommissionPaid, SystemEntity, amount, decimal.Zero),
		leg(chart.IBReceivables, ibID, decimal.Zero, amount),
		currency, types.RefIBPayout, refID, "", "ib commission paid")
}

// RecordPammAllocation moves investor wallet money into the pooled client
// funds account.
func (s *Service) RecordPammAllocation(ctx context.Context, investorID string, amount decimal.Decimal, currency, fundID, refID string) ([]string, error) {
	return s.postPair(ctx,
		leg(chart.ClientWallet, investorID, amount, decimal.Zero),
		leg(chart.ClientFunds, SystemEntity, decimal.Zero, amount),
		currency, types.RefPammAllocation, refID, fundID, "pamm allocation")
}

// RecordPammWithdrawal returns pooled client funds to an investor wallet.
func (s *Service) RecordPammWithdrawal(ctx context.Context, investorID string, amount decimal.Decimal, currency, fundID, refID string) ([]string, error) {
	return s.postPair(ctx,
		leg(chart.ClientFunds, SystemEntity, amount, decimal.Zero),
		leg(chart.ClientWallet, investorID, decimal.Zero, amount),
		currency, types.RefPammWithdrawal, refID, fundID, "pamm withdrawal")
}

// RecordPammFee books the manager's performance fee.
func (s *Service) RecordPammFee(ctx context.Context, managerID string, amount decimal.Decimal, currency, fundID, refID string) ([]string, error) {
	return s.postPair(ctx,
		leg(chart.PammFees, SystemEntity, amount, decimal.Zero),
		leg(chart.ClientWallet, managerID, decimal.Zero, amount),
		currency, types.RefPammFee, refID, fundID, "pamm performance fee")
}

// RecordPammDistribution books one investor's share of fund P&L; the sign of
// share decides the direction. Zero is a no-op.
func (s *Service) RecordPammDistribution(ctx context.Context, investorID string, share decimal.Decimal, currency, fundID, refID string) ([]string, error) {
	if share.IsZero() {
		return nil, nil
	}
	amount := share.Abs()
	if share.IsPositive() {
		return s.postPair(ctx,
			leg(chart.ClientFunds, SystemEntity, amount, decimal.Zero),
			leg(chart.ClientWallet, investorID, decimal.Zero, amount),
			currency, types.RefPammDistribution, refID, fundID, "pamm distribution")
	}
	return s.postPair(ctx,
		leg(chart.ClientWallet, investorID, amount, decimal.Zero),
		leg(chart.ClientFunds, SystemEntity, decimal.Zero, amount),
		currency, types.RefPammDistribution, refID, fundID, "pamm distribution")
}

// Balance is one entity/account aggregate signed by the account's normal
// side.
type Balance struct {
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Balance     decimal.Decimal `json:"balance"`
}

// GetBalance returns debit−credit for debit-normal codes and credit−debit
// otherwise, over all entries up to the optional cutoff.
func (s *Service) GetBalance(ctx context.Context, entityID, accountCode string, asOf *time.Time) (decimal.Decimal, error) {
	return s.GetCurrencyBalance(ctx, entityID, accountCode, "", asOf)
}

// GetCurrencyBalance is GetBalance restricted to entries in one currency.
// Wallets are per (user, currency), so comparing a wallet against the
// journal needs this scoped view.
func (s *Service) GetCurrencyBalance(ctx context.Context, entityID, accountCode, currency string, asOf *time.Time) (decimal.Decimal, error) {
	if !chart.Valid(accountCode) {
		return decimal.Zero, apperr.Validation("unknown account code %q", accountCode)
	}
	debit, credit, err := s.store.SumLedger(ctx, entityID, accountCode, currency, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	if chart.IsDebitNormal(accountCode) {
		return debit.Sub(credit), nil
	}
	return credit.Sub(debit), nil
}

// GetBalances aggregates every account code the entity has touched.
func (s *Service) GetBalances(ctx context.Context, entityID string, asOf *time.Time) ([]Balance, error) {
	sums, err := s.store.ListLedgerSums(ctx, entityID, asOf)
	if err != nil {
		return nil, err
	}
	out := make([]Balance, 0, len(sums))
	for _, ls := range sums {
		b := Balance{AccountCode: ls.AccountCode, AccountName: chart.Name(ls.AccountCode)}
		if chart.IsDebitNormal(ls.AccountCode) {
			b.Balance = ls.Debit.Sub(ls.Credit)
		} else {
			b.Balance = ls.Credit.Sub(ls.Debit)
		}
		out = append(out, b)
	}
	return out, nil
}

// GetPnlForPeriod sums realized trading P&L (credit−debit on the Trading P&L
// account) inside [from, to]. Open positions are never marked to market, so
// unrealized P&L is always zero here.
func (s *Service) GetPnlForPeriod(ctx context.Context, entityID string, from, to time.Time) (decimal.Decimal, error) {
	debit, credit, err := s.store.SumLedgerWindow(ctx, entityID, chart.TradingPnl, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return credit.Sub(debit), nil
}
