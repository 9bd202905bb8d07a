// Package pamm implements managed funds: investors allocate wallet money to
// a manager's fund, the manager trades it on a dedicated pamm account, and
// realized P&L is distributed proportionally to capital, less the manager's
// performance fee on profits.
package pamm

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lv-settle/internal/accounts"
	"lv-settle/internal/apperr"
	"lv-settle/internal/ib"
	"lv-settle/internal/ledger"
	"lv-settle/internal/metrics"
	"lv-settle/internal/model"
	"lv-settle/internal/notify"
	"lv-settle/internal/store"
	"lv-settle/internal/types"
)

// defaultCascadeVolume stands in when a distributed trade carries no volume.
var defaultCascadeVolume = decimal.NewFromFloat(0.01)

type Service struct {
	store    store.Store
	ledger   *ledger.Service
	accounts *accounts.Service
	ib       *ib.Service
	notifier notify.Notifier
	log      zerolog.Logger
}

func NewService(st store.Store, lg *ledger.Service, acc *accounts.Service, ibSvc *ib.Service, n notify.Notifier, log zerolog.Logger) *Service {
	if n == nil {
		n = notify.Discard{}
	}
	return &Service{
		store:    st,
		ledger:   lg,
		accounts: acc,
		ib:       ibSvc,
		notifier: n,
		log:      log.With().Str("component", "pamm").Logger(),
	}
}

// CreateFund opens a fund and its dedicated pamm trading account. One active
// fund per manager.
func (s *Service) CreateFund(ctx context.Context, managerID, name string, feePercent, allocationPercent decimal.Decimal) (*model.PammFund, error) {
	if name == "" {
		return nil, apperr.Validation("fund name is required")
	}
	if feePercent.IsNegative() || feePercent.Cmp(hundred) > 0 {
		return nil, apperr.Validation("performance fee must be between 0 and 100")
	}
	if allocationPercent.IsNegative() || allocationPercent.Cmp(hundred) > 0 {
		return nil, apperr.Validation("allocation percent must be between 0 and 100")
	}
	existing, err := s.store.GetPammFundByManager(ctx, managerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("manager %s already runs fund %s", managerID, existing.ID)
	}

	acc, err := s.accounts.Create(ctx, managerID, types.AccountModePamm, name)
	if err != nil {
		return nil, err
	}
	fund := model.PammFund{
		ID:                    uuid.New().String(),
		UserID:                managerID,
		AccountID:             acc.ID,
		Name:                  name,
		CurrentDeposit:        decimal.Zero,
		PerformanceFeePercent: feePercent,
		AllocationPercent:     allocationPercent,
		Status:                types.FundStatusActive,
		CreatedAt:             time.Now().UTC(),
	}
	if err := s.store.InsertPammFund(ctx, fund); err != nil {
		return nil, err
	}
	s.log.Info().Str("fund_id", fund.ID).Str("manager_id", managerID).Msg("fund created")
	return &fund, nil
}

// Fund returns a fund by id.
func (s *Service) Fund(ctx context.Context, fundID string) (*model.PammFund, error) {
	f, err := s.store.GetPammFund(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, apperr.NotFound("fund %s not found", fundID)
	}
	return f, nil
}

func completedTx(userID, currency string, typ types.TransactionType, amount decimal.Decimal, refID, desc string) model.WalletTransaction {
	now := time.Now().UTC()
	return model.WalletTransaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Currency:    currency,
		Type:        typ,
		Amount:      amount,
		Status:      types.TransactionStatusCompleted,
		ReferenceID: refID,
		Description: desc,
		CreatedAt:   now,
		CompletedAt: &now,
	}
}

// Allocate moves wallet money into a fund. One active allocation per
// (fund, follower); adding to a position means unallocating first.
func (s *Service) Allocate(ctx context.Context, followerID, fundID string, amount decimal.Decimal, currency string) (*model.PammAllocation, error) {
	if !amount.IsPositive() {
		return nil, apperr.Validation("allocation amount must be positive")
	}
	fund, err := s.Fund(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if fund.Status != types.FundStatusActive {
		return nil, apperr.Validation("fund %s is not active", fundID)
	}
	if fund.UserID == followerID {
		return nil, apperr.Validation("the manager adds capital, not allocations")
	}

	alloc := model.PammAllocation{
		ID:               uuid.New().String(),
		FundID:           fundID,
		FollowerID:       followerID,
		ManagerID:        fund.UserID,
		AllocatedBalance: amount,
		RealizedPnl:      decimal.Zero,
		Status:           types.AllocationStatusActive,
		CreatedAt:        time.Now().UTC(),
	}
	err = s.store.Atomic(ctx, func(st store.Store) error {
		existing, err := st.GetActivePammAllocation(ctx, fundID, followerID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict("follower already has an active allocation in fund %s", fundID)
		}
		if _, err := st.EnsureWallet(ctx, followerID, currency); err != nil {
			return err
		}
		if err := st.IncrementWallet(ctx, followerID, currency, amount.Neg(), decimal.Zero); err != nil {
			if errors.Is(err, store.ErrInsufficientFunds) {
				return apperr.Validation("insufficient funds")
			}
			return err
		}
		if err := st.InsertPammAllocation(ctx, alloc); err != nil {
			return err
		}
		wt := completedTx(followerID, currency, types.TransactionTypePammAlloc, amount, alloc.ID, "allocation to fund "+fund.Name)
		if err := st.InsertWalletTransaction(ctx, wt); err != nil {
			return err
		}
		_, err = s.ledger.WithStore(st).RecordPammAllocation(ctx, followerID, amount, currency, fundID, alloc.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("fund_id", fundID).Str("follower_id", followerID).
		Str("amount", amount.StringFixed(2)).Msg("allocation opened")
	return &alloc, nil
}

// Unallocate closes the follower's active allocation and returns the
// principal to the wallet. Distributed P&L already lives there.
func (s *Service) Unallocate(ctx context.Context, followerID, fundID, currency string) (*model.PammAllocation, error) {
	var closed *model.PammAllocation
	err := s.store.Atomic(ctx, func(st store.Store) error {
		alloc, err := st.GetActivePammAllocation(ctx, fundID, followerID)
		if err != nil {
			return err
		}
		if alloc == nil {
			return apperr.NotFound("no active allocation in fund %s", fundID)
		}
		won, err := st.ClosePammAllocation(ctx, alloc.ID, time.Now().UTC())
		if err != nil {
			return err
		}
		if !won {
			return apperr.Conflict("allocation %s is already closed", alloc.ID)
		}
		if _, err := st.EnsureWallet(ctx, followerID, currency); err != nil {
			return err
		}
		if err := st.IncrementWallet(ctx, followerID, currency, alloc.AllocatedBalance, decimal.Zero); err != nil {
			return err
		}
		wt := completedTx(followerID, currency, types.TransactionTypePammUnalloc, alloc.AllocatedBalance, alloc.ID, "withdrawal from fund")
		if err := st.InsertWalletTransaction(ctx, wt); err != nil {
			return err
		}
		if _, err := s.ledger.WithStore(st).RecordPammWithdrawal(ctx, followerID, alloc.AllocatedBalance, currency, fundID, alloc.ID); err != nil {
			return err
		}
		closed, err = st.GetPammAllocation(ctx, alloc.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("fund_id", fundID).Str("follower_id", followerID).Msg("allocation closed")
	return closed, nil
}

// ManagerCapitalIn moves the manager's own wallet money into the fund; it
// counts as fund capital in every distribution.
func (s *Service) ManagerCapitalIn(ctx context.Context, managerID string, amount decimal.Decimal, currency string) (*model.PammFund, error) {
	if !amount.IsPositive() {
		return nil, apperr.Validation("capital amount must be positive")
	}
	fund, err := s.store.GetPammFundByManager(ctx, managerID)
	if err != nil {
		return nil, err
	}
	if fund == nil {
		return nil, apperr.NotFound("manager %s has no active fund", managerID)
	}
	err = s.store.Atomic(ctx, func(st store.Store) error {
		if _, err := st.EnsureWallet(ctx, managerID, currency); err != nil {
			return err
		}
		if err := st.IncrementWallet(ctx, managerID, currency, amount.Neg(), decimal.Zero); err != nil {
			if errors.Is(err, store.ErrInsufficientFunds) {
				return apperr.Validation("insufficient funds")
			}
			return err
		}
		if err := st.IncrementPammFundDeposit(ctx, fund.ID, amount); err != nil {
			return err
		}
		if err := st.IncrementTradingAccountBalance(ctx, fund.AccountID, amount); err != nil {
			return err
		}
		refID := uuid.New().String()
		wt := completedTx(managerID, currency, types.TransactionTypePammManagerCapIn, amount, refID, "capital into fund "+fund.Name)
		if err := st.InsertWalletTransaction(ctx, wt); err != nil {
			return err
		}
		_, err := s.ledger.WithStore(st).RecordPammAllocation(ctx, managerID, amount, currency, fund.ID, refID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Fund(ctx, fund.ID)
}

// ManagerCapitalOut returns fund capital to the manager's wallet.
func (s *Service) ManagerCapitalOut(ctx context.Context, managerID string, amount decimal.Decimal, currency string) (*model.PammFund, error) {
	if !amount.IsPositive() {
		return nil, apperr.Validation("capital amount must be positive")
	}
	fund, err := s.store.GetPammFundByManager(ctx, managerID)
	if err != nil {
		return nil, err
	}
	if fund == nil {
		return nil, apperr.NotFound("manager %s has no active fund", managerID)
	}
	err = s.store.Atomic(ctx, func(st store.Store) error {
		if err := st.IncrementPammFundDeposit(ctx, fund.ID, amount.Neg()); err != nil {
			if errors.Is(err, store.ErrInsufficientFunds) {
				return apperr.Validation("amount exceeds fund capital")
			}
			return err
		}
		if err := st.IncrementTradingAccountBalance(ctx, fund.AccountID, amount.Neg()); err != nil {
			if errors.Is(err, store.ErrInsufficientFunds) {
				return apperr.Validation("amount exceeds account balance")
			}
			return err
		}
		if _, err := st.EnsureWallet(ctx, managerID, currency); err != nil {
			return err
		}
		if err := st.IncrementWallet(ctx, managerID, currency, amount, decimal.Zero); err != nil {
			return err
		}
		refID := uuid.New().String()
		wt := completedTx(managerID, currency, types.TransactionTypePammManagerCapOut, amount, refID, "capital out of fund "+fund.Name)
		if err := st.InsertWalletTransaction(ctx, wt); err != nil {
			return err
		}
		_, err := s.ledger.WithStore(st).RecordPammWithdrawal(ctx, managerID, amount, currency, fund.ID, refID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Fund(ctx, fund.ID)
}

// DistributePnl splits one closed trade's P&L across the fund. Repeated
// calls for the same position are no-ops (the trade-history row is the
// idempotency key), which makes outbox retries safe. Each participant
// settles independently; one failing investor does not stop the rest.
func (s *Service) DistributePnl(ctx context.Context, managerID, accountID, positionID string, pnl, volume decimal.Decimal, currency string) error {
	fund, err := s.store.GetPammFundByAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if fund == nil {
		fund, err = s.store.GetPammFundByManager(ctx, managerID)
		if err != nil {
			return err
		}
	}
	if fund == nil {
		return apperr.NotFound("no fund for account %s", accountID)
	}

	allocs, err := s.store.ListActivePammAllocations(ctx, fund.ID)
	if err != nil {
		return err
	}
	dist := buildDistribution(pnl, fund.PerformanceFeePercent, fund.CurrentDeposit, allocs)

	inserted, err := s.store.InsertPammTrade(ctx, model.PammTrade{
		ID:            uuid.New().String(),
		FundID:        fund.ID,
		PositionID:    positionID,
		Pnl:           pnl,
		Fee:           dist.Fee,
		DistributedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Info().Str("position_id", positionID).Msg("trade already distributed")
		return nil
	}
	if dist.TotalCapital.IsZero() {
		s.log.Warn().Str("fund_id", fund.ID).Msg("fund has no capital, nothing to distribute")
		return nil
	}

	if dist.Fee.IsPositive() {
		if err := s.payFee(ctx, fund, positionID, dist.Fee, currency); err != nil {
			s.log.Error().Err(err).Str("fund_id", fund.ID).Msg("performance fee settlement failed")
		}
	}

	if !dist.ManagerShare.IsZero() {
		if err := s.applyManagerShare(ctx, fund, dist.ManagerShare); err != nil {
			s.log.Error().Err(err).Str("fund_id", fund.ID).Msg("manager share settlement failed")
		}
	}

	if volume.IsZero() {
		volume = defaultCascadeVolume
	}
	notified := []string{fund.UserID}
	for _, inv := range dist.Investors {
		if err := s.settleInvestor(ctx, fund, positionID, inv, currency); err != nil {
			s.log.Error().Err(err).Str("allocation_id", inv.AllocationID).
				Msg("investor share settlement failed")
			continue
		}
		notified = append(notified, inv.FollowerID)
		if err := s.ib.SettleTrade(ctx, ib.Trade{ID: positionID, Volume: volume}, inv.FollowerID, currency); err != nil {
			s.log.Error().Err(err).Str("follower_id", inv.FollowerID).
				Msg("investor upline cascade failed")
		}
	}

	s.notifier.Emit(ctx, notify.Event{
		Type:    "pamm_distribution",
		UserIDs: notified,
		Data: map[string]any{
			"fund_id":     fund.ID,
			"position_id": positionID,
			"pnl":         pnl.StringFixed(2),
			"fee":         dist.Fee.StringFixed(2),
		},
	})
	metrics.DistributionsTotal.Inc()
	s.log.Info().Str("fund_id", fund.ID).Str("position_id", positionID).
		Str("pnl", pnl.StringFixed(2)).Int("investors", len(dist.Investors)).
		Msg("pnl distributed")
	return nil
}

func (s *Service) payFee(ctx context.Context, fund *model.PammFund, positionID string, fee decimal.Decimal, currency string) error {
	return s.store.Atomic(ctx, func(st store.Store) error {
		if _, err := st.EnsureWallet(ctx, fund.UserID, currency); err != nil {
			return err
		}
		if err := st.IncrementWallet(ctx, fund.UserID, currency, fee, decimal.Zero); err != nil {
			return err
		}
		wt := completedTx(fund.UserID, currency, types.TransactionTypePammFee, fee, positionID, "performance fee "+fund.Name)
		if err := st.InsertWalletTransaction(ctx, wt); err != nil {
			return err
		}
		_, err := s.ledger.WithStore(st).RecordPammFee(ctx, fund.UserID, fee, currency, fund.ID, positionID)
		return err
	})
}

// applyManagerShare moves the manager's proportional cut on the pamm trading
// account; a loss larger than the balance floors it at zero.
func (s *Service) applyManagerShare(ctx context.Context, fund *model.PammFund, share decimal.Decimal) error {
	return s.store.Atomic(ctx, func(st store.Store) error {
		acc, err := st.GetTradingAccount(ctx, fund.AccountID)
		if err != nil {
			return err
		}
		if acc == nil {
			return apperr.NotFound("fund account %s not found", fund.AccountID)
		}
		delta := share
		if delta.IsNegative() && delta.Abs().Cmp(acc.Balance) > 0 {
			delta = acc.Balance.Neg()
		}
		if delta.IsZero() {
			return nil
		}
		return st.IncrementTradingAccountBalance(ctx, fund.AccountID, delta)
	})
}

func (s *Service) settleInvestor(ctx context.Context, fund *model.PammFund, positionID string, inv InvestorShare, currency string) error {
	return s.store.Atomic(ctx, func(st store.Store) error {
		if _, err := st.EnsureWallet(ctx, inv.FollowerID, currency); err != nil {
			return err
		}
		if err := st.IncrementWallet(ctx, inv.FollowerID, currency, inv.Share, decimal.Zero); err != nil {
			return err
		}
		wt := completedTx(inv.FollowerID, currency, types.TransactionTypePammDist, inv.Share, positionID, "distribution from "+fund.Name)
		if err := st.InsertWalletTransaction(ctx, wt); err != nil {
			return err
		}
		if _, err := s.ledger.WithStore(st).RecordPammDistribution(ctx, inv.FollowerID, inv.Share, currency, fund.ID, positionID); err != nil {
			return err
		}
		return st.AddPammAllocationPnl(ctx, inv.AllocationID, inv.Share)
	})
}

// Allocations lists a fund's active allocations.
func (s *Service) Allocations(ctx context.Context, fundID string) ([]model.PammAllocation, error) {
	return s.store.ListActivePammAllocations(ctx, fundID)
}
