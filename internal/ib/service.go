// Package ib implements the introducing-broker program: a referral forest
// of IB profiles, per-lot commission accrual on client trades, and payout
// of accrued commissions.
package ib

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lv-settle/internal/apperr"
	"lv-settle/internal/ledger"
	"lv-settle/internal/metrics"
	"lv-settle/internal/model"
	"lv-settle/internal/store"
	"lv-settle/internal/types"
)

// maxChainDepth caps the parent walk; together with the visited set it keeps
// a corrupted (cyclic) referral chain from hanging the engine.
const maxChainDepth = 32

// defaultRates is the per-lot commission by IB level; levels beyond the
// table fall back to the level-1 rate.
var defaultRates = map[int]decimal.Decimal{
	1: decimal.NewFromInt(7),
	2: decimal.NewFromInt(5),
	3: decimal.NewFromInt(3),
}

// Trade is the slice of a closed position the commission engine cares
// about.
type Trade struct {
	ID     string
	Volume decimal.Decimal
}

type Service struct {
	store  store.Store
	ledger *ledger.Service
	log    zerolog.Logger
}

func NewService(st store.Store, lg *ledger.Service, log zerolog.Logger) *Service {
	return &Service{store: st, ledger: lg, log: log.With().Str("component", "ib").Logger()}
}

// Enroll creates or updates an IB profile. An empty parent makes a root
// (level 1) IB.
func (s *Service) Enroll(ctx context.Context, userID, parentID string, ratePerLot *decimal.Decimal) (*model.IBProfile, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	if parentID == userID {
		return nil, apperr.Validation("an IB cannot refer itself")
	}
	if parentID != "" {
		parent, err := s.store.GetIBProfile(ctx, parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, apperr.NotFound("parent IB %s not found", parentID)
		}
	}
	if ratePerLot != nil && ratePerLot.IsNegative() {
		return nil, apperr.Validation("rate per lot cannot be negative")
	}
	p := model.IBProfile{
		UserID:     userID,
		ParentID:   parentID,
		RatePerLot: ratePerLot,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.UpsertIBProfile(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", userID).Str("parent_id", parentID).Msg("ib enrolled")
	return &p, nil
}

// Profile returns the IB profile, or a not-found error.
func (s *Service) Profile(ctx context.Context, userID string) (*model.IBProfile, error) {
	p, err := s.store.GetIBProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("user %s is not an IB", userID)
	}
	return p, nil
}

// Level counts the parent chain upward from the IB; a root profile is level
// 1. Levels are recomputed on every call, never cached. The walk stops at
// the depth cap or on a cycle.
func (s *Service) Level(ctx context.Context, ibID string) (int, error) {
	p, err := s.store.GetIBProfile(ctx, ibID)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, apperr.NotFound("user %s is not an IB", ibID)
	}
	level := 1
	visited := map[string]bool{ibID: true}
	cur := p
	for cur.ParentID != "" && level < maxChainDepth {
		if visited[cur.ParentID] {
			s.log.Warn().Str("ib_id", ibID).Str("cycle_at", cur.ParentID).
				Msg("referral chain cycle detected")
			break
		}
		visited[cur.ParentID] = true
		parent, err := s.store.GetIBProfile(ctx, cur.ParentID)
		if err != nil {
			return 0, err
		}
		if parent == nil {
			break
		}
		level++
		cur = parent
	}
	return level, nil
}

// UplineChainForClient walks the client's referral chain upward and returns
// the IB ids that earn on the client's trades, nearest first. A client
// without a profile has no upline.
func (s *Service) UplineChainForClient(ctx context.Context, clientUserID string) ([]string, error) {
	p, err := s.store.GetIBProfile(ctx, clientUserID)
	if err != nil {
		return nil, err
	}
	if p == nil || p.ParentID == "" {
		return nil, nil
	}
	var chain []string
	visited := map[string]bool{clientUserID: true}
	next := p.ParentID
	for next != "" && len(chain) < maxChainDepth {
		if visited[next] {
			s.log.Warn().Str("client", clientUserID).Str("cycle_at", next).
				Msg("referral chain cycle detected")
			break
		}
		visited[next] = true
		parent, err := s.store.GetIBProfile(ctx, next)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		chain = append(chain, parent.UserID)
		next = parent.ParentID
	}
	return chain, nil
}

// rate resolves the per-lot rate: the profile override when set, else the
// level-indexed default, else the level-1 default.
func (s *Service) rate(ctx context.Context, p *model.IBProfile) (decimal.Decimal, error) {
	if p.RatePerLot != nil {
		return *p.RatePerLot, nil
	}
	level, err := s.Level(ctx, p.UserID)
	if err != nil {
		return decimal.Zero, err
	}
	if r, ok := defaultRates[level]; ok {
		return r, nil
	}
	return defaultRates[1], nil
}

// Calculate accrues one IB's commission on one trade: amount = round2(volume
// × rate). A non-positive amount is a no-op; a repeated (ib, trade) pair is
// a no-op. The receivable posting is best-effort.
func (s *Service) Calculate(ctx context.Context, trade Trade, ibID, clientUserID, currency string) (*model.IBCommission, error) {
	p, err := s.store.GetIBProfile(ctx, ibID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("user %s is not an IB", ibID)
	}
	rate, err := s.rate(ctx, p)
	if err != nil {
		return nil, err
	}
	amount := trade.Volume.Mul(rate).Round(2)
	if !amount.IsPositive() {
		return nil, nil
	}
	c := model.IBCommission{
		ID:           uuid.New().String(),
		IBID:         ibID,
		TradeID:      trade.ID,
		ClientUserID: clientUserID,
		Volume:       trade.Volume,
		RatePerLot:   rate,
		Amount:       amount,
		Status:       types.CommissionStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	inserted, err := s.store.InsertIBCommission(ctx, c)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, nil
	}
	if _, err := s.ledger.RecordCommissionEarned(ctx, ibID, amount, currency, c.ID); err != nil {
		s.log.Error().Err(err).Str("commission_id", c.ID).
			Msg("commission accrued but receivable posting failed")
	}
	metrics.CommissionsTotal.Inc()
	s.log.Info().Str("ib_id", ibID).Str("trade_id", trade.ID).
		Str("amount", amount.StringFixed(2)).Msg("commission accrued")
	return &c, nil
}

// CalculateForHierarchy accrues independently for every IB in the upline
// chain: each earns its own rate on the full trade volume, not a split of
// one pool. One failing IB does not stop the others.
func (s *Service) CalculateForHierarchy(ctx context.Context, trade Trade, ibIDs []string, clientUserID, currency string) []model.IBCommission {
	var out []model.IBCommission
	for _, ibID := range ibIDs {
		c, err := s.Calculate(ctx, trade, ibID, clientUserID, currency)
		if err != nil {
			s.log.Error().Err(err).Str("ib_id", ibID).Str("trade_id", trade.ID).
				Msg("cascade commission failed")
			continue
		}
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// SettleTrade is the cascade entry point used by the settlement outbox:
// resolve the client's upline and accrue for every IB on it.
func (s *Service) SettleTrade(ctx context.Context, trade Trade, clientUserID, currency string) error {
	chain, err := s.UplineChainForClient(ctx, clientUserID)
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return nil
	}
	s.CalculateForHierarchy(ctx, trade, chain, clientUserID, currency)
	return nil
}

// RequestPayout pays out the IB's pending commissions. Only the exact full
// pending total is accepted; a nil amount defaults to it. Partial payouts
// are unsupported.
func (s *Service) RequestPayout(ctx context.Context, ibID string, amount *decimal.Decimal, currency string) (*model.IBPayout, error) {
	if _, err := s.Profile(ctx, ibID); err != nil {
		return nil, err
	}
	var payout *model.IBPayout
	err := s.store.Atomic(ctx, func(st store.Store) error {
		pending, err := st.SumPendingIBCommissions(ctx, ibID)
		if err != nil {
			return err
		}
		if !pending.IsPositive() {
			return apperr.Validation("no pending commissions to pay out")
		}
		if amount != nil && !amount.Equal(pending) {
			return apperr.Validation("payout must equal the full pending total %s", pending.StringFixed(2))
		}
		p := model.IBPayout{
			ID:          uuid.New().String(),
			IBID:        ibID,
			Amount:      pending,
			Status:      "completed",
			RequestedAt: time.Now().UTC(),
		}
		if err := st.InsertIBPayout(ctx, p); err != nil {
			return err
		}
		if _, err := st.MarkIBCommissionsPaid(ctx, ibID, p.ID); err != nil {
			return err
		}
		if _, err := s.ledger.WithStore(st).RecordCommissionPaid(ctx, ibID, pending, currency, p.ID); err != nil {
			return err
		}
		payout = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("ib_id", ibID).Str("amount", payout.Amount.StringFixed(2)).
		Msg("commissions paid out")
	return payout, nil
}

// Commissions lists the IB's commissions, newest first; status "" means all.
func (s *Service) Commissions(ctx context.Context, ibID string, status types.CommissionStatus, limit int) ([]model.IBCommission, error) {
	return s.store.ListIBCommissions(ctx, ibID, status, limit)
}

// PendingTotal returns the sum of unpaid commissions.
func (s *Service) PendingTotal(ctx context.Context, ibID string) (decimal.Decimal, error) {
	return s.store.SumPendingIBCommissions(ctx, ibID)
}
