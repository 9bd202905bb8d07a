// Package settlement turns closed positions into money. The position's
// terminal state and the direct balance effects commit in one atomic block;
// downstream effects (IB commission cascade, PAMM distribution, client
// notifications) go through a durable outbox that is attempted immediately
// and retried by a background worker.
package settlement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lv-settle/internal/accounts"
	"lv-settle/internal/apperr"
	"lv-settle/internal/ledger"
	"lv-settle/internal/metrics"
	"lv-settle/internal/model"
	"lv-settle/internal/store"
	"lv-settle/internal/types"
)

// TradingGate is consulted before any non-zero P&L settles. A rejection
// aborts the close before any mutation.
type TradingGate interface {
	CheckTrade(ctx context.Context, userID string, pnl decimal.Decimal) error
}

// Processor settles one outbox item kind.
type Processor func(ctx context.Context, payload []byte) error

// maxOutboxAttempts is how many times an item is tried before it is parked
// as failed.
const maxOutboxAttempts = 10

type Service struct {
	store      store.Store
	ledger     *ledger.Service
	accounts   *accounts.Service
	gate       TradingGate
	processors map[types.OutboxKind]Processor
	log        zerolog.Logger
}

func NewService(st store.Store, lg *ledger.Service, acc *accounts.Service, gate TradingGate, log zerolog.Logger) *Service {
	return &Service{
		store:      st,
		ledger:     lg,
		accounts:   acc,
		gate:       gate,
		processors: map[types.OutboxKind]Processor{},
		log:        log.With().Str("component", "settlement").Logger(),
	}
}

// Register binds a processor to an outbox kind. Unregistered kinds stay in
// the queue until a processor appears.
func (s *Service) Register(kind types.OutboxKind, p Processor) {
	s.processors[kind] = p
}

// IBCascadePayload drives the commission cascade for one closed trade.
type IBCascadePayload struct {
	ClientUserID string          `json:"client_user_id"`
	PositionID   string          `json:"position_id"`
	Volume       decimal.Decimal `json:"volume"`
	Currency     string          `json:"currency"`
}

// PammDistributionPayload drives the fund P&L split for one closed trade.
type PammDistributionPayload struct {
	ManagerID  string          `json:"manager_id"`
	AccountID  string          `json:"account_id"`
	PositionID string          `json:"position_id"`
	Pnl        decimal.Decimal `json:"pnl"`
	Volume     decimal.Decimal `json:"volume"`
	Currency   string          `json:"currency"`
}

// NotifyPayload fans an event out to a set of users.
type NotifyPayload struct {
	Event   string         `json:"event"`
	UserIDs []string       `json:"user_ids"`
	Data    map[string]any `json:"data,omitempty"`
}

// OpenRequest ingests a fill from the matching engine.
type OpenRequest struct {
	UserID    string
	AccountID string
	Symbol    string
	Side      types.PositionSide
	Volume    decimal.Decimal
	OpenPrice decimal.Decimal
}

// Open records a new position against one of the user's trading accounts.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*model.Position, error) {
	if req.Symbol == "" {
		return nil, apperr.Validation("symbol is required")
	}
	if req.Side != types.PositionSideBuy && req.Side != types.PositionSideSell {
		return nil, apperr.Validation("unknown side %q", req.Side)
	}
	if !req.Volume.IsPositive() {
		return nil, apperr.Validation("volume must be positive")
	}
	if !req.OpenPrice.IsPositive() {
		return nil, apperr.Validation("open price must be positive")
	}
	acc, err := s.accounts.Resolve(ctx, req.UserID, req.AccountID)
	if err != nil {
		return nil, err
	}
	p := model.Position{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		AccountID: acc.ID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Volume:    req.Volume,
		OpenPrice: req.OpenPrice,
		OpenedAt:  time.Now().UTC(),
	}
	if err := s.store.InsertPosition(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info().Str("position_id", p.ID).Str("symbol", p.Symbol).
		Str("account_id", acc.ID).Msg("position opened")
	return &p, nil
}

// CloseRequest closes all or part of a position. Pnl and ClosePrice are
// optional; see CloseResult for how they interact.
type CloseRequest struct {
	PositionID string
	Volume     *decimal.Decimal
	Pnl        *decimal.Decimal
	ClosePrice *decimal.Decimal
}

// Effect reports the fate of one downstream settlement step.
type Effect struct {
	Kind   types.OutboxKind `json:"kind"`
	Status string           `json:"status"` // settled, pending or failed
	Detail string           `json:"detail,omitempty"`
}

// CloseResult is what a close actually did: the terminal position, the
// realized P&L, the account mode that routed settlement, and the fate of
// every downstream effect.
type CloseResult struct {
	Position *model.Position   `json:"position"`
	Pnl      decimal.Decimal   `json:"pnl"`
	Mode     types.AccountMode `json:"mode"`
	Partial  bool              `json:"partial"`
	Effects  []Effect          `json:"effects,omitempty"`
}

// ClosePosition settles a close request.
//
// P&L is recomputed only on a full close with an explicit close price; in
// every other case the caller-supplied or stored value is trusted as-is. A
// partial close is pure volume bookkeeping. A full close marks the position
// terminal and routes by account mode: demo touches only the practice
// balance, live posts the journal entry and pays the wallet, pamm hands the
// whole P&L to the distribution engine.
func (s *Service) ClosePosition(ctx context.Context, userID, currency string, req CloseRequest) (*CloseResult, error) {
	pos, err := s.store.GetPosition(ctx, req.PositionID)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, apperr.NotFound("position %s not found", req.PositionID)
	}
	if pos.UserID != userID {
		return nil, apperr.Forbidden("position %s does not belong to user", req.PositionID)
	}
	if pos.Closed() {
		return nil, apperr.Conflict("position %s is already closed", req.PositionID)
	}

	closeVolume := pos.Volume
	if req.Volume != nil {
		closeVolume = *req.Volume
	}
	if !closeVolume.IsPositive() || closeVolume.Cmp(pos.Volume) > 0 {
		return nil, apperr.Validation("close volume %s out of range (0, %s]",
			closeVolume.String(), pos.Volume.String())
	}
	full := closeVolume.Equal(pos.Volume)

	pnl := pos.Pnl
	if req.Pnl != nil {
		pnl = *req.Pnl
	}
	if full && req.ClosePrice != nil {
		pnl = ComputePnl(pos.Symbol, pos.Side, closeVolume, pos.OpenPrice, *req.ClosePrice)
	}

	if !pnl.IsZero() {
		if err := s.gate.CheckTrade(ctx, userID, pnl); err != nil {
			return nil, err
		}
	}

	if !full {
		if err := s.store.PartialClosePosition(ctx, pos.ID, closeVolume); err != nil {
			return nil, err
		}
		pos, err = s.store.GetPosition(ctx, pos.ID)
		if err != nil {
			return nil, err
		}
		s.log.Info().Str("position_id", pos.ID).Str("volume", closeVolume.String()).
			Msg("position partially closed")
		return &CloseResult{Position: pos, Pnl: decimal.Zero, Partial: true}, nil
	}

	acc, err := s.accounts.Get(ctx, pos.AccountID)
	if err != nil {
		return nil, err
	}

	closePrice := pos.ClosePrice
	if req.ClosePrice != nil {
		closePrice = *req.ClosePrice
	}
	closedAt := time.Now().UTC()

	var items []model.OutboxItem
	err = s.store.Atomic(ctx, func(st store.Store) error {
		won, err := st.MarkPositionClosed(ctx, pos.ID, closePrice, pnl, closedAt)
		if err != nil {
			return err
		}
		if !won {
			return apperr.Conflict("position %s is already closed", pos.ID)
		}

		switch acc.Mode {
		case types.AccountModeDemo:
			return s.settleDemo(ctx, st, acc, pnl)
		case types.AccountModePamm:
			items, err = s.settlePamm(ctx, st, acc, pos, pnl, currency)
			return err
		default:
			items, err = s.settleLive(ctx, st, pos, pnl, currency)
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	result := &CloseResult{Pnl: pnl, Mode: acc.Mode}
	result.Position, err = s.store.GetPosition(ctx, pos.ID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		result.Effects = append(result.Effects, s.attempt(ctx, item))
	}
	metrics.PositionsClosed.WithLabelValues(string(acc.Mode)).Inc()
	s.log.Info().Str("position_id", pos.ID).Str("mode", string(acc.Mode)).
		Str("pnl", pnl.StringFixed(2)).Int("effects", len(result.Effects)).
		Msg("position closed")
	return result, nil
}

// settleDemo moves practice money only. A loss larger than the balance
// floors the account at zero.
func (s *Service) settleDemo(ctx context.Context, st store.Store, acc *model.TradingAccount, pnl decimal.Decimal) error {
	current, err := st.GetTradingAccount(ctx, acc.ID)
	if err != nil {
		return err
	}
	delta := pnl
	if delta.IsNegative() && delta.Abs().Cmp(current.Balance) > 0 {
		delta = current.Balance.Neg()
	}
	if delta.IsZero() {
		return nil
	}
	return st.IncrementTradingAccountBalance(ctx, acc.ID, delta)
}

// settleLive posts the trading P&L, pays the real wallet, and records a
// completed wallet transaction; the IB cascade and the client notification
// go to the outbox.
func (s *Service) settleLive(ctx context.Context, st store.Store, pos *model.Position, pnl decimal.Decimal, currency string) ([]model.OutboxItem, error) {
	if !pnl.IsZero() {
		if _, err := s.ledger.WithStore(st).RecordTradePnl(ctx, pos.UserID, pnl, currency, pos.ID); err != nil {
			return nil, err
		}
		if _, err := st.EnsureWallet(ctx, pos.UserID, currency); err != nil {
			return nil, err
		}
		// The close must reach its terminal state even when the loss
		// exceeds the wallet, so this delta has no floor.
		if err := st.SettleWallet(ctx, pos.UserID, currency, pnl); err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		wt := model.WalletTransaction{
			ID:          uuid.New().String(),
			UserID:      pos.UserID,
			Currency:    currency,
			Type:        types.TransactionTypeTrade,
			Amount:      pnl,
			Status:      types.TransactionStatusCompleted,
			ReferenceID: pos.ID,
			Description: "trade settlement " + pos.Symbol,
			CreatedAt:   now,
			CompletedAt: &now,
		}
		if err := st.InsertWalletTransaction(ctx, wt); err != nil {
			return nil, err
		}
	}

	volume := pos.Volume.Add(pos.ClosedVolume)
	items := []model.OutboxItem{
		newOutboxItem(types.OutboxKindIBCascade, IBCascadePayload{
			ClientUserID: pos.UserID,
			PositionID:   pos.ID,
			Volume:       volume,
			Currency:     currency,
		}),
		newOutboxItem(types.OutboxKindNotify, NotifyPayload{
			Event:   "position_closed",
			UserIDs: []string{pos.UserID},
			Data: map[string]any{
				"position_id": pos.ID,
				"pnl":         pnl.StringFixed(2),
			},
		}),
	}
	for _, item := range items {
		if err := st.EnqueueOutbox(ctx, item); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// settlePamm moves no money itself; the distribution engine owns the whole
// P&L of a fund trade.
func (s *Service) settlePamm(ctx context.Context, st store.Store, acc *model.TradingAccount, pos *model.Position, pnl decimal.Decimal, currency string) ([]model.OutboxItem, error) {
	item := newOutboxItem(types.OutboxKindPammDistribution, PammDistributionPayload{
		ManagerID:  acc.UserID,
		AccountID:  acc.ID,
		PositionID: pos.ID,
		Pnl:        pnl,
		Volume:     pos.Volume.Add(pos.ClosedVolume),
		Currency:   currency,
	})
	if err := st.EnqueueOutbox(ctx, item); err != nil {
		return nil, err
	}
	return []model.OutboxItem{item}, nil
}

func newOutboxItem(kind types.OutboxKind, payload any) model.OutboxItem {
	raw, _ := json.Marshal(payload)
	now := time.Now().UTC()
	return model.OutboxItem{
		ID:        uuid.New().String(),
		Kind:      kind,
		Payload:   raw,
		Status:    types.OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// attempt runs one outbox item synchronously right after the close commits.
// Failures are left pending for the worker.
func (s *Service) attempt(ctx context.Context, item model.OutboxItem) Effect {
	proc, ok := s.processors[item.Kind]
	if !ok {
		return Effect{Kind: item.Kind, Status: "pending", Detail: "no processor registered"}
	}
	if err := proc(ctx, item.Payload); err != nil {
		s.log.Warn().Err(err).Str("outbox_id", item.ID).Str("kind", string(item.Kind)).
			Msg("settlement effect deferred to worker")
		if merr := s.store.MarkOutboxError(ctx, item.ID, err.Error(), maxOutboxAttempts); merr != nil {
			s.log.Error().Err(merr).Str("outbox_id", item.ID).Msg("mark outbox error failed")
		}
		return Effect{Kind: item.Kind, Status: "pending", Detail: err.Error()}
	}
	if err := s.store.MarkOutboxDone(ctx, item.ID); err != nil {
		s.log.Error().Err(err).Str("outbox_id", item.ID).Msg("mark outbox done failed")
	}
	return Effect{Kind: item.Kind, Status: "settled"}
}

// ListPositions returns the user's positions, optionally open ones only.
func (s *Service) ListPositions(ctx context.Context, userID string, openOnly bool) ([]model.Position, error) {
	return s.store.ListPositions(ctx, userID, openOnly)
}
