// Package risk holds the trading-limit gate: blocked users and a daily
// realized-loss threshold over the UTC calendar day.
package risk

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lv-settle/internal/apperr"
	"lv-settle/internal/ledger"
	"lv-settle/internal/store"
)

// DefaultDailyLossLimit applies when no limit is configured.
var DefaultDailyLossLimit = decimal.NewFromInt(10000)

type Gate struct {
	store          store.Store
	ledger         *ledger.Service
	dailyLossLimit decimal.Decimal
	log            zerolog.Logger
}

func NewGate(st store.Store, lg *ledger.Service, dailyLossLimit decimal.Decimal, log zerolog.Logger) *Gate {
	if !dailyLossLimit.IsPositive() {
		dailyLossLimit = DefaultDailyLossLimit
	}
	return &Gate{
		store:          st,
		ledger:         lg,
		dailyLossLimit: dailyLossLimit,
		log:            log.With().Str("component", "risk").Logger(),
	}
}

// CheckTrade rejects settlement for blocked users, and rejects losses that
// would push the user's realized loss for the current UTC day past the
// limit. Profits pass the loss check unconditionally.
func (g *Gate) CheckTrade(ctx context.Context, userID string, pnl decimal.Decimal) error {
	blocked, err := g.store.IsUserBlocked(ctx, userID)
	if err != nil {
		return err
	}
	if blocked {
		return apperr.Forbidden("user %s is blocked from trading", userID)
	}
	if !pnl.IsNegative() {
		return nil
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	today, err := g.ledger.GetPnlForPeriod(ctx, userID, dayStart, now)
	if err != nil {
		return err
	}
	if today.Add(pnl).Neg().Cmp(g.dailyLossLimit) > 0 {
		g.log.Warn().Str("user_id", userID).
			Str("today", today.StringFixed(2)).Str("pnl", pnl.StringFixed(2)).
			Msg("daily loss limit hit")
		return apperr.Forbidden("daily loss limit exceeded")
	}
	return nil
}

// Block puts a user on the blocked list.
func (g *Gate) Block(ctx context.Context, userID, reason string) error {
	if userID == "" {
		return apperr.Validation("user id is required")
	}
	return g.store.BlockUser(ctx, userID, reason)
}
