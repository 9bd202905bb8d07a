// Package recon is the diagnostic pass that compares wallet balances with
// the journal. It never repairs anything; positive drift is handled offline
// with a compensating admin credit.
package recon

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lv-settle/internal/chart"
	"lv-settle/internal/ledger"
	"lv-settle/internal/metrics"
	"lv-settle/internal/store"
)

// discrepancyThreshold is the smallest drift worth reporting; anything
// under a cent is rounding noise.
var discrepancyThreshold = decimal.NewFromFloat(0.01)

const (
	StatusOK          = "ok"
	StatusDiscrepancy = "discrepancy"
)

// Report is the outcome of reconciling one wallet against the journal.
type Report struct {
	UserID        string          `json:"user_id"`
	Currency      string          `json:"currency"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	LedgerBalance decimal.Decimal `json:"ledger_balance"`
	Diff          decimal.Decimal `json:"diff"`
	Status        string          `json:"status"`
	CheckedAt     time.Time       `json:"checked_at"`
}

type Service struct {
	store  store.Store
	ledger *ledger.Service
	log    zerolog.Logger
}

func NewService(st store.Store, lg *ledger.Service, log zerolog.Logger) *Service {
	return &Service{
		store:  st,
		ledger: lg,
		log:    log.With().Str("component", "recon").Logger(),
	}
}

// Run reconciles one user's wallet. A missing wallet reconciles as zero,
// so journal postings without a wallet row still surface as drift.
func (s *Service) Run(ctx context.Context, userID, currency string) (*Report, error) {
	walletBalance := decimal.Zero
	w, err := s.store.GetWallet(ctx, userID, currency)
	if err != nil {
		return nil, err
	}
	if w != nil {
		walletBalance = w.Balance
	}
	ledgerBalance, err := s.ledger.GetCurrencyBalance(ctx, userID, chart.ClientWallet, currency, nil)
	if err != nil {
		return nil, err
	}

	r := &Report{
		UserID:        userID,
		Currency:      currency,
		WalletBalance: walletBalance,
		LedgerBalance: ledgerBalance,
		Diff:          walletBalance.Sub(ledgerBalance),
		Status:        StatusOK,
		CheckedAt:     time.Now().UTC(),
	}
	if r.Diff.Abs().Cmp(discrepancyThreshold) >= 0 {
		r.Status = StatusDiscrepancy
		metrics.ReconDiscrepancies.Inc()
		s.log.Warn().Str("user_id", userID).Str("currency", currency).
			Str("wallet", walletBalance.StringFixed(2)).
			Str("ledger", ledgerBalance.StringFixed(2)).
			Msg("wallet out of line with the journal")
	}
	return r, nil
}

// RunAll reconciles every wallet. A store error on one wallet aborts the
// sweep; drift does not.
func (s *Service) RunAll(ctx context.Context) ([]Report, error) {
	wallets, err := s.store.ListWallets(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]Report, 0, len(wallets))
	discrepancies := 0
	for _, w := range wallets {
		r, err := s.Run(ctx, w.UserID, w.Currency)
		if err != nil {
			return nil, err
		}
		if r.Status == StatusDiscrepancy {
			discrepancies++
		}
		reports = append(reports, *r)
	}
	s.log.Info().Int("wallets", len(reports)).Int("discrepancies", discrepancies).
		Msg("reconciliation sweep finished")
	return reports, nil
}
