package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lv-settle/internal/accounts"
	"lv-settle/internal/ib"
	"lv-settle/internal/ledger"
	"lv-settle/internal/metrics"
	"lv-settle/internal/pamm"
	"lv-settle/internal/recon"
	"lv-settle/internal/settlement"
	"lv-settle/internal/wallet"
)

type RouterDeps struct {
	LedgerHandler     *ledger.Handler
	WalletHandler     *wallet.Handler
	AccountsHandler   *accounts.Handler
	SettlementHandler *settlement.Handler
	IBHandler         *ib.Handler
	PammHandler       *pamm.Handler
	ReconHandler      *recon.Handler
	Tokens            *TokenService
	InternalToken     string
	WSHandler         http.Handler
	// CORSOrigin enables cross-origin responses when set. "*" reflects the
	// caller's origin; anything else is sent verbatim. Empty disables CORS.
	CORSOrigin string
}

func corsMiddleware(allowed string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := allowed
			if allowed == "*" {
				if reqOrigin := r.Header.Get("Origin"); reqOrigin != "" {
					origin = reqOrigin
				}
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	if d.CORSOrigin != "" {
		r.Use(corsMiddleware(d.CORSOrigin))
	}

	r.Use(SecurityHeaders)
	r.Use(RateLimitMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/ws", d.WSHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.Tokens))

			r.Get("/balances", d.LedgerHandler.Balances)
			r.Get("/balances/{code}", d.LedgerHandler.Balance)
			r.Get("/pnl", d.LedgerHandler.Pnl)

			r.Get("/wallet", d.WalletHandler.Get)
			r.Get("/wallet/transactions", d.WalletHandler.Transactions)
			r.Post("/wallet/deposits", d.WalletHandler.RequestDeposit)
			r.Post("/wallet/withdrawals", d.WalletHandler.RequestWithdrawal)
			r.Post("/wallet/transfers", d.WalletHandler.Transfer)

			r.Get("/accounts", d.AccountsHandler.List)
			r.Post("/accounts", d.AccountsHandler.Create)
			r.Post("/accounts/{accountID}/activate", d.AccountsHandler.SetActive)
			r.Post("/accounts/{accountID}/name", d.AccountsHandler.Rename)

			r.Get("/positions", d.SettlementHandler.Positions)
			r.Post("/positions/close", d.SettlementHandler.Close)

			r.Post("/ib/enroll", d.IBHandler.Enroll)
			r.Get("/ib/profile", d.IBHandler.Profile)
			r.Get("/ib/commissions", d.IBHandler.Commissions)
			r.Post("/ib/payouts", d.IBHandler.RequestPayout)

			r.Post("/pamm/funds", d.PammHandler.CreateFund)
			r.Get("/pamm/funds/{fundID}", d.PammHandler.Fund)
			r.Get("/pamm/funds/{fundID}/allocations", d.PammHandler.Allocations)
			r.Post("/pamm/funds/{fundID}/allocate", d.PammHandler.Allocate)
			r.Post("/pamm/funds/{fundID}/unallocate", d.PammHandler.Unallocate)
			r.Post("/pamm/capital/in", d.PammHandler.CapitalIn)
			r.Post("/pamm/capital/out", d.PammHandler.CapitalOut)

			r.Get("/recon", d.ReconHandler.Run)
		})

		r.Group(func(r chi.Router) {
			r.Use(InternalAuth(d.InternalToken))
			r.Post("/internal/positions", d.SettlementHandler.Open)
			r.Post("/internal/deposits/{txID}/confirm", d.WalletHandler.ConfirmDeposit)
			r.Post("/internal/withdrawals/{txID}/confirm", d.WalletHandler.ConfirmWithdrawal)
			r.Post("/internal/withdrawals/{txID}/reject", d.WalletHandler.RejectWithdrawal)
			r.Post("/internal/credits", d.WalletHandler.AdminCredit)
			r.Get("/internal/recon", d.ReconHandler.RunAll)
		})
	})
	return r
}
