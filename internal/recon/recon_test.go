package recon

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lv-settle/internal/ledger"
	"lv-settle/internal/store"
)

func newTestService(t *testing.T) (*Service, *ledger.Service, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	lg := ledger.NewService(st, zerolog.Nop())
	return NewService(st, lg, zerolog.Nop()), lg, st
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRunBalancedWallet(t *testing.T) {
	svc, lg, st := newTestService(t)
	ctx := context.Background()

	if _, err := lg.RecordDeposit(ctx, "alice", dec("100"), "USD", "dep-1"); err != nil {
		t.Fatalf("record deposit: %v", err)
	}
	if _, err := st.EnsureWallet(ctx, "alice", "USD"); err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}
	if err := st.IncrementWallet(ctx, "alice", "USD", dec("100"), decimal.Zero); err != nil {
		t.Fatalf("increment wallet: %v", err)
	}

	r, err := svc.Run(ctx, "alice", "USD")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.Status != StatusOK {
		t.Fatalf("status = %s, want ok (diff %s)", r.Status, r.Diff)
	}
	if !r.Diff.IsZero() {
		t.Fatalf("diff = %s, want 0", r.Diff)
	}
}

func TestRunScopesLedgerToWalletCurrency(t *testing.T) {
	svc, lg, st := newTestService(t)
	ctx := context.Background()

	for _, cur := range []string{"USD", "EUR"} {
		if _, err := lg.RecordDeposit(ctx, "alice", dec("100"), cur, "dep-"+cur); err != nil {
			t.Fatalf("record %s deposit: %v", cur, err)
		}
		if _, err := st.EnsureWallet(ctx, "alice", cur); err != nil {
			t.Fatalf("ensure %s wallet: %v", cur, err)
		}
		if err := st.IncrementWallet(ctx, "alice", cur, dec("100"), decimal.Zero); err != nil {
			t.Fatalf("increment %s wallet: %v", cur, err)
		}
	}

	// Each wallet matches its own currency's postings; the other
	// currency's 100 must not bleed into the comparison.
	for _, cur := range []string{"USD", "EUR"} {
		r, err := svc.Run(ctx, "alice", cur)
		if err != nil {
			t.Fatalf("run %s: %v", cur, err)
		}
		if r.Status != StatusOK {
			t.Fatalf("%s status = %s, want ok (wallet %s ledger %s)",
				cur, r.Status, r.WalletBalance, r.LedgerBalance)
		}
		if r.LedgerBalance.String() != "100" {
			t.Fatalf("%s ledger balance = %s, want 100", cur, r.LedgerBalance)
		}
	}
}

func TestRunFlagsDrift(t *testing.T) {
	svc, lg, st := newTestService(t)
	ctx := context.Background()

	if _, err := lg.RecordDeposit(ctx, "bob", dec("100"), "USD", "dep-1"); err != nil {
		t.Fatalf("record deposit: %v", err)
	}
	if _, err := st.EnsureWallet(ctx, "bob", "USD"); err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}
	if err := st.IncrementWallet(ctx, "bob", "USD", dec("99.98"), decimal.Zero); err != nil {
		t.Fatalf("increment wallet: %v", err)
	}

	r, err := svc.Run(ctx, "bob", "USD")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.Status != StatusDiscrepancy {
		t.Fatalf("status = %s, want discrepancy", r.Status)
	}
	if r.Diff.String() != "-0.02" {
		t.Fatalf("diff = %s, want -0.02", r.Diff)
	}
}

func TestRunSubCentDriftIsOK(t *testing.T) {
	svc, lg, st := newTestService(t)
	ctx := context.Background()

	if _, err := lg.RecordDeposit(ctx, "carol", dec("100"), "USD", "dep-1"); err != nil {
		t.Fatalf("record deposit: %v", err)
	}
	if _, err := st.EnsureWallet(ctx, "carol", "USD"); err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}
	if err := st.IncrementWallet(ctx, "carol", "USD", dec("100.005"), decimal.Zero); err != nil {
		t.Fatalf("increment wallet: %v", err)
	}

	r, err := svc.Run(ctx, "carol", "USD")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.Status != StatusOK {
		t.Fatalf("status = %s, want ok for sub-cent drift", r.Status)
	}
}

func TestRunMissingWalletAgainstPostings(t *testing.T) {
	svc, lg, _ := newTestService(t)
	ctx := context.Background()

	if _, err := lg.RecordDeposit(ctx, "ghost", dec("5"), "USD", "dep-1"); err != nil {
		t.Fatalf("record deposit: %v", err)
	}
	r, err := svc.Run(ctx, "ghost", "USD")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.Status != StatusDiscrepancy || r.Diff.String() != "-5" {
		t.Fatalf("report = %+v, want -5 discrepancy", r)
	}
}

func TestRunAllSweepsEveryWallet(t *testing.T) {
	svc, lg, st := newTestService(t)
	ctx := context.Background()

	for _, u := range []string{"alice", "bob"} {
		if _, err := lg.RecordDeposit(ctx, u, dec("10"), "USD", "dep-"+u); err != nil {
			t.Fatalf("record deposit: %v", err)
		}
		if _, err := st.EnsureWallet(ctx, u, "USD"); err != nil {
			t.Fatalf("ensure wallet: %v", err)
		}
	}
	if err := st.IncrementWallet(ctx, "alice", "USD", dec("10"), decimal.Zero); err != nil {
		t.Fatalf("increment wallet: %v", err)
	}

	reports, err := svc.RunAll(ctx)
	if err != nil {
		t.Fatalf("run all: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}
	byUser := map[string]string{}
	for _, r := range reports {
		byUser[r.UserID] = r.Status
	}
	if byUser["alice"] != StatusOK || byUser["bob"] != StatusDiscrepancy {
		t.Fatalf("statuses = %v", byUser)
	}
}
