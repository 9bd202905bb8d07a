package accounts

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lv-settle/internal/apperr"
	"lv-settle/internal/store"
	"lv-settle/internal/types"
)

func newTestService() *Service {
	return NewService(store.NewMemory(), zerolog.Nop())
}

func TestEnsureDefaultAccounts(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	accs, err := svc.EnsureDefaultAccounts(ctx, "u1")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(accs) != 2 {
		t.Fatalf("got %d accounts, want 2", len(accs))
	}

	byMode := map[types.AccountMode]int{}
	var active int
	for _, a := range accs {
		byMode[a.Mode]++
		if a.IsActive {
			active++
		}
		if a.Mode == types.AccountModeDemo && !a.Balance.Equal(decimal.NewFromInt(10000)) {
			t.Fatalf("demo balance = %s, want 10000", a.Balance)
		}
		if a.Mode == types.AccountModeLive && !a.Balance.IsZero() {
			t.Fatalf("live balance = %s, want 0", a.Balance)
		}
	}
	if byMode[types.AccountModeDemo] != 1 || byMode[types.AccountModeLive] != 1 {
		t.Fatalf("unexpected modes: %v", byMode)
	}
	if active != 1 {
		t.Fatalf("got %d active accounts, want 1", active)
	}

	// Second call must not duplicate.
	accs, err = svc.EnsureDefaultAccounts(ctx, "u1")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if len(accs) != 2 {
		t.Fatalf("after second ensure: %d accounts, want 2", len(accs))
	}
}

func TestResolveActiveAndByID(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	accs, _ := svc.EnsureDefaultAccounts(ctx, "u1")
	var demo, live string
	for _, a := range accs {
		if a.Mode == types.AccountModeDemo {
			demo = a.ID
		} else {
			live = a.ID
		}
	}

	// Default resolution picks the active (live) account.
	acc, err := svc.Resolve(ctx, "u1", "")
	if err != nil {
		t.Fatalf("resolve active: %v", err)
	}
	if acc.ID != live {
		t.Fatalf("active account = %s, want live %s", acc.ID, live)
	}

	// Explicit id wins.
	acc, err = svc.Resolve(ctx, "u1", demo)
	if err != nil {
		t.Fatalf("resolve by id: %v", err)
	}
	if acc.ID != demo {
		t.Fatalf("resolved %s, want %s", acc.ID, demo)
	}

	// Foreign accounts are refused.
	if _, err := svc.Resolve(ctx, "u2", demo); !apperr.IsForbidden(err) {
		t.Fatalf("want forbidden, got %v", err)
	}
	if _, err := svc.Resolve(ctx, "u1", "missing"); !apperr.IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestSetActiveSwitchesExactlyOne(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	accs, _ := svc.EnsureDefaultAccounts(ctx, "u1")
	var demo string
	for _, a := range accs {
		if a.Mode == types.AccountModeDemo {
			demo = a.ID
		}
	}

	if err := svc.SetActive(ctx, "u1", demo); err != nil {
		t.Fatalf("set active: %v", err)
	}
	accs, _ = svc.List(ctx, "u1")
	var active []string
	for _, a := range accs {
		if a.IsActive {
			active = append(active, a.ID)
		}
	}
	if len(active) != 1 || active[0] != demo {
		t.Fatalf("active accounts = %v, want [%s]", active, demo)
	}

	if err := svc.SetActive(ctx, "u1", "missing"); !apperr.IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestCreditBalanceGuardsNegative(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	acc, err := svc.Create(ctx, "u1", types.AccountModeLive, "Second live")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.CreditBalance(ctx, acc.ID, decimal.NewFromInt(50)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := svc.CreditBalance(ctx, acc.ID, decimal.NewFromInt(-60)); !apperr.IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
	got, _ := svc.Get(ctx, acc.ID)
	if !got.Balance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("balance = %s, want 50", got.Balance)
	}
}

func TestCreateValidatesMode(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Create(context.Background(), "u1", "margin", "X"); !apperr.IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
}
