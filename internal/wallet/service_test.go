package wallet

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lv-settle/internal/apperr"
	"lv-settle/internal/chart"
	"lv-settle/internal/ledger"
	"lv-settle/internal/store"
)

func newTestService() (*Service, *ledger.Service) {
	st := store.NewMemory()
	lg := ledger.NewService(st, zerolog.Nop())
	return NewService(st, lg, zerolog.Nop()), lg
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	w1, err := svc.GetOrCreate(ctx, "u1", "USD")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !w1.Balance.IsZero() {
		t.Fatalf("new wallet balance = %s, want 0", w1.Balance)
	}

	if err := svc.UpdateBalance(ctx, "u1", "USD", dec("50")); err != nil {
		t.Fatalf("update: %v", err)
	}
	w2, err := svc.GetOrCreate(ctx, "u1", "USD")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !w2.Balance.Equal(dec("50")) {
		t.Fatalf("balance after second get = %s, want 50", w2.Balance)
	}
}

func TestUpdateBalanceRejectsOverdraft(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if err := svc.UpdateBalance(ctx, "u1", "USD", dec("10")); err != nil {
		t.Fatalf("credit: %v", err)
	}
	err := svc.UpdateBalance(ctx, "u1", "USD", dec("-10.01"))
	if !apperr.IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
	w, _ := svc.Get(ctx, "u1", "USD")
	if !w.Balance.Equal(dec("10")) {
		t.Fatalf("balance after rejected overdraft = %s, want 10", w.Balance)
	}
}

func TestDepositTwoPhase(t *testing.T) {
	svc, lg := newTestService()
	ctx := context.Background()

	wt, err := svc.RequestDeposit(ctx, "u1", "USD", dec("100"), "card deposit")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// Phase one must not move money.
	w, _ := svc.Get(ctx, "u1", "USD")
	if !w.Balance.IsZero() {
		t.Fatalf("balance before confirm = %s, want 0", w.Balance)
	}

	confirmed, err := svc.ConfirmDeposit(ctx, wt.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.CompletedAt == nil {
		t.Fatal("confirmed transaction has no completion time")
	}

	w, _ = svc.Get(ctx, "u1", "USD")
	if !w.Balance.Equal(dec("100")) {
		t.Fatalf("balance after confirm = %s, want 100", w.Balance)
	}

	// The journal must agree with the wallet.
	lb, err := lg.GetBalance(ctx, "u1", chart.ClientWallet, nil)
	if err != nil {
		t.Fatalf("ledger balance: %v", err)
	}
	if !lb.Equal(dec("100")) {
		t.Fatalf("ledger balance = %s, want 100", lb)
	}

	// Second confirm must not double-apply.
	if _, err := svc.ConfirmDeposit(ctx, wt.ID); !apperr.IsConflict(err) {
		t.Fatalf("want conflict on double confirm, got %v", err)
	}
	w, _ = svc.Get(ctx, "u1", "USD")
	if !w.Balance.Equal(dec("100")) {
		t.Fatalf("balance after double confirm = %s, want 100", w.Balance)
	}
}

func TestWithdrawalLocksFunds(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	wt, _ := svc.RequestDeposit(ctx, "u1", "USD", dec("100"), "")
	if _, err := svc.ConfirmDeposit(ctx, wt.ID); err != nil {
		t.Fatalf("fund wallet: %v", err)
	}

	wd, err := svc.RequestWithdrawal(ctx, "u1", "USD", dec("60"), "bank transfer")
	if err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}

	w, _ := svc.Get(ctx, "u1", "USD")
	if !w.Balance.Equal(dec("40")) || !w.Locked.Equal(dec("60")) {
		t.Fatalf("after request: balance=%s locked=%s, want 40/60", w.Balance, w.Locked)
	}

	// Locked funds cannot be withdrawn again.
	if _, err := svc.RequestWithdrawal(ctx, "u1", "USD", dec("50"), ""); !apperr.IsValidation(err) {
		t.Fatalf("want validation error on double spend, got %v", err)
	}

	if _, err := svc.ConfirmWithdrawal(ctx, wd.ID); err != nil {
		t.Fatalf("confirm withdrawal: %v", err)
	}
	w, _ = svc.Get(ctx, "u1", "USD")
	if !w.Balance.Equal(dec("40")) || !w.Locked.IsZero() {
		t.Fatalf("after confirm: balance=%s locked=%s, want 40/0", w.Balance, w.Locked)
	}
}

func TestRejectWithdrawalReleasesLock(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	wt, _ := svc.RequestDeposit(ctx, "u1", "USD", dec("100"), "")
	if _, err := svc.ConfirmDeposit(ctx, wt.ID); err != nil {
		t.Fatalf("fund wallet: %v", err)
	}
	wd, _ := svc.RequestWithdrawal(ctx, "u1", "USD", dec("60"), "")

	if err := svc.RejectWithdrawal(ctx, wd.ID, "compliance hold"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	w, _ := svc.Get(ctx, "u1", "USD")
	if !w.Balance.Equal(dec("100")) || !w.Locked.IsZero() {
		t.Fatalf("after reject: balance=%s locked=%s, want 100/0", w.Balance, w.Locked)
	}
	got, _ := svc.store.GetWalletTransaction(ctx, wd.ID)
	if got.Status != "failed" {
		t.Fatalf("rejected withdrawal status = %s, want failed", got.Status)
	}

	// Confirming the failed withdrawal must not move money.
	if _, err := svc.ConfirmWithdrawal(ctx, wd.ID); !apperr.IsConflict(err) {
		t.Fatalf("want conflict, got %v", err)
	}
}

func TestTransferMovesBalancesAtomically(t *testing.T) {
	svc, lg := newTestService()
	ctx := context.Background()

	wt, _ := svc.RequestDeposit(ctx, "alice", "USD", dec("100"), "")
	if _, err := svc.ConfirmDeposit(ctx, wt.ID); err != nil {
		t.Fatalf("fund wallet: %v", err)
	}

	if _, err := svc.Transfer(ctx, "alice", "bob", "USD", dec("30")); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	a, _ := svc.Get(ctx, "alice", "USD")
	b, _ := svc.Get(ctx, "bob", "USD")
	if !a.Balance.Equal(dec("70")) || !b.Balance.Equal(dec("30")) {
		t.Fatalf("after transfer: alice=%s bob=%s, want 70/30", a.Balance, b.Balance)
	}

	// Ledger mirrors both sides.
	la, _ := lg.GetBalance(ctx, "alice", chart.ClientWallet, nil)
	lb, _ := lg.GetBalance(ctx, "bob", chart.ClientWallet, nil)
	if !la.Equal(dec("70")) || !lb.Equal(dec("30")) {
		t.Fatalf("ledger after transfer: alice=%s bob=%s, want 70/30", la, lb)
	}

	// A failing transfer leaves no partial state behind.
	if _, err := svc.Transfer(ctx, "alice", "bob", "USD", dec("1000")); !apperr.IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
	a, _ = svc.Get(ctx, "alice", "USD")
	if !a.Balance.Equal(dec("70")) {
		t.Fatalf("alice after failed transfer = %s, want 70", a.Balance)
	}
}

func TestTransferToSelfRejected(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Transfer(context.Background(), "u1", "u1", "USD", dec("5")); !apperr.IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestAdminCredit(t *testing.T) {
	svc, lg := newTestService()
	ctx := context.Background()

	wt, err := svc.AdminCredit(ctx, "u1", "USD", dec("25"), "goodwill")
	if err != nil {
		t.Fatalf("admin credit: %v", err)
	}
	if wt.Status != "completed" {
		t.Fatalf("admin credit status = %s, want completed", wt.Status)
	}

	w, _ := svc.Get(ctx, "u1", "USD")
	if !w.Balance.Equal(dec("25")) {
		t.Fatalf("balance = %s, want 25", w.Balance)
	}
	lb, _ := lg.GetBalance(ctx, "u1", chart.ClientWallet, nil)
	if !lb.Equal(dec("25")) {
		t.Fatalf("ledger balance = %s, want 25", lb)
	}
}
