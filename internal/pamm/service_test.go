package pamm

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lv-settle/internal/accounts"
	"lv-settle/internal/apperr"
	"lv-settle/internal/ib"
	"lv-settle/internal/ledger"
	"lv-settle/internal/notify"
	"lv-settle/internal/store"
	"lv-settle/internal/types"
)

func newTestService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	lg := ledger.NewService(st, zerolog.Nop())
	acc := accounts.NewService(st, zerolog.Nop())
	ibSvc := ib.NewService(st, lg, zerolog.Nop())
	return NewService(st, lg, acc, ibSvc, notify.Discard{}, zerolog.Nop()), st
}

func fundWallet(t *testing.T, st *store.Memory, userID, amount string) {
	t.Helper()
	ctx := context.Background()
	if _, err := st.EnsureWallet(ctx, userID, "USD"); err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}
	if err := st.IncrementWallet(ctx, userID, "USD", dec(amount), decimal.Zero); err != nil {
		t.Fatalf("fund wallet: %v", err)
	}
}

func walletBalance(t *testing.T, st *store.Memory, userID string) decimal.Decimal {
	t.Helper()
	w, err := st.GetWallet(context.Background(), userID, "USD")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w == nil {
		return decimal.Zero
	}
	return w.Balance
}

func TestCreateFundOnePerManager(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	fund, err := svc.CreateFund(ctx, "mgr", "Alpha", dec("20"), dec("100"))
	if err != nil {
		t.Fatalf("create fund: %v", err)
	}
	acc, err := st.GetTradingAccount(ctx, fund.AccountID)
	if err != nil || acc == nil {
		t.Fatalf("fund account missing: %v", err)
	}
	if acc.Mode != types.AccountModePamm {
		t.Fatalf("account mode = %s, want pamm", acc.Mode)
	}

	if _, err := svc.CreateFund(ctx, "mgr", "Beta", dec("10"), dec("100")); !apperr.IsConflict(err) {
		t.Fatalf("second fund err = %v, want conflict", err)
	}
	if _, err := svc.CreateFund(ctx, "other", "Gamma", dec("120"), dec("100")); !apperr.IsValidation(err) {
		t.Fatalf("fee over 100 err = %v, want validation", err)
	}
}

func TestAllocateMovesWalletMoney(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	fund, err := svc.CreateFund(ctx, "mgr", "Alpha", dec("20"), dec("100"))
	if err != nil {
		t.Fatalf("create fund: %v", err)
	}
	fundWallet(t, st, "inv", "500")

	alloc, err := svc.Allocate(ctx, "inv", fund.ID, dec("300"), "USD")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got := walletBalance(t, st, "inv"); got.String() != "200" {
		t.Fatalf("wallet after allocate = %s, want 200", got)
	}
	if alloc.AllocatedBalance.String() != "300" {
		t.Fatalf("allocated = %s, want 300", alloc.AllocatedBalance)
	}

	if _, err := svc.Allocate(ctx, "inv", fund.ID, dec("100"), "USD"); !apperr.IsConflict(err) {
		t.Fatalf("duplicate allocation err = %v, want conflict", err)
	}
	if _, err := svc.Allocate(ctx, "poor", fund.ID, dec("100"), "USD"); !apperr.IsValidation(err) {
		t.Fatalf("broke allocation err = %v, want validation", err)
	}
	if got := walletBalance(t, st, "inv"); got.String() != "200" {
		t.Fatalf("wallet changed by failed allocations: %s", got)
	}
	if _, err := svc.Allocate(ctx, "mgr", fund.ID, dec("100"), "USD"); !apperr.IsValidation(err) {
		t.Fatalf("manager self-allocation err = %v, want validation", err)
	}
}

func TestUnallocateReturnsPrincipal(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	fund, _ := svc.CreateFund(ctx, "mgr", "Alpha", dec("20"), dec("100"))
	fundWallet(t, st, "inv", "300")
	if _, err := svc.Allocate(ctx, "inv", fund.ID, dec("300"), "USD"); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	closed, err := svc.Unallocate(ctx, "inv", fund.ID, "USD")
	if err != nil {
		t.Fatalf("unallocate: %v", err)
	}
	if closed.Status != types.AllocationStatusClosed || closed.ClosedAt == nil {
		t.Fatalf("allocation not closed: %+v", closed)
	}
	if got := walletBalance(t, st, "inv"); got.String() != "300" {
		t.Fatalf("wallet after unallocate = %s, want 300", got)
	}
	if _, err := svc.Unallocate(ctx, "inv", fund.ID, "USD"); !apperr.IsNotFound(err) {
		t.Fatalf("second unallocate err = %v, want not found", err)
	}
}

func TestManagerCapitalRoundTrip(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	fund, _ := svc.CreateFund(ctx, "mgr", "Alpha", dec("20"), dec("100"))
	fundWallet(t, st, "mgr", "1000")

	fund, err := svc.ManagerCapitalIn(ctx, "mgr", dec("800"), "USD")
	if err != nil {
		t.Fatalf("capital in: %v", err)
	}
	if fund.CurrentDeposit.String() != "800" {
		t.Fatalf("fund deposit = %s, want 800", fund.CurrentDeposit)
	}
	acc, _ := st.GetTradingAccount(ctx, fund.AccountID)
	if acc.Balance.String() != "800" {
		t.Fatalf("account balance = %s, want 800", acc.Balance)
	}
	if got := walletBalance(t, st, "mgr"); got.String() != "200" {
		t.Fatalf("wallet = %s, want 200", got)
	}

	if _, err := svc.ManagerCapitalOut(ctx, "mgr", dec("900"), "USD"); !apperr.IsValidation(err) {
		t.Fatalf("overdraw capital err = %v, want validation", err)
	}
	fund, err = svc.ManagerCapitalOut(ctx, "mgr", dec("300"), "USD")
	if err != nil {
		t.Fatalf("capital out: %v", err)
	}
	if fund.CurrentDeposit.String() != "500" {
		t.Fatalf("fund deposit = %s, want 500", fund.CurrentDeposit)
	}
	if got := walletBalance(t, st, "mgr"); got.String() != "500" {
		t.Fatalf("wallet = %s, want 500", got)
	}
}

func TestDistributePnlProfit(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	fund, _ := svc.CreateFund(ctx, "mgr", "Alpha", dec("20"), dec("100"))
	fundWallet(t, st, "mgr", "2000")
	fundWallet(t, st, "inv1", "2000")
	fundWallet(t, st, "inv2", "2000")
	if _, err := svc.ManagerCapitalIn(ctx, "mgr", dec("2000"), "USD"); err != nil {
		t.Fatalf("capital in: %v", err)
	}
	if _, err := svc.Allocate(ctx, "inv1", fund.ID, dec("2000"), "USD"); err != nil {
		t.Fatalf("allocate inv1: %v", err)
	}
	if _, err := svc.Allocate(ctx, "inv2", fund.ID, dec("2000"), "USD"); err != nil {
		t.Fatalf("allocate inv2: %v", err)
	}

	if err := svc.DistributePnl(ctx, "mgr", fund.AccountID, "pos-1", dec("200"), dec("1"), "USD"); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	// Manager: 40 fee to the wallet, 53.33 share on the fund account.
	if got := walletBalance(t, st, "mgr"); got.String() != "40" {
		t.Fatalf("manager wallet = %s, want 40", got)
	}
	acc, _ := st.GetTradingAccount(ctx, fund.AccountID)
	if acc.Balance.String() != "2053.33" {
		t.Fatalf("fund account = %s, want 2053.33", acc.Balance)
	}
	for _, inv := range []string{"inv1", "inv2"} {
		if got := walletBalance(t, st, inv); got.String() != "53.33" {
			t.Fatalf("%s wallet = %s, want 53.33", inv, got)
		}
	}
	alloc, err := st.GetActivePammAllocation(ctx, fund.ID, "inv1")
	if err != nil || alloc == nil {
		t.Fatalf("allocation missing: %v", err)
	}
	if alloc.RealizedPnl.String() != "53.33" {
		t.Fatalf("realized pnl = %s, want 53.33", alloc.RealizedPnl)
	}
	if !alloc.AllocatedBalance.Equal(dec("2000")) {
		t.Fatalf("principal changed: %s", alloc.AllocatedBalance)
	}

	// Retrying the same position changes nothing.
	if err := svc.DistributePnl(ctx, "mgr", fund.AccountID, "pos-1", dec("200"), dec("1"), "USD"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := walletBalance(t, st, "inv1"); got.String() != "53.33" {
		t.Fatalf("retry changed inv1 wallet: %s", got)
	}
	if got := walletBalance(t, st, "mgr"); got.String() != "40" {
		t.Fatalf("retry changed manager wallet: %s", got)
	}
}

func TestDistributePnlLoss(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	fund, _ := svc.CreateFund(ctx, "mgr", "Alpha", dec("20"), dec("100"))
	fundWallet(t, st, "mgr", "1000")
	fundWallet(t, st, "inv", "2100")
	if _, err := svc.ManagerCapitalIn(ctx, "mgr", dec("1000"), "USD"); err != nil {
		t.Fatalf("capital in: %v", err)
	}
	if _, err := svc.Allocate(ctx, "inv", fund.ID, dec("2000"), "USD"); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	if err := svc.DistributePnl(ctx, "mgr", fund.AccountID, "pos-loss", dec("-90"), dec("1"), "USD"); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	// No fee on losses; shares go negative and are debited from wallets.
	if got := walletBalance(t, st, "mgr"); !got.IsZero() {
		t.Fatalf("manager wallet = %s, want 0", got)
	}
	acc, _ := st.GetTradingAccount(ctx, fund.AccountID)
	if acc.Balance.String() != "970" {
		t.Fatalf("fund account = %s, want 970", acc.Balance)
	}
	if got := walletBalance(t, st, "inv"); got.String() != "40" {
		t.Fatalf("investor wallet = %s, want 40", got)
	}
	alloc, _ := st.GetActivePammAllocation(ctx, fund.ID, "inv")
	if alloc.RealizedPnl.String() != "-60" {
		t.Fatalf("realized pnl = %s, want -60", alloc.RealizedPnl)
	}
}

func TestDistributePnlNoCapital(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	fund, _ := svc.CreateFund(ctx, "mgr", "Alpha", dec("20"), dec("100"))
	if err := svc.DistributePnl(ctx, "mgr", fund.AccountID, "pos-1", dec("100"), dec("1"), "USD"); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if got := walletBalance(t, st, "mgr"); !got.IsZero() {
		t.Fatalf("manager wallet = %s, want 0", got)
	}
}
