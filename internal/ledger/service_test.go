package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lv-settle/internal/apperr"
	"lv-settle/internal/chart"
	"lv-settle/internal/model"
	"lv-settle/internal/store"
)

func newTestService() (*Service, *store.Memory) {
	st := store.NewMemory()
	return NewService(st, zerolog.Nop()), st
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPostValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	entry := func(code string, debit, credit string) model.LedgerEntry {
		return model.LedgerEntry{
			AccountCode: code,
			EntityID:    "u1",
			Debit:       dec(debit),
			Credit:      dec(credit),
			Currency:    "USD",
		}
	}

	cases := []struct {
		name    string
		entries []model.LedgerEntry
	}{
		{"single leg", []model.LedgerEntry{entry(chart.CashBank, "10", "0")}},
		{"unknown code", []model.LedgerEntry{
			entry("9999", "10", "0"),
			entry(chart.ClientWallet, "0", "10"),
		}},
		{"unbalanced", []model.LedgerEntry{
			entry(chart.CashBank, "10", "0"),
			entry(chart.ClientWallet, "0", "9.50"),
		}},
		{"both sides on one leg", []model.LedgerEntry{
			{AccountCode: chart.CashBank, EntityID: "u1", Debit: dec("10"), Credit: dec("10"), Currency: "USD"},
			entry(chart.ClientWallet, "0", "10"),
		}},
		{"negative amount", []model.LedgerEntry{
			entry(chart.CashBank, "-10", "0"),
			entry(chart.ClientWallet, "0", "-10"),
		}},
		{"missing currency", []model.LedgerEntry{
			{AccountCode: chart.CashBank, EntityID: "u1", Debit: dec("10")},
			entry(chart.ClientWallet, "0", "10"),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Post(ctx, tc.entries)
			if !apperr.IsValidation(err) {
				t.Fatalf("want validation error, got %v", err)
			}
		})
	}
}

func TestPostToleratesSubCentImbalance(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	ids, err := svc.Post(ctx, []model.LedgerEntry{
		{AccountCode: chart.CashBank, EntityID: "u1", Debit: dec("10.0005"), Currency: "USD"},
		{AccountCode: chart.ClientWallet, EntityID: "u1", Credit: dec("10"), Currency: "USD"},
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if len(ids) != 2 || ids[0] == "" || ids[1] == "" {
		t.Fatalf("want 2 generated ids, got %v", ids)
	}
}

func TestDepositAndBalance(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.RecordDeposit(ctx, "u1", dec("100"), "USD", "dep-1"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Wallet is credit-normal: a 100 credit is a +100 balance.
	got, err := svc.GetBalance(ctx, "u1", chart.ClientWallet, nil)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !got.Equal(dec("100")) {
		t.Fatalf("wallet balance = %s, want 100", got)
	}

	// Cash/Bank is debit-normal and belongs to the system entity.
	got, err = svc.GetBalance(ctx, SystemEntity, chart.CashBank, nil)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !got.Equal(dec("100")) {
		t.Fatalf("cash balance = %s, want 100", got)
	}
}

func TestWithdrawalReversesDeposit(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.RecordDeposit(ctx, "u1", dec("100"), "USD", "dep-1"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.RecordWithdrawal(ctx, "u1", dec("40"), "USD", "wd-1"); err != nil {
		t.Fatalf("withdrawal: %v", err)
	}

	got, err := svc.GetBalance(ctx, "u1", chart.ClientWallet, nil)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !got.Equal(dec("60")) {
		t.Fatalf("wallet balance = %s, want 60", got)
	}
}

func TestTradePnlSignsAndPeriodQuery(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.RecordTradePnl(ctx, "u1", dec("150"), "USD", "pos-1"); err != nil {
		t.Fatalf("profit: %v", err)
	}
	if _, err := svc.RecordTradePnl(ctx, "u1", dec("-30"), "USD", "pos-2"); err != nil {
		t.Fatalf("loss: %v", err)
	}
	ids, err := svc.RecordTradePnl(ctx, "u1", decimal.Zero, "USD", "pos-3")
	if err != nil || ids != nil {
		t.Fatalf("zero pnl should be a no-op, got ids=%v err=%v", ids, err)
	}

	now := time.Now().UTC()
	pnl, err := svc.GetPnlForPeriod(ctx, "u1", now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("pnl: %v", err)
	}
	if !pnl.Equal(dec("120")) {
		t.Fatalf("period pnl = %s, want 120", pnl)
	}

	// Outside the window nothing is counted.
	pnl, err = svc.GetPnlForPeriod(ctx, "u1", now.Add(time.Hour), now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("pnl: %v", err)
	}
	if !pnl.IsZero() {
		t.Fatalf("out-of-window pnl = %s, want 0", pnl)
	}
}

func TestGetBalancesGroupsByCode(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.RecordDeposit(ctx, "u1", dec("100"), "USD", "dep-1"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.RecordTradePnl(ctx, "u1", dec("25"), "USD", "pos-1"); err != nil {
		t.Fatalf("pnl: %v", err)
	}

	balances, err := svc.GetBalances(ctx, "u1", nil)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	byCode := map[string]decimal.Decimal{}
	for _, b := range balances {
		byCode[b.AccountCode] = b.Balance
	}
	if !byCode[chart.ClientWallet].Equal(dec("125")) {
		t.Fatalf("wallet = %s, want 125", byCode[chart.ClientWallet])
	}
	// Trading P&L is credit-normal; a 25 profit shows as +25.
	if !byCode[chart.TradingPnl].Equal(dec("25")) {
		t.Fatalf("trading pnl = %s, want 25", byCode[chart.TradingPnl])
	}
}

func TestPammPostingsCarryFundID(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()

	if _, err := svc.RecordPammAllocation(ctx, "inv1", dec("500"), "USD", "fund-1", "alloc-1"); err != nil {
		t.Fatalf("allocation: %v", err)
	}

	sums, err := st.ListLedgerSums(ctx, "inv1", nil)
	if err != nil {
		t.Fatalf("sums: %v", err)
	}
	if len(sums) != 1 || sums[0].AccountCode != chart.ClientWallet {
		t.Fatalf("unexpected sums: %+v", sums)
	}
	// Allocation debits the investor wallet.
	if !sums[0].Debit.Equal(dec("500")) {
		t.Fatalf("debit = %s, want 500", sums[0].Debit)
	}
}
