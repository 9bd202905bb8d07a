package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lv-settle/internal/accounts"
	"lv-settle/internal/apperr"
	"lv-settle/internal/chart"
	"lv-settle/internal/ledger"
	"lv-settle/internal/model"
	"lv-settle/internal/risk"
	"lv-settle/internal/store"
	"lv-settle/internal/types"
)

type testEnv struct {
	svc    *Service
	store  *store.Memory
	ledger *ledger.Service
	acc    *accounts.Service
	gate   *risk.Gate
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemory()
	lg := ledger.NewService(st, zerolog.Nop())
	acc := accounts.NewService(st, zerolog.Nop())
	gate := risk.NewGate(st, lg, decimal.Zero, zerolog.Nop())
	return &testEnv{
		svc:    NewService(st, lg, acc, gate, zerolog.Nop()),
		store:  st,
		ledger: lg,
		acc:    acc,
		gate:   gate,
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// openOn opens a position on the given account mode for the user, creating
// the default accounts first.
func (e *testEnv) openOn(t *testing.T, userID string, mode types.AccountMode, symbol string, side types.PositionSide, volume, price string) *model.Position {
	t.Helper()
	ctx := context.Background()
	accs, err := e.acc.EnsureDefaultAccounts(ctx, userID)
	if err != nil {
		t.Fatalf("ensure accounts: %v", err)
	}
	var accountID string
	for _, a := range accs {
		if a.Mode == mode {
			accountID = a.ID
		}
	}
	if accountID == "" {
		t.Fatalf("no %s account", mode)
	}
	pos, err := e.svc.Open(ctx, OpenRequest{
		UserID:    userID,
		AccountID: accountID,
		Symbol:    symbol,
		Side:      side,
		Volume:    dec(volume),
		OpenPrice: dec(price),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return pos
}

func TestCloseLiveFullWithClosePrice(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	pos := e.openOn(t, "alice", types.AccountModeLive, "EURUSD", types.PositionSideBuy, "0.1", "1.1000")

	res, err := e.svc.ClosePosition(ctx, "alice", "USD", CloseRequest{
		PositionID: pos.ID,
		ClosePrice: decPtr("1.1050"),
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	// 100000 * 0.1 * 0.0050 = 50
	if res.Pnl.String() != "50" {
		t.Fatalf("pnl = %s, want 50", res.Pnl)
	}
	if res.Mode != types.AccountModeLive || res.Partial {
		t.Fatalf("routing = %s partial=%v", res.Mode, res.Partial)
	}
	if !res.Position.Closed() {
		t.Fatal("position not terminal")
	}

	w, err := e.store.GetWallet(ctx, "alice", "USD")
	if err != nil || w == nil {
		t.Fatalf("wallet missing: %v", err)
	}
	if w.Balance.String() != "50" {
		t.Fatalf("wallet = %s, want 50", w.Balance)
	}
	bal, err := e.ledger.GetBalance(ctx, "alice", chart.ClientWallet, nil)
	if err != nil {
		t.Fatalf("ledger balance: %v", err)
	}
	if bal.String() != "50" {
		t.Fatalf("ledger wallet balance = %s, want 50", bal)
	}
	txs, err := e.store.ListWalletTransactions(ctx, "alice", "USD", 10)
	if err != nil || len(txs) != 1 {
		t.Fatalf("wallet txs = %d (%v), want 1", len(txs), err)
	}
	if txs[0].Type != types.TransactionTypeTrade || txs[0].ReferenceID != pos.ID {
		t.Fatalf("unexpected wallet tx: %+v", txs[0])
	}

	// No processors registered: both downstream effects stay pending.
	if len(res.Effects) != 2 {
		t.Fatalf("effects = %d, want 2", len(res.Effects))
	}
	for _, eff := range res.Effects {
		if eff.Status != "pending" {
			t.Fatalf("effect %s status = %s, want pending", eff.Kind, eff.Status)
		}
	}
}

func TestCloseLiveLossOverdrawsWallet(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	pos := e.openOn(t, "alice", types.AccountModeLive, "EURUSD", types.PositionSideBuy, "0.1", "1.1000")
	if _, err := e.store.EnsureWallet(ctx, "alice", "USD"); err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}
	if err := e.store.IncrementWallet(ctx, "alice", "USD", dec("10"), decimal.Zero); err != nil {
		t.Fatalf("fund wallet: %v", err)
	}
	if _, err := e.ledger.RecordDeposit(ctx, "alice", dec("10"), "USD", "seed"); err != nil {
		t.Fatalf("record deposit: %v", err)
	}

	// 100000 * 0.1 * -0.0050 = -50, more than the 10 on the wallet.
	res, err := e.svc.ClosePosition(ctx, "alice", "USD", CloseRequest{
		PositionID: pos.ID,
		ClosePrice: decPtr("1.0950"),
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if res.Pnl.String() != "-50" {
		t.Fatalf("pnl = %s, want -50", res.Pnl)
	}
	if !res.Position.Closed() {
		t.Fatal("position not terminal")
	}

	w, err := e.store.GetWallet(ctx, "alice", "USD")
	if err != nil || w == nil {
		t.Fatalf("wallet missing: %v", err)
	}
	if w.Balance.String() != "-40" {
		t.Fatalf("wallet = %s, want -40", w.Balance)
	}
	// The journal carries the full loss too, so wallet and ledger agree.
	bal, err := e.ledger.GetBalance(ctx, "alice", chart.ClientWallet, nil)
	if err != nil {
		t.Fatalf("ledger balance: %v", err)
	}
	if bal.String() != "-40" {
		t.Fatalf("ledger wallet balance = %s, want -40", bal)
	}
}

func TestClosePartialMovesNoMoney(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	pos := e.openOn(t, "alice", types.AccountModeLive, "EURUSD", types.PositionSideBuy, "1", "1.1000")

	res, err := e.svc.ClosePosition(ctx, "alice", "USD", CloseRequest{
		PositionID: pos.ID,
		Volume:     decPtr("0.4"),
	})
	if err != nil {
		t.Fatalf("partial close: %v", err)
	}
	if !res.Partial {
		t.Fatal("expected partial close")
	}
	if res.Position.Volume.String() != "0.6" || res.Position.ClosedVolume.String() != "0.4" {
		t.Fatalf("volumes = %s/%s, want 0.6/0.4", res.Position.Volume, res.Position.ClosedVolume)
	}
	if res.Position.Closed() {
		t.Fatal("partial close must not be terminal")
	}
	if w, _ := e.store.GetWallet(ctx, "alice", "USD"); w != nil {
		t.Fatalf("partial close touched the wallet: %+v", w)
	}

	// Closing the remainder with a price recomputes over the remaining
	// volume only.
	res, err = e.svc.ClosePosition(ctx, "alice", "USD", CloseRequest{
		PositionID: pos.ID,
		ClosePrice: decPtr("1.1100"),
	})
	if err != nil {
		t.Fatalf("final close: %v", err)
	}
	// 100000 * 0.6 * 0.0100 = 600
	if res.Pnl.String() != "600" {
		t.Fatalf("pnl = %s, want 600", res.Pnl)
	}
}

func TestCloseDemoTouchesOnlyPracticeBalance(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	pos := e.openOn(t, "bob", types.AccountModeDemo, "GOLD", types.PositionSideSell, "1", "2400")

	res, err := e.svc.ClosePosition(ctx, "bob", "USD", CloseRequest{
		PositionID: pos.ID,
		ClosePrice: decPtr("2390"),
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	// Gold contract size 100: 100 * 1 * (2390-2400) * -1 = 1000
	if res.Pnl.String() != "1000" {
		t.Fatalf("pnl = %s, want 1000", res.Pnl)
	}
	acc, _ := e.store.GetTradingAccount(ctx, pos.AccountID)
	if acc.Balance.String() != "11000" {
		t.Fatalf("demo balance = %s, want 11000", acc.Balance)
	}
	if w, _ := e.store.GetWallet(ctx, "bob", "USD"); w != nil {
		t.Fatal("demo close touched the wallet")
	}
	if bal, _ := e.ledger.GetBalance(ctx, "bob", chart.ClientWallet, nil); !bal.IsZero() {
		t.Fatalf("demo close posted to the ledger: %s", bal)
	}
	if len(res.Effects) != 0 {
		t.Fatalf("demo close produced effects: %+v", res.Effects)
	}
}

func TestCloseDemoLossFloorsAtZero(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	pos := e.openOn(t, "bob", types.AccountModeDemo, "EURUSD", types.PositionSideBuy, "2", "1.2000")

	_, err := e.svc.ClosePosition(ctx, "bob", "USD", CloseRequest{
		PositionID: pos.ID,
		Pnl:        decPtr("-9000"),
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	acc, _ := e.store.GetTradingAccount(ctx, pos.AccountID)
	if acc.Balance.String() != "1000" {
		t.Fatalf("demo balance = %s, want 1000", acc.Balance)
	}

	// A loss bigger than what is left floors the account at zero instead of
	// going negative.
	pos2 := e.openOn(t, "bob", types.AccountModeDemo, "EURUSD", types.PositionSideBuy, "1", "1.2000")
	if _, err := e.svc.ClosePosition(ctx, "bob", "USD", CloseRequest{
		PositionID: pos2.ID,
		Pnl:        decPtr("-2500"),
	}); err != nil {
		t.Fatalf("close: %v", err)
	}
	acc, _ = e.store.GetTradingAccount(ctx, pos2.AccountID)
	if !acc.Balance.IsZero() {
		t.Fatalf("demo balance = %s, want 0 floor", acc.Balance)
	}
}

func TestClosePammDelegatesToDistribution(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if _, err := e.acc.EnsureDefaultAccounts(ctx, "mgr"); err != nil {
		t.Fatalf("ensure accounts: %v", err)
	}
	acc, err := e.acc.Create(ctx, "mgr", types.AccountModePamm, "Alpha")
	if err != nil {
		t.Fatalf("create pamm account: %v", err)
	}
	pos, err := e.svc.Open(ctx, OpenRequest{
		UserID: "mgr", AccountID: acc.ID, Symbol: "EURUSD",
		Side: types.PositionSideBuy, Volume: dec("0.5"), OpenPrice: dec("1.1000"),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var got PammDistributionPayload
	e.svc.Register(types.OutboxKindPammDistribution, func(ctx context.Context, payload []byte) error {
		return json.Unmarshal(payload, &got)
	})

	res, err := e.svc.ClosePosition(ctx, "mgr", "USD", CloseRequest{
		PositionID: pos.ID,
		ClosePrice: decPtr("1.1040"),
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if res.Mode != types.AccountModePamm {
		t.Fatalf("mode = %s, want pamm", res.Mode)
	}
	if len(res.Effects) != 1 || res.Effects[0].Status != "settled" {
		t.Fatalf("effects = %+v, want one settled pamm_distribution", res.Effects)
	}
	// 100000 * 0.5 * 0.0040 = 200
	if got.Pnl.String() != "200" || got.AccountID != acc.ID || got.PositionID != pos.ID {
		t.Fatalf("payload = %+v", got)
	}
	// Delegation itself moves nothing.
	if w, _ := e.store.GetWallet(ctx, "mgr", "USD"); w != nil {
		t.Fatal("pamm close touched the wallet")
	}
	accAfter, _ := e.store.GetTradingAccount(ctx, acc.ID)
	if !accAfter.Balance.IsZero() {
		t.Fatalf("pamm close touched the account: %s", accAfter.Balance)
	}
}

func TestCloseBlockedUserAbortsBeforeMutation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	pos := e.openOn(t, "mallory", types.AccountModeLive, "EURUSD", types.PositionSideBuy, "0.1", "1.1000")

	if err := e.gate.Block(ctx, "mallory", "fraud review"); err != nil {
		t.Fatalf("block: %v", err)
	}
	_, err := e.svc.ClosePosition(ctx, "mallory", "USD", CloseRequest{
		PositionID: pos.ID,
		ClosePrice: decPtr("1.1050"),
	})
	if !apperr.IsForbidden(err) {
		t.Fatalf("close err = %v, want forbidden", err)
	}
	after, _ := e.store.GetPosition(ctx, pos.ID)
	if after.Closed() {
		t.Fatal("rejected close still closed the position")
	}
	if w, _ := e.store.GetWallet(ctx, "mallory", "USD"); w != nil {
		t.Fatal("rejected close touched the wallet")
	}
}

func TestCloseValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	pos := e.openOn(t, "alice", types.AccountModeLive, "EURUSD", types.PositionSideBuy, "1", "1.1000")

	if _, err := e.svc.ClosePosition(ctx, "eve", "USD", CloseRequest{PositionID: pos.ID}); !apperr.IsForbidden(err) {
		t.Fatalf("foreign close err = %v, want forbidden", err)
	}
	if _, err := e.svc.ClosePosition(ctx, "alice", "USD", CloseRequest{PositionID: "nope"}); !apperr.IsNotFound(err) {
		t.Fatalf("missing position err = %v, want not found", err)
	}
	if _, err := e.svc.ClosePosition(ctx, "alice", "USD", CloseRequest{
		PositionID: pos.ID, Volume: decPtr("1.5"),
	}); !apperr.IsValidation(err) {
		t.Fatalf("oversized volume err = %v, want validation", err)
	}

	if _, err := e.svc.ClosePosition(ctx, "alice", "USD", CloseRequest{PositionID: pos.ID}); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := e.svc.ClosePosition(ctx, "alice", "USD", CloseRequest{PositionID: pos.ID}); !apperr.IsConflict(err) {
		t.Fatalf("double close err = %v, want conflict", err)
	}
}

func TestOutboxDrainRetriesPending(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	pos := e.openOn(t, "alice", types.AccountModeLive, "EURUSD", types.PositionSideBuy, "0.1", "1.1000")

	// First attempt fails synchronously, leaving the item pending with one
	// recorded attempt.
	calls := 0
	e.svc.Register(types.OutboxKindIBCascade, func(ctx context.Context, payload []byte) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		var p IBCascadePayload
		return json.Unmarshal(payload, &p)
	})
	e.svc.Register(types.OutboxKindNotify, func(ctx context.Context, payload []byte) error { return nil })

	res, err := e.svc.ClosePosition(ctx, "alice", "USD", CloseRequest{
		PositionID: pos.ID,
		ClosePrice: decPtr("1.1010"),
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	var cascade *Effect
	for i := range res.Effects {
		if res.Effects[i].Kind == types.OutboxKindIBCascade {
			cascade = &res.Effects[i]
		}
	}
	if cascade == nil || cascade.Status != "pending" {
		t.Fatalf("cascade effect = %+v, want pending", cascade)
	}

	w := NewWorker(e.svc, 0)
	w.Drain(ctx)
	if calls != 2 {
		t.Fatalf("processor calls = %d, want 2", calls)
	}
	// Queue now empty: another drain claims nothing.
	w.Drain(ctx)
	if calls != 2 {
		t.Fatalf("drain re-ran a done item: calls = %d", calls)
	}
}
