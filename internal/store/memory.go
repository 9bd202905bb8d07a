package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"lv-settle/internal/model"
	"lv-settle/internal/types"
)

type memState struct {
	mu   sync.Mutex
	txMu sync.Mutex

	ledger      []model.LedgerEntry
	wallets     map[string]model.Wallet // userID + "/" + currency
	walletTxs   map[string]model.WalletTransaction
	accounts    map[string]model.TradingAccount
	positions   map[string]model.Position
	funds       map[string]model.PammFund
	allocs      map[string]model.PammAllocation
	pammTrades  map[string]model.PammTrade // keyed by position id
	ibProfiles  map[string]model.IBProfile
	ibComms     map[string]model.IBCommission
	ibCommKeys  map[string]bool // ibID + "/" + tradeID
	ibPayouts   map[string]model.IBPayout
	outbox      map[string]model.OutboxItem
	blocked     map[string]string
}

// Memory is an in-process Store used by the test suite. Atomic blocks are
// serialized and rolled back on error via a full-state snapshot.
type Memory struct {
	st   *memState
	inTx bool
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{st: &memState{
		wallets:    map[string]model.Wallet{},
		walletTxs:  map[string]model.WalletTransaction{},
		accounts:   map[string]model.TradingAccount{},
		positions:  map[string]model.Position{},
		funds:      map[string]model.PammFund{},
		allocs:     map[string]model.PammAllocation{},
		pammTrades: map[string]model.PammTrade{},
		ibProfiles: map[string]model.IBProfile{},
		ibComms:    map[string]model.IBCommission{},
		ibCommKeys: map[string]bool{},
		ibPayouts:  map[string]model.IBPayout{},
		outbox:     map[string]model.OutboxItem{},
		blocked:    map[string]string{},
	}}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (st *memState) snapshot() *memState {
	return &memState{
		ledger:     append([]model.LedgerEntry(nil), st.ledger...),
		wallets:    copyMap(st.wallets),
		walletTxs:  copyMap(st.walletTxs),
		accounts:   copyMap(st.accounts),
		positions:  copyMap(st.positions),
		funds:      copyMap(st.funds),
		allocs:     copyMap(st.allocs),
		pammTrades: copyMap(st.pammTrades),
		ibProfiles: copyMap(st.ibProfiles),
		ibComms:    copyMap(st.ibComms),
		ibCommKeys: copyMap(st.ibCommKeys),
		ibPayouts:  copyMap(st.ibPayouts),
		outbox:     copyMap(st.outbox),
		blocked:    copyMap(st.blocked),
	}
}

func (st *memState) restore(snap *memState) {
	st.ledger = snap.ledger
	st.wallets = snap.wallets
	st.walletTxs = snap.walletTxs
	st.accounts = snap.accounts
	st.positions = snap.positions
	st.funds = snap.funds
	st.allocs = snap.allocs
	st.pammTrades = snap.pammTrades
	st.ibProfiles = snap.ibProfiles
	st.ibComms = snap.ibComms
	st.ibCommKeys = snap.ibCommKeys
	st.ibPayouts = snap.ibPayouts
	st.outbox = snap.outbox
	st.blocked = snap.blocked
}

func (m *Memory) Atomic(ctx context.Context, fn func(Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.st.txMu.Lock()
	defer m.st.txMu.Unlock()

	m.st.mu.Lock()
	snap := m.st.snapshot()
	m.st.mu.Unlock()

	if err := fn(&Memory{st: m.st, inTx: true}); err != nil {
		m.st.mu.Lock()
		m.st.restore(snap)
		m.st.mu.Unlock()
		return err
	}
	return nil
}

// --- Immutable journal ---

func (m *Memory) InsertLedgerEntries(ctx context.Context, entries []model.LedgerEntry) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	m.st.ledger = append(m.st.ledger, entries...)
	return nil
}

func (m *Memory) SumLedger(ctx context.Context, entityID, accountCode, currency string, asOf *time.Time) (decimal.Decimal, decimal.Decimal, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	debit, credit := decimal.Zero, decimal.Zero
	for _, e := range m.st.ledger {
		if e.EntityID != entityID || e.AccountCode != accountCode {
			continue
		}
		if currency != "" && e.Currency != currency {
			continue
		}
		if asOf != nil && e.CreatedAt.After(*asOf) {
			continue
		}
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	return debit, credit, nil
}

func (m *Memory) SumLedgerWindow(ctx context.Context, entityID, accountCode string, from, to time.Time) (decimal.Decimal, decimal.Decimal, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	debit, credit := decimal.Zero, decimal.Zero
	for _, e := range m.st.ledger {
		if e.EntityID != entityID || e.AccountCode != accountCode {
			continue
		}
		if e.CreatedAt.Before(from) || e.CreatedAt.After(to) {
			continue
		}
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	return debit, credit, nil
}

func (m *Memory) ListLedgerSums(ctx context.Context, entityID string, asOf *time.Time) ([]LedgerSum, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	byCode := map[string]*LedgerSum{}
	for _, e := range m.st.ledger {
		if e.EntityID != entityID {
			continue
		}
		if asOf != nil && e.CreatedAt.After(*asOf) {
			continue
		}
		ls, ok := byCode[e.AccountCode]
		if !ok {
			ls = &LedgerSum{AccountCode: e.AccountCode}
			byCode[e.AccountCode] = ls
		}
		ls.Debit = ls.Debit.Add(e.Debit)
		ls.Credit = ls.Credit.Add(e.Credit)
	}
	out := make([]LedgerSum, 0, len(byCode))
	for _, ls := range byCode {
		out = append(out, *ls)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountCode < out[j].AccountCode })
	return out, nil
}

// --- Wallets ---

func walletKey(userID, currency string) string { return userID + "/" + currency }

func (m *Memory) GetWallet(ctx context.Context, userID, currency string) (*model.Wallet, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	w, ok := m.st.wallets[walletKey(userID, currency)]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (m *Memory) EnsureWallet(ctx context.Context, userID, currency string) (*model.Wallet, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	key := walletKey(userID, currency)
	w, ok := m.st.wallets[key]
	if !ok {
		w = model.Wallet{
			UserID:    userID,
			Currency:  currency,
			Balance:   decimal.Zero,
			Locked:    decimal.Zero,
			UpdatedAt: time.Now().UTC(),
		}
		m.st.wallets[key] = w
	}
	return &w, nil
}

func (m *Memory) IncrementWallet(ctx context.Context, userID, currency string, balanceDelta, lockedDelta decimal.Decimal) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	key := walletKey(userID, currency)
	w, ok := m.st.wallets[key]
	if !ok {
		return ErrInsufficientFunds
	}
	newBalance := w.Balance.Add(balanceDelta)
	newLocked := w.Locked.Add(lockedDelta)
	if newBalance.IsNegative() || newLocked.IsNegative() {
		return ErrInsufficientFunds
	}
	w.Balance = newBalance
	w.Locked = newLocked
	w.UpdatedAt = time.Now().UTC()
	m.st.wallets[key] = w
	return nil
}

func (m *Memory) SettleWallet(ctx context.Context, userID, currency string, delta decimal.Decimal) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	key := walletKey(userID, currency)
	w, ok := m.st.wallets[key]
	if !ok {
		return ErrNotFound
	}
	w.Balance = w.Balance.Add(delta)
	w.UpdatedAt = time.Now().UTC()
	m.st.wallets[key] = w
	return nil
}

func (m *Memory) ListWallets(ctx context.Context) ([]model.Wallet, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	out := make([]model.Wallet, 0, len(m.st.wallets))
	for _, w := range m.st.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Currency < out[j].Currency
	})
	return out, nil
}

func (m *Memory) InsertWalletTransaction(ctx context.Context, wt model.WalletTransaction) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	m.st.walletTxs[wt.ID] = wt
	return nil
}

func (m *Memory) GetWalletTransaction(ctx context.Context, id string) (*model.WalletTransaction, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	wt, ok := m.st.walletTxs[id]
	if !ok {
		return nil, nil
	}
	return &wt, nil
}

func (m *Memory) CompleteWalletTransaction(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	wt, ok := m.st.walletTxs[id]
	if !ok || wt.Status != types.TransactionStatusPending {
		return false, nil
	}
	wt.Status = types.TransactionStatusCompleted
	wt.CompletedAt = &completedAt
	m.st.walletTxs[id] = wt
	return true, nil
}

func (m *Memory) FailWalletTransaction(ctx context.Context, id, reason string) (bool, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	wt, ok := m.st.walletTxs[id]
	if !ok || wt.Status != types.TransactionStatusPending {
		return false, nil
	}
	wt.Status = types.TransactionStatusFailed
	wt.Description = wt.Description + " (" + reason + ")"
	m.st.walletTxs[id] = wt
	return true, nil
}

func (m *Memory) ListWalletTransactions(ctx context.Context, userID, currency string, limit int) ([]model.WalletTransaction, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []model.WalletTransaction
	for _, wt := range m.st.walletTxs {
		if wt.UserID == userID && wt.Currency == currency {
			out = append(out, wt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Trading accounts ---

func (m *Memory) InsertTradingAccount(ctx context.Context, acc model.TradingAccount) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	m.st.accounts[acc.ID] = acc
	return nil
}

func (m *Memory) GetTradingAccount(ctx context.Context, id string) (*model.TradingAccount, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	acc, ok := m.st.accounts[id]
	if !ok {
		return nil, nil
	}
	return &acc, nil
}

func (m *Memory) ListTradingAccounts(ctx context.Context, userID string) ([]model.TradingAccount, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var out []model.TradingAccount
	for _, acc := range m.st.accounts {
		if acc.UserID == userID {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SetActiveTradingAccount(ctx context.Context, userID, accountID string) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	target, ok := m.st.accounts[accountID]
	if !ok || target.UserID != userID {
		return ErrNotFound
	}
	for id, acc := range m.st.accounts {
		if acc.UserID == userID && acc.IsActive {
			acc.IsActive = false
			acc.UpdatedAt = time.Now().UTC()
			m.st.accounts[id] = acc
		}
	}
	target.IsActive = true
	target.UpdatedAt = time.Now().UTC()
	m.st.accounts[accountID] = target
	return nil
}

func (m *Memory) UpdateTradingAccountName(ctx context.Context, accountID, name string) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	acc, ok := m.st.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	acc.Name = name
	acc.UpdatedAt = time.Now().UTC()
	m.st.accounts[accountID] = acc
	return nil
}

func (m *Memory) IncrementTradingAccountBalance(ctx context.Context, accountID string, delta decimal.Decimal) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	acc, ok := m.st.accounts[accountID]
	if !ok {
		return ErrInsufficientFunds
	}
	newBalance := acc.Balance.Add(delta)
	if newBalance.IsNegative() {
		return ErrInsufficientFunds
	}
	acc.Balance = newBalance
	acc.UpdatedAt = time.Now().UTC()
	m.st.accounts[accountID] = acc
	return nil
}

// --- Positions ---

func (m *Memory) InsertPosition(ctx context.Context, p model.Position) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	m.st.positions[p.ID] = p
	return nil
}

func (m *Memory) GetPosition(ctx context.Context, id string) (*model.Position, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	p, ok := m.st.positions[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) ListPositions(ctx context.Context, userID string, openOnly bool) ([]model.Position, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var out []model.Position
	for _, p := range m.st.positions {
		if p.UserID != userID {
			continue
		}
		if openOnly && p.ClosedAt != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.After(out[j].OpenedAt) })
	return out, nil
}

func (m *Memory) PartialClosePosition(ctx context.Context, id string, v decimal.Decimal) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	p, ok := m.st.positions[id]
	if !ok || p.ClosedAt != nil || p.Volume.Cmp(v) <= 0 {
		return ErrNotFound
	}
	p.Volume = p.Volume.Sub(v)
	p.ClosedVolume = p.ClosedVolume.Add(v)
	m.st.positions[id] = p
	return nil
}

func (m *Memory) MarkPositionClosed(ctx context.Context, id string, closePrice, pnl decimal.Decimal, closedAt time.Time) (bool, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	p, ok := m.st.positions[id]
	if !ok || p.ClosedAt != nil {
		return false, nil
	}
	p.ClosedVolume = p.ClosedVolume.Add(p.Volume)
	p.Volume = decimal.Zero
	p.ClosePrice = closePrice
	p.Pnl = pnl
	p.ClosedAt = &closedAt
	m.st.positions[id] = p
	return true, nil
}

// --- PAMM ---

func (m *Memory) InsertPammFund(ctx context.Context, f model.PammFund) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	m.st.funds[f.ID] = f
	return nil
}

func (m *Memory) GetPammFund(ctx context.Context, id string) (*model.PammFund, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	f, ok := m.st.funds[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (m *Memory) GetPammFundByManager(ctx context.Context, managerID string) (*model.PammFund, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	for _, f := range m.st.funds {
		if f.UserID == managerID && f.Status == types.FundStatusActive {
			return &f, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetPammFundByAccount(ctx context.Context, accountID string) (*model.PammFund, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	for _, f := range m.st.funds {
		if f.AccountID == accountID {
			return &f, nil
		}
	}
	return nil, nil
}

func (m *Memory) IncrementPammFundDeposit(ctx context.Context, id string, delta decimal.Decimal) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	f, ok := m.st.funds[id]
	if !ok {
		return ErrInsufficientFunds
	}
	next := f.CurrentDeposit.Add(delta)
	if next.IsNegative() {
		return ErrInsufficientFunds
	}
	f.CurrentDeposit = next
	m.st.funds[id] = f
	return nil
}

func (m *Memory) InsertPammAllocation(ctx context.Context, a model.PammAllocation) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	m.st.allocs[a.ID] = a
	return nil
}

func (m *Memory) GetPammAllocation(ctx context.Context, id string) (*model.PammAllocation, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	a, ok := m.st.allocs[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) GetActivePammAllocation(ctx context.Context, fundID, followerID string) (*model.PammAllocation, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	for _, a := range m.st.allocs {
		if a.FundID == fundID && a.FollowerID == followerID && a.Status == types.AllocationStatusActive {
			return &a, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListActivePammAllocations(ctx context.Context, fundID string) ([]model.PammAllocation, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var out []model.PammAllocation
	for _, a := range m.st.allocs {
		if a.FundID == fundID && a.Status == types.AllocationStatusActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) AddPammAllocationPnl(ctx context.Context, id string, delta decimal.Decimal) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	a, ok := m.st.allocs[id]
	if !ok {
		return ErrNotFound
	}
	a.RealizedPnl = a.RealizedPnl.Add(delta)
	m.st.allocs[id] = a
	return nil
}

func (m *Memory) ClosePammAllocation(ctx context.Context, id string, closedAt time.Time) (bool, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	a, ok := m.st.allocs[id]
	if !ok || a.Status != types.AllocationStatusActive {
		return false, nil
	}
	a.Status = types.AllocationStatusClosed
	a.ClosedAt = &closedAt
	m.st.allocs[id] = a
	return true, nil
}

func (m *Memory) InsertPammTrade(ctx context.Context, t model.PammTrade) (bool, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	if _, ok := m.st.pammTrades[t.PositionID]; ok {
		return false, nil
	}
	m.st.pammTrades[t.PositionID] = t
	return true, nil
}

// --- IB ---

func (m *Memory) UpsertIBProfile(ctx context.Context, p model.IBProfile) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	m.st.ibProfiles[p.UserID] = p
	return nil
}

func (m *Memory) GetIBProfile(ctx context.Context, userID string) (*model.IBProfile, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	p, ok := m.st.ibProfiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) InsertIBCommission(ctx context.Context, c model.IBCommission) (bool, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	key := c.IBID + "/" + c.TradeID
	if m.st.ibCommKeys[key] {
		return false, nil
	}
	m.st.ibCommKeys[key] = true
	m.st.ibComms[c.ID] = c
	return true, nil
}

func (m *Memory) ListIBCommissions(ctx context.Context, ibID string, status types.CommissionStatus, limit int) ([]model.IBCommission, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var out []model.IBCommission
	for _, c := range m.st.ibComms {
		if c.IBID != ibID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SumPendingIBCommissions(ctx context.Context, ibID string) (decimal.Decimal, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	sum := decimal.Zero
	for _, c := range m.st.ibComms {
		if c.IBID == ibID && c.Status == types.CommissionStatusPending {
			sum = sum.Add(c.Amount)
		}
	}
	return sum, nil
}

func (m *Memory) MarkIBCommissionsPaid(ctx context.Context, ibID, payoutID string) (int64, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var n int64
	for id, c := range m.st.ibComms {
		if c.IBID == ibID && c.Status == types.CommissionStatusPending {
			c.Status = types.CommissionStatusPaid
			c.PayoutID = payoutID
			m.st.ibComms[id] = c
			n++
		}
	}
	return n, nil
}

func (m *Memory) InsertIBPayout(ctx context.Context, p model.IBPayout) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	m.st.ibPayouts[p.ID] = p
	return nil
}

// --- Settlement outbox ---

func (m *Memory) EnqueueOutbox(ctx context.Context, item model.OutboxItem) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	m.st.outbox[item.ID] = item
	return nil
}

func (m *Memory) ClaimOutbox(ctx context.Context, maxAttempts int) (*model.OutboxItem, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var oldest *model.OutboxItem
	for id := range m.st.outbox {
		it := m.st.outbox[id]
		if it.Status != types.OutboxStatusPending || it.Attempts >= maxAttempts {
			continue
		}
		if oldest == nil || it.CreatedAt.Before(oldest.CreatedAt) {
			cp := it
			oldest = &cp
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Attempts++
	oldest.UpdatedAt = time.Now().UTC()
	m.st.outbox[oldest.ID] = *oldest
	return oldest, nil
}

func (m *Memory) MarkOutboxDone(ctx context.Context, id string) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	it, ok := m.st.outbox[id]
	if !ok {
		return ErrNotFound
	}
	it.Status = types.OutboxStatusDone
	it.LastError = ""
	it.UpdatedAt = time.Now().UTC()
	m.st.outbox[id] = it
	return nil
}

func (m *Memory) MarkOutboxError(ctx context.Context, id, lastError string, maxAttempts int) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	it, ok := m.st.outbox[id]
	if !ok {
		return ErrNotFound
	}
	it.LastError = lastError
	if it.Attempts >= maxAttempts {
		it.Status = types.OutboxStatusFailed
	}
	it.UpdatedAt = time.Now().UTC()
	m.st.outbox[id] = it
	return nil
}

// --- Risk ---

func (m *Memory) IsUserBlocked(ctx context.Context, userID string) (bool, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	_, ok := m.st.blocked[userID]
	return ok, nil
}

func (m *Memory) BlockUser(ctx context.Context, userID, reason string) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	if _, ok := m.st.blocked[userID]; !ok {
		m.st.blocked[userID] = reason
	}
	return nil
}
