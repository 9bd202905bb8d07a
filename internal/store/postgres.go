package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"lv-settle/internal/model"
	"lv-settle/internal/types"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// statement code serves pooled calls and Atomic blocks.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Store on top of pgx.
type Postgres struct {
	pool *pgxpool.Pool
	q    querier
}

// NewPostgres builds a pool-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, q: pool}
}

// Atomic runs fn inside a serializable transaction. Nested calls reuse the
// outer transaction.
func (s *Postgres) Atomic(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		// already inside a transaction
		return fn(s)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Postgres{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- Immutable journal ---

func (s *Postgres) InsertLedgerEntries(ctx context.Context, entries []model.LedgerEntry) error {
	for _, e := range entries {
		_, err := s.q.Exec(ctx, `
			INSERT INTO ledger_entries
				(id, account_code, entity_id, debit, credit, currency,
				 reference_type, reference_id, pamm_fund_id, description, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			e.ID, e.AccountCode, e.EntityID, e.Debit, e.Credit, e.Currency,
			e.ReferenceType, e.ReferenceID, nullable(e.PammFundID), e.Description, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
	}
	return nil
}

func (s *Postgres) SumLedger(ctx context.Context, entityID, accountCode, currency string, asOf *time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var debit, credit decimal.Decimal
	q := `
		SELECT COALESCE(SUM(debit), 0), COALESCE(SUM(credit), 0)
		FROM ledger_entries
		WHERE entity_id = $1 AND account_code = $2
		  AND ($3 = '' OR currency = $3)`
	args := []any{entityID, accountCode, currency}
	if asOf != nil {
		q += ` AND created_at <= $4`
		args = append(args, *asOf)
	}
	if err := s.q.QueryRow(ctx, q, args...).Scan(&debit, &credit); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("sum ledger: %w", err)
	}
	return debit, credit, nil
}

func (s *Postgres) SumLedgerWindow(ctx context.Context, entityID, accountCode string, from, to time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var debit, credit decimal.Decimal
	err := s.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(debit), 0), COALESCE(SUM(credit), 0)
		FROM ledger_entries
		WHERE entity_id = $1 AND account_code = $2
		  AND created_at >= $3 AND created_at <= $4`,
		entityID, accountCode, from, to).Scan(&debit, &credit)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("sum ledger window: %w", err)
	}
	return debit, credit, nil
}

func (s *Postgres) ListLedgerSums(ctx context.Context, entityID string, asOf *time.Time) ([]LedgerSum, error) {
	q := `
		SELECT account_code, COALESCE(SUM(debit), 0), COALESCE(SUM(credit), 0)
		FROM ledger_entries
		WHERE entity_id = $1`
	args := []any{entityID}
	if asOf != nil {
		q += ` AND created_at <= $2`
		args = append(args, *asOf)
	}
	q += ` GROUP BY account_code ORDER BY account_code`

	rows, err := s.q.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger sums: %w", err)
	}
	defer rows.Close()

	var out []LedgerSum
	for rows.Next() {
		var ls LedgerSum
		if err := rows.Scan(&ls.AccountCode, &ls.Debit, &ls.Credit); err != nil {
			return nil, err
		}
		out = append(out, ls)
	}
	return out, rows.Err()
}

// --- Wallets ---

func (s *Postgres) GetWallet(ctx context.Context, userID, currency string) (*model.Wallet, error) {
	var w model.Wallet
	err := s.q.QueryRow(ctx, `
		SELECT user_id, currency, balance, locked, updated_at
		FROM wallets WHERE user_id = $1 AND currency = $2`,
		userID, currency).Scan(&w.UserID, &w.Currency, &w.Balance, &w.Locked, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &w, nil
}

func (s *Postgres) EnsureWallet(ctx context.Context, userID, currency string) (*model.Wallet, error) {
	_, err := s.q.Exec(ctx, `
		INSERT INTO wallets (user_id, currency, balance, locked, updated_at)
		VALUES ($1, $2, 0, 0, NOW())
		ON CONFLICT (user_id, currency) DO NOTHING`,
		userID, currency)
	if err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}
	return s.GetWallet(ctx, userID, currency)
}

func (s *Postgres) IncrementWallet(ctx context.Context, userID, currency string, balanceDelta, lockedDelta decimal.Decimal) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE wallets
		SET balance = balance + $3, locked = locked + $4, updated_at = NOW()
		WHERE user_id = $1 AND currency = $2
		  AND balance + $3 >= 0 AND locked + $4 >= 0`,
		userID, currency, balanceDelta, lockedDelta)
	if err != nil {
		return fmt.Errorf("increment wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (s *Postgres) SettleWallet(ctx context.Context, userID, currency string, delta decimal.Decimal) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE wallets
		SET balance = balance + $3, updated_at = NOW()
		WHERE user_id = $1 AND currency = $2`,
		userID, currency, delta)
	if err != nil {
		return fmt.Errorf("settle wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) ListWallets(ctx context.Context) ([]model.Wallet, error) {
	rows, err := s.q.Query(ctx, `
		SELECT user_id, currency, balance, locked, updated_at
		FROM wallets ORDER BY user_id, currency`)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var out []model.Wallet
	for rows.Next() {
		var w model.Wallet
		if err := rows.Scan(&w.UserID, &w.Currency, &w.Balance, &w.Locked, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Postgres) InsertWalletTransaction(ctx context.Context, wt model.WalletTransaction) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO wallet_transactions
			(id, user_id, currency, type, amount, status, reference_id, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		wt.ID, wt.UserID, wt.Currency, wt.Type, wt.Amount, wt.Status,
		nullable(wt.ReferenceID), wt.Description, wt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}

func (s *Postgres) GetWalletTransaction(ctx context.Context, id string) (*model.WalletTransaction, error) {
	var wt model.WalletTransaction
	var ref *string
	err := s.q.QueryRow(ctx, `
		SELECT id, user_id, currency, type, amount, status, reference_id,
		       description, created_at, completed_at
		FROM wallet_transactions WHERE id = $1`, id).
		Scan(&wt.ID, &wt.UserID, &wt.Currency, &wt.Type, &wt.Amount, &wt.Status,
			&ref, &wt.Description, &wt.CreatedAt, &wt.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet transaction: %w", err)
	}
	if ref != nil {
		wt.ReferenceID = *ref
	}
	return &wt, nil
}

func (s *Postgres) CompleteWalletTransaction(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE wallet_transactions
		SET status = $2, completed_at = $3
		WHERE id = $1 AND status = $4`,
		id, types.TransactionStatusCompleted, completedAt, types.TransactionStatusPending)
	if err != nil {
		return false, fmt.Errorf("complete wallet transaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) FailWalletTransaction(ctx context.Context, id, reason string) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE wallet_transactions
		SET status = $2, description = description || ' (' || $3 || ')'
		WHERE id = $1 AND status = $4`,
		id, types.TransactionStatusFailed, reason, types.TransactionStatusPending)
	if err != nil {
		return false, fmt.Errorf("fail wallet transaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) ListWalletTransactions(ctx context.Context, userID, currency string, limit int) ([]model.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.Query(ctx, `
		SELECT id, user_id, currency, type, amount, status, reference_id,
		       description, created_at, completed_at
		FROM wallet_transactions
		WHERE user_id = $1 AND currency = $2
		ORDER BY created_at DESC LIMIT $3`,
		userID, currency, limit)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	defer rows.Close()

	var out []model.WalletTransaction
	for rows.Next() {
		var wt model.WalletTransaction
		var ref *string
		if err := rows.Scan(&wt.ID, &wt.UserID, &wt.Currency, &wt.Type, &wt.Amount,
			&wt.Status, &ref, &wt.Description, &wt.CreatedAt, &wt.CompletedAt); err != nil {
			return nil, err
		}
		if ref != nil {
			wt.ReferenceID = *ref
		}
		out = append(out, wt)
	}
	return out, rows.Err()
}

// --- Trading accounts ---

func (s *Postgres) InsertTradingAccount(ctx context.Context, acc model.TradingAccount) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO trading_accounts
			(id, user_id, mode, name, balance, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		acc.ID, acc.UserID, acc.Mode, acc.Name, acc.Balance, acc.IsActive,
		acc.CreatedAt, acc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert trading account: %w", err)
	}
	return nil
}

func (s *Postgres) GetTradingAccount(ctx context.Context, id string) (*model.TradingAccount, error) {
	var acc model.TradingAccount
	err := s.q.QueryRow(ctx, `
		SELECT id, user_id, mode, name, balance, is_active, created_at, updated_at
		FROM trading_accounts WHERE id = $1`, id).
		Scan(&acc.ID, &acc.UserID, &acc.Mode, &acc.Name, &acc.Balance,
			&acc.IsActive, &acc.CreatedAt, &acc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trading account: %w", err)
	}
	return &acc, nil
}

func (s *Postgres) ListTradingAccounts(ctx context.Context, userID string) ([]model.TradingAccount, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, user_id, mode, name, balance, is_active, created_at, updated_at
		FROM trading_accounts WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list trading accounts: %w", err)
	}
	defer rows.Close()

	var out []model.TradingAccount
	for rows.Next() {
		var acc model.TradingAccount
		if err := rows.Scan(&acc.ID, &acc.UserID, &acc.Mode, &acc.Name, &acc.Balance,
			&acc.IsActive, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (s *Postgres) SetActiveTradingAccount(ctx context.Context, userID, accountID string) error {
	_, err := s.q.Exec(ctx, `
		UPDATE trading_accounts SET is_active = false, updated_at = NOW()
		WHERE user_id = $1 AND is_active = true`, userID)
	if err != nil {
		return fmt.Errorf("deactivate trading accounts: %w", err)
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE trading_accounts SET is_active = true, updated_at = NOW()
		WHERE id = $1 AND user_id = $2`, accountID, userID)
	if err != nil {
		return fmt.Errorf("activate trading account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) UpdateTradingAccountName(ctx context.Context, accountID, name string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE trading_accounts SET name = $2, updated_at = NOW() WHERE id = $1`,
		accountID, name)
	if err != nil {
		return fmt.Errorf("rename trading account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) IncrementTradingAccountBalance(ctx context.Context, accountID string, delta decimal.Decimal) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE trading_accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1 AND balance + $2 >= 0`,
		accountID, delta)
	if err != nil {
		return fmt.Errorf("increment account balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// --- Positions ---

func (s *Postgres) InsertPosition(ctx context.Context, p model.Position) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO positions
			(id, user_id, account_id, symbol, side, volume, closed_volume,
			 open_price, close_price, pnl, opened_at, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.UserID, p.AccountID, p.Symbol, p.Side, p.Volume, p.ClosedVolume,
		p.OpenPrice, p.ClosePrice, p.Pnl, p.OpenedAt, p.ClosedAt)
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

func (s *Postgres) GetPosition(ctx context.Context, id string) (*model.Position, error) {
	var p model.Position
	err := s.q.QueryRow(ctx, `
		SELECT id, user_id, account_id, symbol, side, volume, closed_volume,
		       open_price, close_price, pnl, opened_at, closed_at
		FROM positions WHERE id = $1`, id).
		Scan(&p.ID, &p.UserID, &p.AccountID, &p.Symbol, &p.Side, &p.Volume,
			&p.ClosedVolume, &p.OpenPrice, &p.ClosePrice, &p.Pnl, &p.OpenedAt, &p.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return &p, nil
}

func (s *Postgres) ListPositions(ctx context.Context, userID string, openOnly bool) ([]model.Position, error) {
	q := `
		SELECT id, user_id, account_id, symbol, side, volume, closed_volume,
		       open_price, close_price, pnl, opened_at, closed_at
		FROM positions WHERE user_id = $1`
	if openOnly {
		q += ` AND closed_at IS NULL`
	}
	q += ` ORDER BY opened_at DESC`

	rows, err := s.q.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var p model.Position
		if err := rows.Scan(&p.ID, &p.UserID, &p.AccountID, &p.Symbol, &p.Side,
			&p.Volume, &p.ClosedVolume, &p.OpenPrice, &p.ClosePrice, &p.Pnl,
			&p.OpenedAt, &p.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) PartialClosePosition(ctx context.Context, id string, v decimal.Decimal) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE positions
		SET volume = volume - $2, closed_volume = closed_volume + $2
		WHERE id = $1 AND closed_at IS NULL AND volume > $2`,
		id, v)
	if err != nil {
		return fmt.Errorf("partial close position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) MarkPositionClosed(ctx context.Context, id string, closePrice, pnl decimal.Decimal, closedAt time.Time) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE positions
		SET closed_volume = closed_volume + volume, volume = 0,
		    close_price = $2, pnl = $3, closed_at = $4
		WHERE id = $1 AND closed_at IS NULL`,
		id, closePrice, pnl, closedAt)
	if err != nil {
		return false, fmt.Errorf("mark position closed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// --- PAMM ---

func (s *Postgres) InsertPammFund(ctx context.Context, f model.PammFund) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO pamm_funds
			(id, user_id, account_id, name, current_deposit,
			 performance_fee_percent, allocation_percent, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		f.ID, f.UserID, f.AccountID, f.Name, f.CurrentDeposit,
		f.PerformanceFeePercent, f.AllocationPercent, f.Status, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pamm fund: %w", err)
	}
	return nil
}

func (s *Postgres) scanFund(row pgx.Row) (*model.PammFund, error) {
	var f model.PammFund
	err := row.Scan(&f.ID, &f.UserID, &f.AccountID, &f.Name, &f.CurrentDeposit,
		&f.PerformanceFeePercent, &f.AllocationPercent, &f.Status, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan pamm fund: %w", err)
	}
	return &f, nil
}

const fundCols = `id, user_id, account_id, name, current_deposit,
	performance_fee_percent, allocation_percent, status, created_at`

func (s *Postgres) GetPammFund(ctx context.Context, id string) (*model.PammFund, error) {
	return s.scanFund(s.q.QueryRow(ctx,
		`SELECT `+fundCols+` FROM pamm_funds WHERE id = $1`, id))
}

func (s *Postgres) GetPammFundByManager(ctx context.Context, managerID string) (*model.PammFund, error) {
	return s.scanFund(s.q.QueryRow(ctx,
		`SELECT `+fundCols+` FROM pamm_funds WHERE user_id = $1 AND status = $2`,
		managerID, types.FundStatusActive))
}

func (s *Postgres) GetPammFundByAccount(ctx context.Context, accountID string) (*model.PammFund, error) {
	return s.scanFund(s.q.QueryRow(ctx,
		`SELECT `+fundCols+` FROM pamm_funds WHERE account_id = $1`, accountID))
}

func (s *Postgres) IncrementPammFundDeposit(ctx context.Context, id string, delta decimal.Decimal) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE pamm_funds
		SET current_deposit = current_deposit + $2
		WHERE id = $1 AND current_deposit + $2 >= 0`,
		id, delta)
	if err != nil {
		return fmt.Errorf("increment fund deposit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (s *Postgres) InsertPammAllocation(ctx context.Context, a model.PammAllocation) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO pamm_allocations
			(id, fund_id, follower_id, manager_id, allocated_balance,
			 realized_pnl, status, created_at, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.FundID, a.FollowerID, a.ManagerID, a.AllocatedBalance,
		a.RealizedPnl, a.Status, a.CreatedAt, a.ClosedAt)
	if err != nil {
		return fmt.Errorf("insert pamm allocation: %w", err)
	}
	return nil
}

const allocCols = `id, fund_id, follower_id, manager_id, allocated_balance,
	realized_pnl, status, created_at, closed_at`

func scanAlloc(row pgx.Row) (*model.PammAllocation, error) {
	var a model.PammAllocation
	err := row.Scan(&a.ID, &a.FundID, &a.FollowerID, &a.ManagerID,
		&a.AllocatedBalance, &a.RealizedPnl, &a.Status, &a.CreatedAt, &a.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan pamm allocation: %w", err)
	}
	return &a, nil
}

func (s *Postgres) GetPammAllocation(ctx context.Context, id string) (*model.PammAllocation, error) {
	return scanAlloc(s.q.QueryRow(ctx,
		`SELECT `+allocCols+` FROM pamm_allocations WHERE id = $1`, id))
}

func (s *Postgres) GetActivePammAllocation(ctx context.Context, fundID, followerID string) (*model.PammAllocation, error) {
	return scanAlloc(s.q.QueryRow(ctx,
		`SELECT `+allocCols+` FROM pamm_allocations
		 WHERE fund_id = $1 AND follower_id = $2 AND status = $3`,
		fundID, followerID, types.AllocationStatusActive))
}

func (s *Postgres) ListActivePammAllocations(ctx context.Context, fundID string) ([]model.PammAllocation, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+allocCols+` FROM pamm_allocations
		 WHERE fund_id = $1 AND status = $2 ORDER BY created_at`,
		fundID, types.AllocationStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list pamm allocations: %w", err)
	}
	defer rows.Close()

	var out []model.PammAllocation
	for rows.Next() {
		var a model.PammAllocation
		if err := rows.Scan(&a.ID, &a.FundID, &a.FollowerID, &a.ManagerID,
			&a.AllocatedBalance, &a.RealizedPnl, &a.Status, &a.CreatedAt, &a.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Postgres) AddPammAllocationPnl(ctx context.Context, id string, delta decimal.Decimal) error {
	_, err := s.q.Exec(ctx, `
		UPDATE pamm_allocations SET realized_pnl = realized_pnl + $2 WHERE id = $1`,
		id, delta)
	if err != nil {
		return fmt.Errorf("add allocation pnl: %w", err)
	}
	return nil
}

func (s *Postgres) ClosePammAllocation(ctx context.Context, id string, closedAt time.Time) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE pamm_allocations SET status = $2, closed_at = $3
		WHERE id = $1 AND status = $4`,
		id, types.AllocationStatusClosed, closedAt, types.AllocationStatusActive)
	if err != nil {
		return false, fmt.Errorf("close pamm allocation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) InsertPammTrade(ctx context.Context, t model.PammTrade) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		INSERT INTO pamm_trades (id, fund_id, position_id, pnl, fee, distributed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (position_id) DO NOTHING`,
		t.ID, t.FundID, t.PositionID, t.Pnl, t.Fee, t.DistributedAt)
	if err != nil {
		return false, fmt.Errorf("insert pamm trade: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// --- IB ---

func (s *Postgres) UpsertIBProfile(ctx context.Context, p model.IBProfile) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO ib_profiles (user_id, parent_id, rate_per_lot, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id) DO UPDATE
		SET parent_id = EXCLUDED.parent_id, rate_per_lot = EXCLUDED.rate_per_lot`,
		p.UserID, nullable(p.ParentID), p.RatePerLot, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert ib profile: %w", err)
	}
	return nil
}

func (s *Postgres) GetIBProfile(ctx context.Context, userID string) (*model.IBProfile, error) {
	var p model.IBProfile
	var parent *string
	err := s.q.QueryRow(ctx, `
		SELECT user_id, parent_id, rate_per_lot, created_at
		FROM ib_profiles WHERE user_id = $1`, userID).
		Scan(&p.UserID, &parent, &p.RatePerLot, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ib profile: %w", err)
	}
	if parent != nil {
		p.ParentID = *parent
	}
	return &p, nil
}

func (s *Postgres) InsertIBCommission(ctx context.Context, c model.IBCommission) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		INSERT INTO ib_commissions
			(id, ib_id, trade_id, client_user_id, volume, rate_per_lot,
			 amount, status, payout_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (ib_id, trade_id) DO NOTHING`,
		c.ID, c.IBID, c.TradeID, c.ClientUserID, c.Volume, c.RatePerLot,
		c.Amount, c.Status, nullable(c.PayoutID), c.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert ib commission: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) ListIBCommissions(ctx context.Context, ibID string, status types.CommissionStatus, limit int) ([]model.IBCommission, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `
		SELECT id, ib_id, trade_id, client_user_id, volume, rate_per_lot,
		       amount, status, payout_id, created_at
		FROM ib_commissions WHERE ib_id = $1`
	args := []any{ibID}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, status)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.q.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list ib commissions: %w", err)
	}
	defer rows.Close()

	var out []model.IBCommission
	for rows.Next() {
		var c model.IBCommission
		var payout *string
		if err := rows.Scan(&c.ID, &c.IBID, &c.TradeID, &c.ClientUserID, &c.Volume,
			&c.RatePerLot, &c.Amount, &c.Status, &payout, &c.CreatedAt); err != nil {
			return nil, err
		}
		if payout != nil {
			c.PayoutID = *payout
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) SumPendingIBCommissions(ctx context.Context, ibID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM ib_commissions
		WHERE ib_id = $1 AND status = $2`,
		ibID, types.CommissionStatusPending).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum pending commissions: %w", err)
	}
	return sum, nil
}

func (s *Postgres) MarkIBCommissionsPaid(ctx context.Context, ibID, payoutID string) (int64, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE ib_commissions SET status = $2, payout_id = $3
		WHERE ib_id = $1 AND status = $4`,
		ibID, types.CommissionStatusPaid, payoutID, types.CommissionStatusPending)
	if err != nil {
		return 0, fmt.Errorf("mark commissions paid: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) InsertIBPayout(ctx context.Context, p model.IBPayout) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO ib_payouts (id, ib_id, amount, status, requested_at)
		VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.IBID, p.Amount, p.Status, p.RequestedAt)
	if err != nil {
		return fmt.Errorf("insert ib payout: %w", err)
	}
	return nil
}

// --- Settlement outbox ---

func (s *Postgres) EnqueueOutbox(ctx context.Context, item model.OutboxItem) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO settlement_outbox
			(id, kind, payload, status, attempts, last_error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		item.ID, item.Kind, item.Payload, item.Status, item.Attempts,
		item.LastError, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("enqueue outbox: %w", err)
	}
	return nil
}

func (s *Postgres) ClaimOutbox(ctx context.Context, maxAttempts int) (*model.OutboxItem, error) {
	var it model.OutboxItem
	err := s.q.QueryRow(ctx, `
		UPDATE settlement_outbox
		SET attempts = attempts + 1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM settlement_outbox
			WHERE status = $1 AND attempts < $2
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, payload, status, attempts, last_error, created_at, updated_at`,
		types.OutboxStatusPending, maxAttempts).
		Scan(&it.ID, &it.Kind, &it.Payload, &it.Status, &it.Attempts,
			&it.LastError, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	return &it, nil
}

func (s *Postgres) MarkOutboxDone(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, `
		UPDATE settlement_outbox SET status = $2, last_error = '', updated_at = NOW()
		WHERE id = $1`,
		id, types.OutboxStatusDone)
	if err != nil {
		return fmt.Errorf("mark outbox done: %w", err)
	}
	return nil
}

func (s *Postgres) MarkOutboxError(ctx context.Context, id, lastError string, maxAttempts int) error {
	_, err := s.q.Exec(ctx, `
		UPDATE settlement_outbox
		SET last_error = $2, updated_at = NOW(),
		    status = CASE WHEN attempts >= $3 THEN $4 ELSE status END
		WHERE id = $1`,
		id, lastError, maxAttempts, types.OutboxStatusFailed)
	if err != nil {
		return fmt.Errorf("mark outbox error: %w", err)
	}
	return nil
}

// --- Risk ---

func (s *Postgres) IsUserBlocked(ctx context.Context, userID string) (bool, error) {
	var blocked bool
	err := s.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM blocked_users WHERE user_id = $1)`, userID).
		Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("check blocked user: %w", err)
	}
	return blocked, nil
}

func (s *Postgres) BlockUser(ctx context.Context, userID, reason string) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO blocked_users (user_id, reason, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO NOTHING`,
		userID, reason)
	if err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
