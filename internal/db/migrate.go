package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate bootstraps the schema. Statements are idempotent so startup can
// run this unconditionally.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id UUID PRIMARY KEY,
			account_code TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			debit NUMERIC(18,6) NOT NULL DEFAULT 0,
			credit NUMERIC(18,6) NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			reference_type TEXT NOT NULL,
			reference_id TEXT NOT NULL,
			pamm_fund_id TEXT,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_entity_code
			ON ledger_entries (entity_id, account_code, created_at)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			user_id TEXT NOT NULL,
			currency TEXT NOT NULL,
			balance NUMERIC(18,2) NOT NULL DEFAULT 0,
			locked NUMERIC(18,2) NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, currency)
		)`,
		`CREATE TABLE IF NOT EXISTS wallet_transactions (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			currency TEXT NOT NULL,
			type TEXT NOT NULL,
			amount NUMERIC(18,2) NOT NULL,
			status TEXT NOT NULL,
			reference_id TEXT,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wallet_transactions_user
			ON wallet_transactions (user_id, currency, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS trading_accounts (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			name TEXT NOT NULL,
			balance NUMERIC(18,2) NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trading_accounts_user
			ON trading_accounts (user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			account_id UUID NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			volume NUMERIC(18,6) NOT NULL,
			closed_volume NUMERIC(18,6) NOT NULL DEFAULT 0,
			open_price NUMERIC(18,6) NOT NULL,
			close_price NUMERIC(18,6) NOT NULL DEFAULT 0,
			pnl NUMERIC(18,2) NOT NULL DEFAULT 0,
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_user
			ON positions (user_id, opened_at DESC)`,
		`CREATE TABLE IF NOT EXISTS pamm_funds (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			account_id UUID NOT NULL,
			name TEXT NOT NULL,
			current_deposit NUMERIC(18,2) NOT NULL DEFAULT 0,
			performance_fee_percent NUMERIC(7,4) NOT NULL DEFAULT 0,
			allocation_percent NUMERIC(7,4) NOT NULL DEFAULT 100,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pamm_allocations (
			id UUID PRIMARY KEY,
			fund_id UUID NOT NULL,
			follower_id TEXT NOT NULL,
			manager_id TEXT NOT NULL,
			allocated_balance NUMERIC(18,2) NOT NULL,
			realized_pnl NUMERIC(18,2) NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pamm_allocations_fund
			ON pamm_allocations (fund_id, status)`,
		`CREATE TABLE IF NOT EXISTS pamm_trades (
			id UUID PRIMARY KEY,
			fund_id UUID NOT NULL,
			position_id UUID NOT NULL,
			pnl NUMERIC(18,2) NOT NULL,
			fee NUMERIC(18,2) NOT NULL DEFAULT 0,
			distributed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_pamm_trades_position
			ON pamm_trades (position_id)`,
		`CREATE TABLE IF NOT EXISTS ib_profiles (
			user_id TEXT PRIMARY KEY,
			parent_id TEXT,
			rate_per_lot NUMERIC(18,2),
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ib_commissions (
			id UUID PRIMARY KEY,
			ib_id TEXT NOT NULL,
			trade_id UUID NOT NULL,
			client_user_id TEXT,
			volume NUMERIC(18,6) NOT NULL,
			rate_per_lot NUMERIC(18,2) NOT NULL,
			amount NUMERIC(18,2) NOT NULL,
			status TEXT NOT NULL,
			payout_id UUID,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ib_commissions_ib_status
			ON ib_commissions (ib_id, status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_ib_commissions_ib_trade
			ON ib_commissions (ib_id, trade_id)`,
		`CREATE TABLE IF NOT EXISTS ib_payouts (
			id UUID PRIMARY KEY,
			ib_id TEXT NOT NULL,
			amount NUMERIC(18,2) NOT NULL,
			status TEXT NOT NULL,
			requested_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settlement_outbox (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			payload JSONB NOT NULL,
			status TEXT NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_settlement_outbox_status
			ON settlement_outbox (status, created_at)`,
		`CREATE TABLE IF NOT EXISTS blocked_users (
			user_id TEXT PRIMARY KEY,
			reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
