// Package wallet manages real-money balances. Deposits and withdrawals are
// two-phase: a pending transaction is created first, then confirmed, which
// moves the money, posts the journal entry, and completes the transaction in
// one atomic block. Withdrawn amounts are held in the wallet's locked column
// between request and confirmation.
package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lv-settle/internal/apperr"
	"lv-settle/internal/ledger"
	"lv-settle/internal/model"
	"lv-settle/internal/store"
	"lv-settle/internal/types"
)

type Service struct {
	store  store.Store
	ledger *ledger.Service
	log    zerolog.Logger
}

func NewService(st store.Store, lg *ledger.Service, log zerolog.Logger) *Service {
	return &Service{store: st, ledger: lg, log: log.With().Str("component", "wallet").Logger()}
}

// GetOrCreate is an idempotent get-or-insert of a zero-balance wallet.
func (s *Service) GetOrCreate(ctx context.Context, userID, currency string) (*model.Wallet, error) {
	if userID == "" || currency == "" {
		return nil, apperr.Validation("user id and currency are required")
	}
	return s.store.EnsureWallet(ctx, userID, currency)
}

// UpdateBalance applies a signed delta as one atomic increment. The wallet
// row is created on first use; a delta that would drive the balance negative
// fails without mutating anything.
func (s *Service) UpdateBalance(ctx context.Context, userID, currency string, delta decimal.Decimal) error {
	if _, err := s.store.EnsureWallet(ctx, userID, currency); err != nil {
		return err
	}
	err := s.store.IncrementWallet(ctx, userID, currency, delta, decimal.Zero)
	if errors.Is(err, store.ErrInsufficientFunds) {
		return apperr.Validation("insufficient funds")
	}
	return err
}

func (s *Service) newTransaction(userID, currency string, typ types.TransactionType, amount decimal.Decimal, refID, desc string) model.WalletTransaction {
	return model.WalletTransaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Currency:    currency,
		Type:        typ,
		Amount:      amount,
		Status:      types.TransactionStatusPending,
		ReferenceID: refID,
		Description: desc,
		CreatedAt:   time.Now().UTC(),
	}
}

// RequestDeposit opens phase one of a deposit: a pending transaction with no
// balance effect.
func (s *Service) RequestDeposit(ctx context.Context, userID, currency string, amount decimal.Decimal, desc string) (*model.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, apperr.Validation("deposit amount must be positive")
	}
	if _, err := s.store.EnsureWallet(ctx, userID, currency); err != nil {
		return nil, err
	}
	wt := s.newTransaction(userID, currency, types.TransactionTypeDeposit, amount, "", desc)
	if err := s.store.InsertWalletTransaction(ctx, wt); err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", userID).Str("tx_id", wt.ID).
		Str("amount", amount.StringFixed(2)).Msg("deposit requested")
	return &wt, nil
}

// ConfirmDeposit completes phase two: flips the transaction to completed,
// credits the wallet, and posts the journal entry, all in one atomic block.
// Confirming a transaction that is not pending fails with a conflict.
func (s *Service) ConfirmDeposit(ctx context.Context, txID string) (*model.WalletTransaction, error) {
	var confirmed *model.WalletTransaction
	err := s.store.Atomic(ctx, func(st store.Store) error {
		wt, err := st.GetWalletTransaction(ctx, txID)
		if err != nil {
			return err
		}
		if wt == nil {
			return apperr.NotFound("transaction %s not found", txID)
		}
		if wt.Type != types.TransactionTypeDeposit {
			return apperr.Validation("transaction %s is not a deposit", txID)
		}
		won, err := st.CompleteWalletTransaction(ctx, txID, time.Now().UTC())
		if err != nil {
			return err
		}
		if !won {
			return apperr.Conflict("transaction %s is already %s", txID, wt.Status)
		}
		if err := st.IncrementWallet(ctx, wt.UserID, wt.Currency, wt.Amount, decimal.Zero); err != nil {
			return err
		}
		if _, err := s.ledger.WithStore(st).RecordDeposit(ctx, wt.UserID, wt.Amount, wt.Currency, wt.ID); err != nil {
			return err
		}
		confirmed, err = st.GetWalletTransaction(ctx, txID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("tx_id", txID).Msg("deposit confirmed")
	return confirmed, nil
}

// RequestWithdrawal opens phase one of a withdrawal: the amount moves from
// the free balance to the locked column so it cannot be spent twice while
// the withdrawal is in flight.
func (s *Service) RequestWithdrawal(ctx context.Context, userID, currency string, amount decimal.Decimal, desc string) (*model.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, apperr.Validation("withdrawal amount must be positive")
	}
	if _, err := s.store.EnsureWallet(ctx, userID, currency); err != nil {
		return nil, err
	}
	wt := s.newTransaction(userID, currency, types.TransactionTypeWithdrawal, amount, "", desc)
	err := s.store.Atomic(ctx, func(st store.Store) error {
		if err := st.IncrementWallet(ctx, userID, currency, amount.Neg(), amount); err != nil {
			if errors.Is(err, store.ErrInsufficientFunds) {
				return apperr.Validation("insufficient funds")
			}
			return err
		}
		return st.InsertWalletTransaction(ctx, wt)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", userID).Str("tx_id", wt.ID).
		Str("amount", amount.StringFixed(2)).Msg("withdrawal requested")
	return &wt, nil
}

// ConfirmWithdrawal completes phase two: releases the locked amount, posts
// the journal entry, and completes the transaction. A rejected confirmation
// marks the transaction failed and returns the locked money to the free
// balance.
func (s *Service) ConfirmWithdrawal(ctx context.Context, txID string) (*model.WalletTransaction, error) {
	var confirmed *model.WalletTransaction
	err := s.store.Atomic(ctx, func(st store.Store) error {
		wt, err := st.GetWalletTransaction(ctx, txID)
		if err != nil {
			return err
		}
		if wt == nil {
			return apperr.NotFound("transaction %s not found", txID)
		}
		if wt.Type != types.TransactionTypeWithdrawal {
			return apperr.Validation("transaction %s is not a withdrawal", txID)
		}
		won, err := st.CompleteWalletTransaction(ctx, txID, time.Now().UTC())
		if err != nil {
			return err
		}
		if !won {
			return apperr.Conflict("transaction %s is already %s", txID, wt.Status)
		}
		if err := st.IncrementWallet(ctx, wt.UserID, wt.Currency, decimal.Zero, wt.Amount.Neg()); err != nil {
			return err
		}
		if _, err := s.ledger.WithStore(st).RecordWithdrawal(ctx, wt.UserID, wt.Amount, wt.Currency, wt.ID); err != nil {
			return err
		}
		confirmed, err = st.GetWalletTransaction(ctx, txID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("tx_id", txID).Msg("withdrawal confirmed")
	return confirmed, nil
}

// RejectWithdrawal marks a pending withdrawal failed and unlocks its amount.
func (s *Service) RejectWithdrawal(ctx context.Context, txID, reason string) error {
	return s.store.Atomic(ctx, func(st store.Store) error {
		wt, err := st.GetWalletTransaction(ctx, txID)
		if err != nil {
			return err
		}
		if wt == nil {
			return apperr.NotFound("transaction %s not found", txID)
		}
		if wt.Type != types.TransactionTypeWithdrawal {
			return apperr.Validation("transaction %s is not a withdrawal", txID)
		}
		won, err := st.FailWalletTransaction(ctx, txID, reason)
		if err != nil {
			return err
		}
		if !won {
			return apperr.Conflict("transaction %s is already %s", txID, wt.Status)
		}
		// money back to the free balance
		return st.IncrementWallet(ctx, wt.UserID, wt.Currency, wt.Amount, wt.Amount.Neg())
	})
}

// Transfer moves money between two users' wallets of the same currency and
// posts the matching journal entry, all atomically. Both sides get a
// completed transaction row sharing one reference id.
func (s *Service) Transfer(ctx context.Context, fromUserID, toUserID, currency string, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", apperr.Validation("transfer amount must be positive")
	}
	if fromUserID == toUserID {
		return "", apperr.Validation("cannot transfer to the same user")
	}
	refID := uuid.New().String()
	now := time.Now().UTC()
	err := s.store.Atomic(ctx, func(st store.Store) error {
		if _, err := st.EnsureWallet(ctx, fromUserID, currency); err != nil {
			return err
		}
		if _, err := st.EnsureWallet(ctx, toUserID, currency); err != nil {
			return err
		}
		if err := st.IncrementWallet(ctx, fromUserID, currency, amount.Neg(), decimal.Zero); err != nil {
			if errors.Is(err, store.ErrInsufficientFunds) {
				return apperr.Validation("insufficient funds")
			}
			return err
		}
		if err := st.IncrementWallet(ctx, toUserID, currency, amount, decimal.Zero); err != nil {
			return err
		}
		out := s.newTransaction(fromUserID, currency, types.TransactionTypeTransferOut, amount, refID, "transfer to "+toUserID)
		out.Status = types.TransactionStatusCompleted
		out.CompletedAt = &now
		in := s.newTransaction(toUserID, currency, types.TransactionTypeTransferIn, amount, refID, "transfer from "+fromUserID)
		in.Status = types.TransactionStatusCompleted
		in.CompletedAt = &now
		if err := st.InsertWalletTransaction(ctx, out); err != nil {
			return err
		}
		if err := st.InsertWalletTransaction(ctx, in); err != nil {
			return err
		}
		_, err := s.ledger.WithStore(st).RecordTransfer(ctx, fromUserID, toUserID, amount, currency, refID)
		return err
	})
	if err != nil {
		return "", err
	}
	s.log.Info().Str("from", fromUserID).Str("to", toUserID).
		Str("amount", amount.StringFixed(2)).Msg("transfer completed")
	return refID, nil
}

// AdminCredit tops up a user wallet from the back office: wallet increment,
// journal entry, and a completed transaction row in one atomic block.
func (s *Service) AdminCredit(ctx context.Context, userID, currency string, amount decimal.Decimal, desc string) (*model.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, apperr.Validation("credit amount must be positive")
	}
	now := time.Now().UTC()
	wt := s.newTransaction(userID, currency, types.TransactionTypeAdminCredit, amount, "", desc)
	wt.Status = types.TransactionStatusCompleted
	wt.CompletedAt = &now
	err := s.store.Atomic(ctx, func(st store.Store) error {
		if _, err := st.EnsureWallet(ctx, userID, currency); err != nil {
			return err
		}
		if err := st.IncrementWallet(ctx, userID, currency, amount, decimal.Zero); err != nil {
			return err
		}
		if err := st.InsertWalletTransaction(ctx, wt); err != nil {
			return err
		}
		_, err := s.ledger.WithStore(st).RecordAdminCredit(ctx, userID, amount, currency, wt.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", userID).Str("amount", amount.StringFixed(2)).Msg("admin credit applied")
	return &wt, nil
}

// Get returns the wallet, or a zero view when none exists yet.
func (s *Service) Get(ctx context.Context, userID, currency string) (*model.Wallet, error) {
	w, err := s.store.GetWallet(ctx, userID, currency)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return &model.Wallet{UserID: userID, Currency: currency,
			Balance: decimal.Zero, Locked: decimal.Zero}, nil
	}
	return w, nil
}

// ListTransactions returns the newest transactions first.
func (s *Service) ListTransactions(ctx context.Context, userID, currency string, limit int) ([]model.WalletTransaction, error) {
	return s.store.ListWalletTransactions(ctx, userID, currency, limit)
}
