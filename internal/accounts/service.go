// Package accounts manages trading accounts. Every user gets a demo and a
// live account on first touch; a pamm account is created when a fund is
// opened. Exactly one account per user is active at a time.
package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lv-settle/internal/apperr"
	"lv-settle/internal/model"
	"lv-settle/internal/store"
	"lv-settle/internal/types"
)

// demoStartingBalance is the practice money a fresh demo account opens with.
var demoStartingBalance = decimal.NewFromInt(10000)

type Service struct {
	store store.Store
	log   zerolog.Logger
}

func NewService(st store.Store, log zerolog.Logger) *Service {
	return &Service{store: st, log: log.With().Str("component", "accounts").Logger()}
}

// EnsureDefaultAccounts creates the demo and live accounts on first touch
// and returns the user's full account list. The live account starts active.
func (s *Service) EnsureDefaultAccounts(ctx context.Context, userID string) ([]model.TradingAccount, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	var out []model.TradingAccount
	err := s.store.Atomic(ctx, func(st store.Store) error {
		existing, err := st.ListTradingAccounts(ctx, userID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			out = existing
			return nil
		}
		now := time.Now().UTC()
		demo := model.TradingAccount{
			ID:        uuid.New().String(),
			UserID:    userID,
			Mode:      types.AccountModeDemo,
			Name:      "Demo",
			Balance:   demoStartingBalance,
			CreatedAt: now,
			UpdatedAt: now,
		}
		live := model.TradingAccount{
			ID:        uuid.New().String(),
			UserID:    userID,
			Mode:      types.AccountModeLive,
			Name:      "Live",
			Balance:   decimal.Zero,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := st.InsertTradingAccount(ctx, demo); err != nil {
			return err
		}
		if err := st.InsertTradingAccount(ctx, live); err != nil {
			return err
		}
		out = []model.TradingAccount{demo, live}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Create opens an additional account of the given mode.
func (s *Service) Create(ctx context.Context, userID string, mode types.AccountMode, name string) (*model.TradingAccount, error) {
	switch mode {
	case types.AccountModeDemo, types.AccountModeLive, types.AccountModePamm:
	default:
		return nil, apperr.Validation("unknown account mode %q", mode)
	}
	if name == "" {
		return nil, apperr.Validation("account name is required")
	}
	now := time.Now().UTC()
	acc := model.TradingAccount{
		ID:        uuid.New().String(),
		UserID:    userID,
		Mode:      mode,
		Name:      name,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mode == types.AccountModeDemo {
		acc.Balance = demoStartingBalance
	}
	if err := s.store.InsertTradingAccount(ctx, acc); err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", userID).Str("account_id", acc.ID).
		Str("mode", string(mode)).Msg("trading account created")
	return &acc, nil
}

// List returns the user's accounts, defaults included.
func (s *Service) List(ctx context.Context, userID string) ([]model.TradingAccount, error) {
	return s.EnsureDefaultAccounts(ctx, userID)
}

// Resolve returns the account by id when given, else the user's active
// account; ownership is always enforced.
func (s *Service) Resolve(ctx context.Context, userID, accountID string) (*model.TradingAccount, error) {
	if accountID != "" {
		acc, err := s.store.GetTradingAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			return nil, apperr.NotFound("account %s not found", accountID)
		}
		if acc.UserID != userID {
			return nil, apperr.Forbidden("account %s does not belong to user", accountID)
		}
		return acc, nil
	}
	accs, err := s.EnsureDefaultAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range accs {
		if accs[i].IsActive {
			return &accs[i], nil
		}
	}
	return nil, apperr.NotFound("user %s has no active account", userID)
}

// Get returns the account without the ownership check; back-office use.
func (s *Service) Get(ctx context.Context, accountID string) (*model.TradingAccount, error) {
	acc, err := s.store.GetTradingAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, apperr.NotFound("account %s not found", accountID)
	}
	return acc, nil
}

// SetActive switches the user's active account.
func (s *Service) SetActive(ctx context.Context, userID, accountID string) error {
	err := s.store.SetActiveTradingAccount(ctx, userID, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("account %s not found", accountID)
	}
	return err
}

// UpdateName renames an account after an ownership check.
func (s *Service) UpdateName(ctx context.Context, userID, accountID, name string) error {
	if name == "" {
		return apperr.Validation("account name is required")
	}
	if _, err := s.Resolve(ctx, userID, accountID); err != nil {
		return err
	}
	return s.store.UpdateTradingAccountName(ctx, accountID, name)
}

// CreditBalance applies a signed delta to an account balance; driving it
// negative is rejected.
func (s *Service) CreditBalance(ctx context.Context, accountID string, delta decimal.Decimal) error {
	err := s.store.IncrementTradingAccountBalance(ctx, accountID, delta)
	if errors.Is(err, store.ErrInsufficientFunds) {
		return apperr.Validation("account balance cannot go negative")
	}
	return err
}
