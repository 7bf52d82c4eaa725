package service

import (
	"context"
	"errors"
	"time"

	"cabbot/internal/config"
	"cabbot/internal/domain"
	"cabbot/internal/models"

	"github.com/rs/zerolog"
)

var (
	ErrAccountNotLinked = errors.New("account is not linked")
	ErrInvalidRole      = errors.New("role must be RIDER or DRIVER")
	ErrEmptyToken       = errors.New("platform token is empty")
)

// AccountService manages chat-to-platform links and the admin/blacklist
// gates applied before any handler runs.
type AccountService struct {
	store  domain.AccountStore
	config *config.Config
	logger *zerolog.Logger

	adminsMap    map[int64]bool
	blacklistMap map[int64]bool
}

func NewAccountService(store domain.AccountStore, cfg *config.Config, logger *zerolog.Logger) *AccountService {
	adminsMap := make(map[int64]bool)
	for _, id := range cfg.Admins {
		adminsMap[id] = true
	}

	blacklistMap := make(map[int64]bool)
	for _, id := range cfg.Blacklist {
		blacklistMap[id] = true
	}

	return &AccountService{
		store:        store,
		config:       cfg,
		logger:       logger,
		adminsMap:    adminsMap,
		blacklistMap: blacklistMap,
	}
}

func (s *AccountService) IsAdmin(userID int64) bool {
	return s.adminsMap[userID]
}

func (s *AccountService) IsBlacklisted(userID int64) bool {
	return s.blacklistMap[userID]
}

// GetAccount returns the link for the chat, ErrAccountNotLinked when none.
func (s *AccountService) GetAccount(ctx context.Context, telegramID int64) (*models.Account, error) {
	account, err := s.store.GetAccount(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotLinked
	}
	return account, nil
}

func (s *AccountService) LinkAccount(ctx context.Context, account *models.Account) error {
	if account.Token == "" {
		return ErrEmptyToken
	}
	if account.Role != models.RoleRider && account.Role != models.RoleDriver {
		return ErrInvalidRole
	}

	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	account.LastActivity = now

	if err := s.store.SaveAccount(ctx, account); err != nil {
		return err
	}
	s.logger.Info().
		Int64("telegram_id", account.TelegramID).
		Str("role", string(account.Role)).
		Msg("account linked")
	return nil
}

func (s *AccountService) UnlinkAccount(ctx context.Context, telegramID int64) error {
	if err := s.store.DeleteAccount(ctx, telegramID); err != nil {
		return err
	}
	s.logger.Info().Int64("telegram_id", telegramID).Msg("account unlinked")
	return nil
}

func (s *AccountService) UpdateActivity(ctx context.Context, telegramID int64) error {
	return s.store.UpdateAccountActivity(ctx, telegramID)
}

func (s *AccountService) GetAllAccounts(ctx context.Context) ([]*models.Account, error) {
	return s.store.GetAllAccounts(ctx)
}
