package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-voyage/internal/config"
	"ms-voyage/internal/ledger"
	"ms-voyage/internal/logger"
	"ms-voyage/internal/models"
	"ms-voyage/internal/utils"
)

type DBLayer interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateNickname(ctx context.Context, id, nickname string) error
	SoftDeleteUser(ctx context.Context, id string) error
}

type Ledger interface {
	Earn(ctx context.Context, p ledger.EarnParams) (*models.PointTransaction, error)
}

type UserService struct {
	DB     DBLayer
	Ledger Ledger
	Logger *logger.Logger
	Cfg    config.StayConfig
}

func NewUserService(db DBLayer, ledgerSvc Ledger, log *logger.Logger, cfg config.StayConfig) *UserService {
	return &UserService{DB: db, Ledger: ledgerSvc, Logger: log, Cfg: cfg}
}

// Register creates the account and grants the signup bonus. The bonus earn
// references the user row, so a replayed registration callback can never grant
// it twice.
func (s *UserService) Register(ctx context.Context, email, nickname string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email %q", email)
	}
	if nickname = strings.TrimSpace(nickname); nickname == "" {
		return nil, fmt.Errorf("nickname is required")
	}

	if existing, err := s.DB.GetUserByEmail(ctx, email); err != nil && err != models.ErrNotFound {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("email %s is already registered", email)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:        utils.GenerateID(),
		Email:     email,
		Nickname:  nickname,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.DB.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	bonus, err := s.Ledger.Earn(ctx, ledger.EarnParams{
		UserID:        user.ID,
		Amount:        s.Cfg.SignupBonus,
		Reason:        models.TransactionReasonSignedUp,
		ReferenceType: models.TransactionReferenceUsers,
		ReferenceID:   user.ID,
		Description:   "welcome aboard",
	})
	if err != nil {
		return nil, fmt.Errorf("grant signup bonus: %w", err)
	}
	user.CurrentPoints = bonus.BalanceAfter

	s.Logger.Info("USER", fmt.Sprintf("registered %s (%s), signup bonus %d", user.ID, email, s.Cfg.SignupBonus))
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.DB.GetUserByID(ctx, id)
}

func (s *UserService) UpdateNickname(ctx context.Context, id, nickname string) (*models.User, error) {
	if nickname = strings.TrimSpace(nickname); nickname == "" {
		return nil, fmt.Errorf("nickname is required")
	}
	if err := s.DB.UpdateNickname(ctx, id, nickname); err != nil {
		return nil, err
	}
	return s.DB.GetUserByID(ctx, id)
}

// Deactivate soft-deletes the account. Ledger history stays intact.
func (s *UserService) Deactivate(ctx context.Context, id string) error {
	if err := s.DB.SoftDeleteUser(ctx, id); err != nil {
		return err
	}
	s.Logger.Info("USER", fmt.Sprintf("deactivated %s", id))
	return nil
}
