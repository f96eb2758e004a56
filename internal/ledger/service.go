package ledger

import (
	"context"
	"fmt"
	"time"

	"ms-voyage/internal/logger"
	"ms-voyage/internal/models"
	"ms-voyage/internal/utils"
)

// TxOps are the storage operations available inside one ledger transaction.
// GetUserForUpdate must hold an exclusive row lock on the user until the
// surrounding transaction commits; that lock is what serializes concurrent
// earns and spends against the same balance.
type TxOps interface {
	GetUserForUpdate(ctx context.Context, userID string) (*models.User, error)
	UpdateUserBalance(ctx context.Context, userID string, balance int64, now time.Time) error
	InsertTransaction(ctx context.Context, tx *models.PointTransaction) error
	// ReferenceExists reports whether an earn carrying this reference was
	// already recorded. Callers must hold the user row lock first.
	ReferenceExists(ctx context.Context, refType models.TransactionReference, refID string) (bool, error)
}

type DBLayer interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, ops TxOps) error) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	ListTransactions(ctx context.Context, userID string, filter TransactionFilter) ([]models.PointTransaction, error)
}

type TransactionFilter struct {
	Type   models.TransactionType
	Reason models.TransactionReason
	Limit  int
	Offset int
}

// EarnParams describes one balance mutation. Reference is optional; when set,
// earns are deduplicated on it so a replayed reward is rejected rather than
// granted twice.
type EarnParams struct {
	UserID        string
	Amount        int64
	Reason        models.TransactionReason
	ReferenceType models.TransactionReference
	ReferenceID   string
	Description   string
}

type SpendParams = EarnParams

// LedgerService owns the points ledger. The User.current_points column is a
// denormalized view; the transaction log is the source of truth and the two
// are only ever written together, inside one transaction.
type LedgerService struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewLedgerService(db DBLayer, log *logger.Logger) *LedgerService {
	return &LedgerService{DB: db, Logger: log}
}

// Earn credits points and appends a COMPLETED transaction atomically.
func (s *LedgerService) Earn(ctx context.Context, p EarnParams) (*models.PointTransaction, error) {
	if p.Amount <= 0 {
		return nil, models.ErrInvalidAmount
	}

	var created *models.PointTransaction
	err := s.DB.RunInTx(ctx, func(ctx context.Context, ops TxOps) error {
		user, err := ops.GetUserForUpdate(ctx, p.UserID)
		if err != nil {
			return err
		}

		// The duplicate check is only sound under the user row lock taken
		// above; earns racing on the same reference serialize there.
		if p.ReferenceType != "" && p.ReferenceID != "" {
			exists, err := ops.ReferenceExists(ctx, p.ReferenceType, p.ReferenceID)
			if err != nil {
				return fmt.Errorf("check reference: %w", err)
			}
			if exists {
				return models.ErrDuplicatedReward
			}
		}

		tx := s.buildTransaction(user, models.TransactionTypeEarn, user.CurrentPoints+p.Amount, p)
		if err := ops.InsertTransaction(ctx, tx); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if err := ops.UpdateUserBalance(ctx, user.ID, tx.BalanceAfter, tx.CreatedAt); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		created = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogLedger("EARN", p.UserID, fmt.Sprintf("%d points (%s), balance %d", p.Amount, p.Reason, created.BalanceAfter))
	return created, nil
}

// Spend debits points atomically. A spend that would drive the balance
// negative fails with ErrInsufficientBalance and leaves no ledger entry.
func (s *LedgerService) Spend(ctx context.Context, p SpendParams) (*models.PointTransaction, error) {
	if p.Amount <= 0 {
		return nil, models.ErrInvalidAmount
	}

	var created *models.PointTransaction
	err := s.DB.RunInTx(ctx, func(ctx context.Context, ops TxOps) error {
		user, err := ops.GetUserForUpdate(ctx, p.UserID)
		if err != nil {
			return err
		}
		if user.CurrentPoints < p.Amount {
			return models.ErrInsufficientBalance
		}

		tx := s.buildTransaction(user, models.TransactionTypeSpend, user.CurrentPoints-p.Amount, p)
		if err := ops.InsertTransaction(ctx, tx); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if err := ops.UpdateUserBalance(ctx, user.ID, tx.BalanceAfter, tx.CreatedAt); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		created = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogLedger("SPEND", p.UserID, fmt.Sprintf("%d points (%s), balance %d", p.Amount, p.Reason, created.BalanceAfter))
	return created, nil
}

func (s *LedgerService) GetBalance(ctx context.Context, userID string) (int64, error) {
	user, err := s.DB.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.CurrentPoints, nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, userID string, filter TransactionFilter) ([]models.PointTransaction, error) {
	return s.DB.ListTransactions(ctx, userID, filter)
}

func (s *LedgerService) buildTransaction(user *models.User, txType models.TransactionType, balanceAfter int64, p EarnParams) *models.PointTransaction {
	now := time.Now().UTC()
	return &models.PointTransaction{
		ID:            utils.GenerateID(),
		UserID:        user.ID,
		Type:          txType,
		Amount:        p.Amount,
		Reason:        p.Reason,
		ReferenceType: p.ReferenceType,
		ReferenceID:   p.ReferenceID,
		BalanceBefore: user.CurrentPoints,
		BalanceAfter:  balanceAfter,
		Status:        models.TransactionStatusCompleted,
		Description:   p.Description,
		CreatedAt:     now,
	}
}
