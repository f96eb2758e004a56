package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-voyage/internal/ledger"
	"ms-voyage/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// RunInTx runs fn inside a database transaction; the TxOps it receives issue
// every query against that transaction.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, ops ledger.TxOps) error) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &txOps{tx: tx})
	})
}

func (d *DB) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *DB) ListTransactions(ctx context.Context, userID string, filter ledger.TransactionFilter) ([]models.PointTransaction, error) {
	var txs []models.PointTransaction
	q := d.Bun.NewSelect().
		Model(&txs).
		Where("user_id = ?", userID).
		Order("created_at ASC")
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Reason != "" {
		q = q.Where("reason = ?", filter.Reason)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return txs, nil
}

type txOps struct {
	tx bun.Tx
}

// GetUserForUpdate loads the user row under FOR UPDATE on Postgres. SQLite has
// no row locks; there the single writer serializes transactions instead, so
// the clause is skipped.
func (o *txOps) GetUserForUpdate(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	q := o.tx.NewSelect().
		Model(&user).
		Where("id = ?", userID).
		Limit(1)
	if o.tx.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (o *txOps) UpdateUserBalance(ctx context.Context, userID string, balance int64, now time.Time) error {
	_, err := o.tx.NewUpdate().
		Model((*models.User)(nil)).
		Set("current_points = ?", balance).
		Set("updated_at = ?", now).
		Where("id = ?", userID).
		Exec(ctx)
	return err
}

func (o *txOps) InsertTransaction(ctx context.Context, tx *models.PointTransaction) error {
	_, err := o.tx.NewInsert().Model(tx).Exec(ctx)
	if err != nil && tx.Type == models.TransactionTypeEarn && tx.ReferenceType != "" && isUniqueViolation(err) {
		// The partial unique index on earn references backs up the
		// ReferenceExists check on Postgres.
		return models.ErrDuplicatedReward
	}
	return err
}

func (o *txOps) ReferenceExists(ctx context.Context, refType models.TransactionReference, refID string) (bool, error) {
	return o.tx.NewSelect().
		Model((*models.PointTransaction)(nil)).
		Where("type = ?", models.TransactionTypeEarn).
		Where("reference_type = ?", refType).
		Where("reference_id = ?", refID).
		Exists(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
