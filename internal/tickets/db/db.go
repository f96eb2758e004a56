package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-voyage/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// CreateTicket inserts the ticket and its completion task as one transaction,
// so an issued ticket always has an arrival on the queue.
func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket, completion *models.ScheduledTask) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(ticket).Exec(ctx); err != nil {
			return err
		}
		if completion != nil {
			if _, err := tx.NewInsert().Model(completion).Exec(ctx); err != nil {
				return fmt.Errorf("enqueue %s: %w", completion.TaskName, err)
			}
		}
		return nil
	})
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) ListTicketsByUser(ctx context.Context, userID string, status models.TicketStatus) ([]models.Ticket, error) {
	var tickets []models.Ticket
	q := d.Bun.NewSelect().
		Model(&tickets).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetBoardingTicketByUser(ctx context.Context, userID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("user_id = ?", userID).
		Where("status = ?", models.TicketStatusBoarding).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// TransitionStatus is a compare-and-swap on the status column; concurrent
// callers cannot both observe the from-state. When the swap lands and chained
// is non-nil, the chained task commits in the same transaction, so the
// transition cannot outlive a lost follow-up.
func (d *DB) TransitionStatus(ctx context.Context, id string, from, to models.TicketStatus, now time.Time, chained *models.ScheduledTask) (bool, error) {
	var changed bool
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("status = ?", to).
			Set("updated_at = ?", now).
			Where("id = ?", id).
			Where("status = ?", from).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		changed = affected > 0

		if changed && chained != nil {
			if _, err := tx.NewInsert().Model(chained).Exec(ctx); err != nil {
				return fmt.Errorf("enqueue %s: %w", chained.TaskName, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}
