package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-voyage/internal/models"
	"ms-voyage/internal/utils"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) InsertTask(ctx context.Context, task *models.ScheduledTask) error {
	_, err := d.Bun.NewInsert().Model(task).Exec(ctx)
	return err
}

// CancelPendingTask flips a pending task to cancelled. A task that already
// started (or finished) is left alone; the handler's own state checks make the
// stale delivery harmless.
func (d *DB) CancelPendingTask(ctx context.Context, taskID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.ScheduledTask)(nil)).
		Set("status = ?", models.TaskStatusCancelled).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", taskID).
		Where("status = ?", models.TaskStatusPending).
		Exec(ctx)
	return err
}

// ClaimDueTasks atomically marks up to limit due tasks as running and returns
// them. Running tasks whose claim is older than the visibility timeout are
// reclaimed, which is what makes delivery at-least-once across worker crashes.
func (d *DB) ClaimDueTasks(ctx context.Context, now time.Time, limit int, visibility time.Duration) ([]models.ScheduledTask, error) {
	var claimed []models.ScheduledTask
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var due []models.ScheduledTask
		q := tx.NewSelect().
			Model(&due).
			Where("(status = ? AND run_at <= ?) OR (status = ? AND claimed_at < ?)",
				models.TaskStatusPending, now, models.TaskStatusRunning, now.Add(-visibility)).
			Order("run_at ASC").
			Limit(limit)
		if tx.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE SKIP LOCKED")
		}
		if err := q.Scan(ctx); err != nil {
			return err
		}

		for i := range due {
			due[i].Status = models.TaskStatusRunning
			due[i].Attempts++
			claimTime := now
			due[i].ClaimedAt = &claimTime
			due[i].UpdatedAt = now
			_, err := tx.NewUpdate().
				Model(&due[i]).
				Column("status", "attempts", "claimed_at", "updated_at").
				Where("id = ?", due[i].ID).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		claimed = due
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (d *DB) MarkCompleted(ctx context.Context, taskID string, now time.Time) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.ScheduledTask)(nil)).
		Set("status = ?", models.TaskStatusCompleted).
		Set("updated_at = ?", now).
		Where("id = ?", taskID).
		Exec(ctx)
	return err
}

func (d *DB) RescheduleForRetry(ctx context.Context, taskID string, runAt time.Time, lastErr string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.ScheduledTask)(nil)).
		Set("status = ?", models.TaskStatusPending).
		Set("run_at = ?", runAt).
		Set("last_error = ?", lastErr).
		Set("claimed_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", taskID).
		Exec(ctx)
	return err
}

// MarkDead buries the task and records a dead letter in one transaction.
func (d *DB) MarkDead(ctx context.Context, task *models.ScheduledTask, lastErr string, now time.Time) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model((*models.ScheduledTask)(nil)).
			Set("status = ?", models.TaskStatusDead).
			Set("last_error = ?", lastErr).
			Set("updated_at = ?", now).
			Where("id = ?", task.ID).
			Exec(ctx)
		if err != nil {
			return err
		}

		letter := &models.DeadLetter{
			ID:       utils.GenerateID(),
			TaskID:   task.ID,
			TaskName: task.TaskName,
			Payload:  task.Payload,
			Error:    lastErr,
			Attempts: task.Attempts,
			FailedAt: now,
		}
		_, err = tx.NewInsert().Model(letter).Exec(ctx)
		return err
	})
}
