package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-voyage/internal/models"
	"ms-voyage/internal/utils"
)

// Task names understood by the worker. Registered handlers must be idempotent:
// the queue delivers at-least-once and a redelivered callback whose target
// entity already reached a terminal state is a no-op, not an error.
const (
	TaskCompleteTicket = "tickets.complete"
	TaskCheckIn        = "rooms.check_in"
	TaskCheckout       = "stays.checkout"
	TaskReminder       = "stays.reminder"
)

// TicketPayload is the payload for ticket completion and check-in tasks.
type TicketPayload struct {
	TicketID string `json:"ticket_id"`
}

// StayPayload is the payload for checkout and reminder tasks.
type StayPayload struct {
	StayID string `json:"stay_id"`
}

// Client is the scheduling interface consumed by the domain services.
type Client interface {
	// Schedule enqueues a task to run no earlier than runAt and returns its
	// handle, which can be passed to Cancel.
	Schedule(ctx context.Context, taskName string, payload any, runAt time.Time) (string, error)
	// Cancel withdraws a pending task. Cancelling a task that already ran (or
	// never existed) is a no-op.
	Cancel(ctx context.Context, taskID string) error
}

type DBLayer interface {
	InsertTask(ctx context.Context, task *models.ScheduledTask) error
	CancelPendingTask(ctx context.Context, taskID string) error
	ClaimDueTasks(ctx context.Context, now time.Time, limit int, visibility time.Duration) ([]models.ScheduledTask, error)
	MarkCompleted(ctx context.Context, taskID string, now time.Time) error
	RescheduleForRetry(ctx context.Context, taskID string, runAt time.Time, lastErr string) error
	MarkDead(ctx context.Context, task *models.ScheduledTask, lastErr string, now time.Time) error
}

// Queue is the durable, database-backed Client implementation. Tasks survive
// restarts; the Worker polls them out.
type Queue struct {
	DB DBLayer
}

func NewQueue(db DBLayer) *Queue {
	return &Queue{DB: db}
}

// NewTask builds a pending task row without enqueueing it. Callers whose task
// must commit together with their own rows insert it inside their database
// transaction; Queue.Schedule is the standalone path.
func NewTask(taskName string, payload any, runAt time.Time) (*models.ScheduledTask, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().UTC()
	return &models.ScheduledTask{
		ID:        utils.GenerateID(),
		TaskName:  taskName,
		Payload:   body,
		RunAt:     runAt.UTC(),
		Status:    models.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (q *Queue) Schedule(ctx context.Context, taskName string, payload any, runAt time.Time) (string, error) {
	task, err := NewTask(taskName, payload, runAt)
	if err != nil {
		return "", err
	}
	if err := q.DB.InsertTask(ctx, task); err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}
	return task.ID, nil
}

func (q *Queue) Cancel(ctx context.Context, taskID string) error {
	if taskID == "" {
		return nil
	}
	return q.DB.CancelPendingTask(ctx, taskID)
}
