package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusCancelled TaskStatus = "cancelled"
	TaskStatusDead      TaskStatus = "dead"
)

// ScheduledTask is one durable row in the background task queue. Delivery is
// at-least-once: a task claimed by a crashed worker reappears once its
// visibility deadline passes, so every handler must be idempotent.
type ScheduledTask struct {
	bun.BaseModel `bun:"table:scheduled_tasks"`

	ID        string     `bun:"id,pk"`
	TaskName  string     `bun:"task_name,notnull"`
	Payload   []byte     `bun:"payload,nullzero"`
	RunAt     time.Time  `bun:"run_at,notnull"`
	Status    TaskStatus `bun:"status,notnull"`
	Attempts  int        `bun:"attempts,notnull,default:0"`
	LastError string     `bun:"last_error,nullzero"`
	ClaimedAt *time.Time `bun:"claimed_at"`
	CreatedAt time.Time  `bun:"created_at,notnull"`
	UpdatedAt time.Time  `bun:"updated_at,notnull"`
}

// DeadLetter records a scheduled task that exhausted its retries, with enough
// context for an operator to replay it by hand.
type DeadLetter struct {
	bun.BaseModel `bun:"table:dead_letters"`

	ID       string    `bun:"id,pk"`
	TaskID   string    `bun:"task_id,notnull"`
	TaskName string    `bun:"task_name,notnull"`
	Payload  []byte    `bun:"payload,nullzero"`
	Error    string    `bun:"error,notnull"`
	Attempts int       `bun:"attempts,notnull"`
	FailedAt time.Time `bun:"failed_at,notnull"`
}
