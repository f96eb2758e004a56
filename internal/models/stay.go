package models

import (
	"time"

	"github.com/uptrace/bun"
)

type StayStatus string

const (
	StayStatusCheckedIn  StayStatus = "checked_in"
	StayStatusCheckedOut StayStatus = "checked_out"
)

// Stay is one traveler's occupancy record within a room, with its own checkout
// clock. A user holds at most one checked-in stay at a time.
//
// scheduled_check_out_at = check_in_at + 24h * (extension_count + 1), and
// total_extension_cost = extension_count * EXTENSION_COST. The two task-ID
// columns remember the scheduler handles for the pending checkout and reminder
// callbacks so an extension can cancel-and-replace them.
type Stay struct {
	bun.BaseModel `bun:"table:stays"`

	ID           string     `bun:"id,pk"`
	UserID       string     `bun:"user_id,notnull"`
	CityID       string     `bun:"city_id,notnull"`
	GuestHouseID string     `bun:"guest_house_id,notnull"`
	RoomID       string     `bun:"room_id,notnull"`
	TicketID     string     `bun:"ticket_id,notnull"`
	Status       StayStatus `bun:"status,notnull"`

	CheckInAt           time.Time  `bun:"check_in_at,notnull"`
	ScheduledCheckOutAt time.Time  `bun:"scheduled_check_out_at,notnull"`
	ActualCheckOutAt    *time.Time `bun:"actual_check_out_at"`
	ExtensionCount      int        `bun:"extension_count,notnull,default:0"`
	TotalExtensionCost  int64      `bun:"total_extension_cost,notnull,default:0"`

	CheckoutTaskID string `bun:"checkout_task_id,nullzero"`
	ReminderTaskID string `bun:"reminder_task_id,nullzero"`

	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
	DeletedAt time.Time `bun:"deleted_at,soft_delete,nullzero"`
}

func (s *Stay) IsCheckedIn() bool {
	return s.Status == StayStatusCheckedIn
}
