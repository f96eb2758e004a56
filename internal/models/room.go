package models

import (
	"time"

	"github.com/uptrace/bun"
)

type RoomStatus string

const (
	RoomStatusActive RoomStatus = "active"
	RoomStatusFull   RoomStatus = "full"
)

// Room is a capacity-bounded occupancy unit created on demand under a
// guesthouse and tombstoned when its last occupant leaves. Invariants:
// 0 <= current_capacity <= max_capacity, and status == full exactly when
// current_capacity == max_capacity. The (guest_house_id, room_number) pair is
// unique so two concurrent creators cannot both insert the same slot.
type Room struct {
	bun.BaseModel `bun:"table:rooms"`

	ID              string     `bun:"id,pk"`
	GuestHouseID    string     `bun:"guest_house_id,notnull"`
	RoomNumber      int        `bun:"room_number,notnull"`
	MaxCapacity     int        `bun:"max_capacity,notnull"`
	CurrentCapacity int        `bun:"current_capacity,notnull,default:0"`
	Status          RoomStatus `bun:"status,notnull"`
	CreatedAt       time.Time  `bun:"created_at,notnull"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull"`
	DeletedAt       time.Time  `bun:"deleted_at,soft_delete,nullzero"`
}

func (r *Room) IsFull() bool {
	return r.CurrentCapacity >= r.MaxCapacity
}

func (r *Room) IsEmpty() bool {
	return r.CurrentCapacity == 0
}

// Occupy admits one traveler, keeping status in sync with capacity.
func (r *Room) Occupy() error {
	if r.IsFull() {
		return ErrRoomCapacityExceeded
	}
	r.CurrentCapacity++
	if r.IsFull() {
		r.Status = RoomStatusFull
	}
	return nil
}

// Vacate releases one traveler, flipping a previously full room back to active.
func (r *Room) Vacate() error {
	if r.IsEmpty() {
		return ErrRoomCapacityExceeded
	}
	r.CurrentCapacity--
	r.Status = RoomStatusActive
	return nil
}
