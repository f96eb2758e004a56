package models

import (
	"time"

	"github.com/uptrace/bun"
)

type GuestHouseType string

const (
	GuestHouseTypeMixed GuestHouseType = "mixed"
	GuestHouseTypeQuiet GuestHouseType = "quiet"
)

// GuestHouse is the permanent per-city lodging container. Rows are seeded and
// never created or destroyed during normal operation; rooms come and go
// underneath them.
type GuestHouse struct {
	bun.BaseModel `bun:"table:guest_houses"`

	ID          string         `bun:"id,pk"`
	CityID      string         `bun:"city_id,notnull"`
	Type        GuestHouseType `bun:"type,notnull"`
	Name        string         `bun:"name,notnull"`
	Description string         `bun:"description,nullzero"`
	IsActive    bool           `bun:"is_active,notnull,default:true"`
	CreatedAt   time.Time      `bun:"created_at,notnull"`
	UpdatedAt   time.Time      `bun:"updated_at,notnull"`
}
