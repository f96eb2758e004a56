package models

import (
	"time"

	"github.com/uptrace/bun"
)

// City is a travel destination template. Its base cost and duration are
// multiplied by the airship factors at purchase time and snapshotted onto the
// ticket, so later edits never change issued tickets.
type City struct {
	bun.BaseModel `bun:"table:cities"`

	ID                string    `bun:"id,pk"`
	Name              string    `bun:"name,notnull"`
	Theme             string    `bun:"theme,nullzero"`
	Description       string    `bun:"description,nullzero"`
	ImageURL          string    `bun:"image_url,nullzero"`
	BaseCostPoints    int64     `bun:"base_cost_points,notnull"`
	BaseDurationHours float64   `bun:"base_duration_hours,notnull"`
	IsActive          bool      `bun:"is_active,notnull,default:true"`
	DisplayOrder      int       `bun:"display_order,notnull,default:0"`
	CreatedAt         time.Time `bun:"created_at,notnull"`
	UpdatedAt         time.Time `bun:"updated_at,notnull"`
	DeletedAt         time.Time `bun:"deleted_at,soft_delete,nullzero"`
}
