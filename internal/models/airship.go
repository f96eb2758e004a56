package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Airship is a vehicle template: a pair of multipliers applied to the city's
// base cost and duration.
type Airship struct {
	bun.BaseModel `bun:"table:airships"`

	ID             string    `bun:"id,pk"`
	Name           string    `bun:"name,notnull"`
	Description    string    `bun:"description,nullzero"`
	ImageURL       string    `bun:"image_url,nullzero"`
	CostFactor     float64   `bun:"cost_factor,notnull"`
	DurationFactor float64   `bun:"duration_factor,notnull"`
	IsActive       bool      `bun:"is_active,notnull,default:true"`
	DisplayOrder   int       `bun:"display_order,notnull,default:0"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`
	DeletedAt      time.Time `bun:"deleted_at,soft_delete,nullzero"`
}
