package models

import (
	"math"
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

// Ticket lifecycle: PURCHASED -> BOARDING -> COMPLETED, or
// PURCHASED -> CANCELLED. Purchase boards immediately, so PURCHASED is only
// ever observed inside the purchase transaction itself.
const (
	TicketStatusPurchased TicketStatus = "purchased"
	TicketStatusBoarding  TicketStatus = "boarding"
	TicketStatusCompleted TicketStatus = "completed"
	TicketStatusCancelled TicketStatus = "cancelled"
)

// Ticket is a purchased travel authorization. The city_* and airship_* columns
// are value copies taken at purchase time, not live foreign lookups.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID           string       `bun:"id,pk"`
	TicketNumber string       `bun:"ticket_number,unique,notnull"`
	UserID       string       `bun:"user_id,notnull"`
	Status       TicketStatus `bun:"status,notnull"`

	CityID                string  `bun:"city_id,notnull"`
	CityName              string  `bun:"city_name,notnull"`
	CityTheme             string  `bun:"city_theme,nullzero"`
	CityBaseCostPoints    int64   `bun:"city_base_cost_points,notnull"`
	CityBaseDurationHours float64 `bun:"city_base_duration_hours,notnull"`

	AirshipID             string  `bun:"airship_id,notnull"`
	AirshipName           string  `bun:"airship_name,notnull"`
	AirshipCostFactor     float64 `bun:"airship_cost_factor,notnull"`
	AirshipDurationFactor float64 `bun:"airship_duration_factor,notnull"`

	CostPoints  int64     `bun:"cost_points,notnull"`
	QRCode      []byte    `bun:"qr_code,nullzero"`
	DepartureAt time.Time `bun:"departure_at,notnull"`
	ArrivalAt   time.Time `bun:"arrival_at,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
	DeletedAt time.Time `bun:"deleted_at,soft_delete,nullzero"`
}

func (t *Ticket) IsTerminal() bool {
	return t.Status == TicketStatusCompleted || t.Status == TicketStatusCancelled
}

// TravelCost computes the point cost for a city/airship pair, rounded to the
// nearest whole point.
func TravelCost(city *City, airship *Airship) int64 {
	return int64(math.Round(float64(city.BaseCostPoints) * airship.CostFactor))
}

// TravelDuration computes the flight duration for a city/airship pair.
func TravelDuration(city *City, airship *Airship) time.Duration {
	hours := city.BaseDurationHours * airship.DurationFactor
	return time.Duration(hours * float64(time.Hour))
}
