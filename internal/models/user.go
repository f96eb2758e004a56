package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID            string    `bun:"id,pk"`
	Email         string    `bun:"email,unique,notnull"`
	Nickname      string    `bun:"nickname,notnull"`
	CurrentPoints int64     `bun:"current_points,notnull,default:0"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
	DeletedAt     time.Time `bun:"deleted_at,soft_delete,nullzero"`
}
