package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	BoosterTargetAll    = "ALL"
	BoosterTargetPlayer = "PLAYER"
)

type Booster struct {
	bun.BaseModel `bun:"table:boosters,alias:bst"`

	ID         int64     `bun:"id,pk,autoincrement"`
	Scope      string    `bun:"scope,notnull,type:varchar(16)"`
	ServerID   *string   `bun:"server_id,type:varchar(64)"`
	Target     string    `bun:"target,notnull,type:varchar(16)"`
	PlayerID   *string   `bun:"player_id,type:varchar(36)"`
	Kind       string    `bun:"kind,notnull,type:varchar(32)"`
	Multiplier float64   `bun:"multiplier,notnull"`
	ExpiresAt  time.Time `bun:"expires_at,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
