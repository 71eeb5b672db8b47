package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Entitlement rows with scope NETWORK have a NULL server_id.
type Entitlement struct {
	bun.BaseModel `bun:"table:entitlements,alias:ent"`

	ID        int64      `bun:"id,pk,autoincrement"`
	PlayerID  string     `bun:"player_id,notnull,type:varchar(36)"`
	Scope     string     `bun:"scope,notnull,type:varchar(16)"`
	ServerID  *string    `bun:"server_id,type:varchar(64)"`
	Key       string     `bun:"key,notnull,type:varchar(64)"`
	ExpiresAt *time.Time `bun:"expires_at"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}
