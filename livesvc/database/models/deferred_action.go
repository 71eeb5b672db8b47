package models

import (
	"time"

	"github.com/uptrace/bun"
)

// DeferredAction rows with a NULL server_id are claimable on any server.
type DeferredAction struct {
	bun.BaseModel `bun:"table:deferred_actions,alias:dfa"`

	ID           int64     `bun:"id,pk,autoincrement"`
	ServerID     *string   `bun:"server_id,type:varchar(64)"`
	PlayerNameLC string    `bun:"player_name_lc,notnull,type:varchar(32)"`
	Type         string    `bun:"type,notnull,type:varchar(64)"`
	Amount       int64     `bun:"amount,notnull"`
	K            string    `bun:"k,notnull,default:''"`
	V            string    `bun:"v,notnull,default:''"`
	Source       string    `bun:"source,notnull,default:''"`
	ExpiresAt    time.Time `bun:"expires_at,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
