package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Progress struct {
	bun.BaseModel `bun:"table:bp_progress,alias:bpp"`

	ServerID  string    `bun:"server_id,pk,type:varchar(64)"`
	Season    int       `bun:"season,pk"`
	PlayerID  string    `bun:"player_id,pk,type:varchar(36)"`
	Points    int64     `bun:"points,notnull,default:0"`
	Tier      int       `bun:"tier,notnull,default:0"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

type StepProgress struct {
	bun.BaseModel `bun:"table:bp_steps,alias:bps"`

	ServerID  string    `bun:"server_id,pk,type:varchar(64)"`
	Season    int       `bun:"season,pk"`
	PlayerID  string    `bun:"player_id,pk,type:varchar(36)"`
	QuestID   string    `bun:"quest_id,pk,type:varchar(64)"`
	StepIdx   int       `bun:"step_idx,notnull,default:0"`
	Progress  int64     `bun:"progress,notnull,default:0"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

const (
	TrackFree    = "FREE"
	TrackPremium = "PREMIUM"
)

type TierClaim struct {
	bun.BaseModel `bun:"table:bp_claims,alias:bpc"`

	ServerID  string    `bun:"server_id,pk,type:varchar(64)"`
	Season    int       `bun:"season,pk"`
	PlayerID  string    `bun:"player_id,pk,type:varchar(36)"`
	Tier      int       `bun:"tier,pk"`
	Track     string    `bun:"track,pk,type:varchar(16)"`
	ClaimedAt time.Time `bun:"claimed_at,notnull,default:current_timestamp"`
}

// Period stores the reset tokens seen at the player's last load.
type Period struct {
	bun.BaseModel `bun:"table:bp_periods,alias:bpr"`

	ServerID   string    `bun:"server_id,pk,type:varchar(64)"`
	Season     int       `bun:"season,pk"`
	PlayerID   string    `bun:"player_id,pk,type:varchar(36)"`
	DailyDay   int64     `bun:"daily_day,notnull,default:0"`
	WeeklyWeek int64     `bun:"weekly_week,notnull,default:0"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
