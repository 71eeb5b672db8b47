package progression

import (
	"context"

	"github.com/google/uuid"
)

// Snapshot is a player's stored progression for one season.
type Snapshot struct {
	Points int64
	Tier   int
	Quests map[string]QuestState
	Claims []Claim
	Period Period
}

//go:generate mockgen -source=store.go -destination=mock/store.go -package=mock Store

// Store persists ledgers. Rows are partitioned by (serverID, season).
type Store interface {
	// Load returns the stored snapshot. A player with no rows yields a zero
	// Snapshot and no error.
	Load(ctx context.Context, serverID string, season int, playerID uuid.UUID) (Snapshot, error)
	// FlushDelta writes progress, step and claim rows in one transaction.
	FlushDelta(ctx context.Context, serverID string, season int, playerID uuid.UUID, d Delta) error
	UpsertPeriod(ctx context.Context, serverID string, season int, playerID uuid.UUID, p Period) error
}
