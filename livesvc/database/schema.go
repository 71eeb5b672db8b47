package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/orbis/livesvc/livesvc/database/models"
)

// InitializeSchema creates every table and index if missing.
func (db *DB) InitializeSchema(ctx context.Context) error {
	tables := []any{
		(*models.Progress)(nil),
		(*models.StepProgress)(nil),
		(*models.TierClaim)(nil),
		(*models.Period)(nil),
		(*models.Entitlement)(nil),
		(*models.Booster)(nil),
		(*models.DeferredAction)(nil),
	}
	for _, model := range tables {
		if _, err := db.bunDB.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_bp_progress_points ON bp_progress(server_id, season, points DESC);",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_entitlements_identity ON entitlements(player_id, scope, server_id, key) NULLS NOT DISTINCT;",
		"CREATE INDEX IF NOT EXISTS idx_entitlements_expires ON entitlements(expires_at) WHERE expires_at IS NOT NULL;",
		"CREATE INDEX IF NOT EXISTS idx_boosters_expires ON boosters(expires_at);",
		"CREATE INDEX IF NOT EXISTS idx_boosters_lookup ON boosters(scope, server_id, kind);",
		"CREATE INDEX IF NOT EXISTS idx_deferred_actions_claim ON deferred_actions(player_name_lc, server_id, expires_at);",
		"CREATE INDEX IF NOT EXISTS idx_deferred_actions_expires ON deferred_actions(expires_at);",
	}
	for _, idx := range indexes {
		if _, err := db.ExecWithLog(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	slog.Info("Schema initialized",
		slog.String("type", "db"),
		slog.Int("tables", len(tables)),
		slog.Int("indexes", len(indexes)))
	return nil
}
