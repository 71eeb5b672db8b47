package repositories

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/orbis/livesvc/livesvc/boosters"
	"github.com/orbis/livesvc/livesvc/database/models"
	"github.com/orbis/livesvc/livesvc/entitlements"
)

type BoosterRepository struct {
	baseRepository
}

var _ boosters.Repository = (*BoosterRepository)(nil)

func NewBoosterRepository(db *bun.DB) *BoosterRepository {
	return &BoosterRepository{baseRepository: newBaseRepository(db)}
}

func (r *BoosterRepository) Insert(ctx context.Context, g boosters.Grant) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := boosterRow(g)
	row.CreatedAt = time.Now()
	if _, err := r.db.NewInsert().Model(&row).ExcludeColumn("id").Exec(ctx); err != nil {
		return wrapErr("insert", "booster", err)
	}
	return nil
}

// ListActive returns every unexpired grant. Rows with an unknown kind are
// skipped.
func (r *BoosterRepository) ListActive(ctx context.Context, now time.Time) ([]boosters.Grant, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var rows []models.Booster
	err := r.db.NewSelect().Model(&rows).
		Where("expires_at > ?", now).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("list", "boosters", err)
	}

	out := make([]boosters.Grant, 0, len(rows))
	for _, row := range rows {
		g, ok := grantFromRow(row)
		if !ok {
			slog.Warn("Skipping booster with unknown kind",
				slog.String("type", "db"),
				slog.Int64("id", row.ID),
				slog.String("kind", row.Kind))
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (r *BoosterRepository) DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	sub := r.db.NewSelect().Model((*models.Booster)(nil)).
		Column("id").
		Where("expires_at <= ?", now).
		Order("id ASC").
		Limit(limit)
	res, err := r.db.NewDelete().Model((*models.Booster)(nil)).
		Where("id IN (?)", sub).
		Exec(ctx)
	if err != nil {
		return 0, wrapErr("purge", "boosters", err)
	}
	return res.RowsAffected()
}

func boosterRow(g boosters.Grant) models.Booster {
	row := models.Booster{
		Scope:      string(g.Scope),
		ServerID:   nullable(g.ServerID),
		Target:     models.BoosterTargetAll,
		Kind:       string(g.Kind),
		Multiplier: g.Multiplier,
		ExpiresAt:  g.ExpiresAt,
	}
	if !g.ForAll() {
		row.Target = models.BoosterTargetPlayer
		row.PlayerID = nullable(g.PlayerID.String())
	}
	return row
}

func grantFromRow(row models.Booster) (boosters.Grant, bool) {
	kind, ok := boosters.ParseKind(row.Kind)
	if !ok {
		return boosters.Grant{}, false
	}
	g := boosters.Grant{
		ID:         row.ID,
		Scope:      entitlements.ParseScope(row.Scope),
		ServerID:   deref(row.ServerID),
		Kind:       kind,
		Multiplier: boosters.Sanitize(row.Multiplier),
		ExpiresAt:  row.ExpiresAt,
	}
	if g.Scope == entitlements.ScopeNetwork {
		g.ServerID = ""
	}
	if row.Target == models.BoosterTargetPlayer {
		g.PlayerID = parsePlayerID(deref(row.PlayerID), "boosters")
		if g.PlayerID == uuid.Nil {
			return boosters.Grant{}, false
		}
	}
	return g, true
}
