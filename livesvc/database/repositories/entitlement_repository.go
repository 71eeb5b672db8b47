package repositories

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/orbis/livesvc/livesvc/database/models"
	"github.com/orbis/livesvc/livesvc/entitlements"
)

type EntitlementRepository struct {
	baseRepository
}

var _ entitlements.Repository = (*EntitlementRepository)(nil)

func NewEntitlementRepository(db *bun.DB) *EntitlementRepository {
	return &EntitlementRepository{baseRepository: newBaseRepository(db)}
}

func (r *EntitlementRepository) match(q bun.QueryBuilder, l entitlements.Lookup) bun.QueryBuilder {
	return q.
		Where("player_id = ?", l.PlayerID.String()).
		Where("scope = ?", string(l.Scope)).
		Where("server_id IS NOT DISTINCT FROM ?", nullable(l.ServerID)).
		Where("key = ?", l.Key)
}

func (r *EntitlementRepository) Exists(ctx context.Context, l entitlements.Lookup, now time.Time) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	q := r.db.NewSelect().Model((*models.Entitlement)(nil))
	r.match(q.QueryBuilder(), l)
	ok, err := q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("expires_at IS NULL").WhereOr("expires_at > ?", now)
	}).Exists(ctx)
	if err != nil {
		return false, wrapErr("check", "entitlement", err)
	}
	return ok, nil
}

// Upsert grants or extends an entitlement. A nil ExpiresAt makes it
// permanent.
func (r *EntitlementRepository) Upsert(ctx context.Context, e entitlements.Entitlement) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := models.Entitlement{
		PlayerID:  e.PlayerID.String(),
		Scope:     string(e.Scope),
		ServerID:  nullable(e.ServerID),
		Key:       e.Key,
		ExpiresAt: e.ExpiresAt,
		CreatedAt: time.Now(),
	}
	_, err := r.db.NewInsert().Model(&row).
		ExcludeColumn("id").
		On("CONFLICT (player_id, scope, server_id, key) DO UPDATE").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	if err != nil {
		return wrapErr("upsert", "entitlement", err)
	}
	return nil
}

func (r *EntitlementRepository) Delete(ctx context.Context, l entitlements.Lookup) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	q := r.db.NewDelete().Model((*models.Entitlement)(nil))
	r.match(q.QueryBuilder(), l)
	if _, err := q.Exec(ctx); err != nil {
		return wrapErr("delete", "entitlement", err)
	}
	return nil
}
