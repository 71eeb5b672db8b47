package repositories

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/uptrace/bun"

	"github.com/orbis/livesvc/livesvc/actions"
	"github.com/orbis/livesvc/livesvc/database/models"
)

// claimDueSQL selects and deletes in one statement so two servers can never
// both claim a row.
const claimDueSQL = `
DELETE FROM deferred_actions
WHERE id IN (
	SELECT id FROM deferred_actions
	WHERE (server_id = ? OR server_id IS NULL)
	  AND player_name_lc = ?
	  AND expires_at > ?
	ORDER BY id
	LIMIT ?
	FOR UPDATE SKIP LOCKED
)
RETURNING id, server_id, player_name_lc, type, amount, k, v, source, expires_at, created_at`

type DeferredRepository struct {
	baseRepository
}

var _ actions.DeferredRepository = (*DeferredRepository)(nil)

func NewDeferredRepository(db *bun.DB) *DeferredRepository {
	return &DeferredRepository{baseRepository: newBaseRepository(db)}
}

func (r *DeferredRepository) Insert(ctx context.Context, e actions.DeferredEntry) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := models.DeferredAction{
		ServerID:     nullable(e.ServerID),
		PlayerNameLC: e.NameLC,
		Type:         e.Action.Type(),
		Amount:       e.Action.Amount(),
		K:            e.Action.Key(),
		V:            e.Action.Value(),
		Source:       e.Source,
		ExpiresAt:    e.ExpiresAt,
		CreatedAt:    time.Now(),
	}
	if _, err := r.db.NewInsert().Model(&row).ExcludeColumn("id").Exec(ctx); err != nil {
		return wrapErr("queue", "deferred action", err)
	}
	return nil
}

func (r *DeferredRepository) ClaimDue(ctx context.Context, serverID, nameLC string, now time.Time, limit int) ([]actions.DeferredAction, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var rows []models.DeferredAction
	if err := r.db.NewRaw(claimDueSQL, serverID, nameLC, now, limit).Scan(ctx, &rows); err != nil {
		return nil, wrapErr("claim", "deferred actions", err)
	}
	return decodeDeferred(rows), nil
}

func (r *DeferredRepository) DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	sub := r.db.NewSelect().Model((*models.DeferredAction)(nil)).
		Column("id").
		Where("expires_at <= ?", now).
		Order("id ASC").
		Limit(limit)
	res, err := r.db.NewDelete().Model((*models.DeferredAction)(nil)).
		Where("id IN (?)", sub).
		Exec(ctx)
	if err != nil {
		return 0, wrapErr("purge", "deferred actions", err)
	}
	return res.RowsAffected()
}

// decodeDeferred orders rows oldest first. RETURNING does not guarantee the
// subselect's order.
func decodeDeferred(rows []models.DeferredAction) []actions.DeferredAction {
	slices.SortFunc(rows, func(a, b models.DeferredAction) int {
		return cmp.Compare(a.ID, b.ID)
	})
	out := make([]actions.DeferredAction, 0, len(rows))
	for _, row := range rows {
		a, err := actions.NewDeferredAction(row.Type, row.Amount, row.K, row.V)
		if err != nil {
			slog.Warn("Dropping invalid deferred action",
				slog.String("type", "db"),
				slog.Int64("id", row.ID),
				slog.Any("error", err))
			continue
		}
		out = append(out, a)
	}
	return out
}
