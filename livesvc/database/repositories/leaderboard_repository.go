package repositories

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/orbis/livesvc/livesvc/database/models"
	"github.com/orbis/livesvc/livesvc/leaderboard"
)

type LeaderboardRepository struct {
	baseRepository
}

var _ leaderboard.Repository = (*LeaderboardRepository)(nil)

func NewLeaderboardRepository(db *bun.DB) *LeaderboardRepository {
	return &LeaderboardRepository{baseRepository: newBaseRepository(db)}
}

func (r *LeaderboardRepository) Top(ctx context.Context, serverID string, season int, limit int) ([]leaderboard.Entry, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var rows []models.Progress
	err := r.db.NewSelect().Model(&rows).
		Column("player_id", "points", "tier").
		Where("server_id = ?", serverID).
		Where("season = ?", season).
		OrderExpr("points DESC, player_id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("query", "leaderboard", err)
	}

	out := make([]leaderboard.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, leaderboard.Entry{
			PlayerID: parsePlayerID(row.PlayerID, "bp_progress"),
			Points:   row.Points,
			Tier:     row.Tier,
		})
	}
	return out, nil
}
