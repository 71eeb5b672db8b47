package repositories

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/orbis/livesvc/livesvc/archive"
	"github.com/orbis/livesvc/livesvc/database/models"
	"github.com/orbis/livesvc/livesvc/progression"
)

const (
	stepChunkSize  = 100
	claimChunkSize = 200
)

// ProgressionRepository stores ledgers in the bp_* tables.
type ProgressionRepository struct {
	baseRepository
}

var (
	_ progression.Store = (*ProgressionRepository)(nil)
	_ archive.Source    = (*ProgressionRepository)(nil)
)

func NewProgressionRepository(db *bun.DB) *ProgressionRepository {
	return &ProgressionRepository{baseRepository: newBaseRepository(db)}
}

func (r *ProgressionRepository) Load(ctx context.Context, serverID string, season int, playerID uuid.UUID) (progression.Snapshot, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	pid := playerID.String()
	snap := progression.Snapshot{Quests: make(map[string]progression.QuestState)}

	var progress models.Progress
	err := r.db.NewSelect().Model(&progress).
		Where("server_id = ?", serverID).
		Where("season = ?", season).
		Where("player_id = ?", pid).
		Limit(1).
		Scan(ctx)
	switch {
	case err == nil:
		snap.Points, snap.Tier = progress.Points, progress.Tier
	case !errors.Is(err, sql.ErrNoRows):
		return snap, wrapErr("load", "progress", err)
	}

	var steps []models.StepProgress
	if err := r.partition(&steps, serverID, season).Where("player_id = ?", pid).Scan(ctx); err != nil {
		return snap, wrapErr("load", "steps", err)
	}
	for _, s := range steps {
		snap.Quests[s.QuestID] = progression.QuestState{StepIdx: s.StepIdx, Progress: s.Progress}
	}

	var claims []models.TierClaim
	if err := r.partition(&claims, serverID, season).Where("player_id = ?", pid).Scan(ctx); err != nil {
		return snap, wrapErr("load", "claims", err)
	}
	for _, c := range claims {
		snap.Claims = append(snap.Claims, claimFromRow(c))
	}

	var period models.Period
	err = r.db.NewSelect().Model(&period).
		Where("server_id = ?", serverID).
		Where("season = ?", season).
		Where("player_id = ?", pid).
		Limit(1).
		Scan(ctx)
	switch {
	case err == nil:
		snap.Period = progression.Period{Daily: period.DailyDay, Weekly: period.WeeklyWeek}
	case !errors.Is(err, sql.ErrNoRows):
		return snap, wrapErr("load", "period", err)
	}
	return snap, nil
}

func (r *ProgressionRepository) partition(model any, serverID string, season int) *bun.SelectQuery {
	return r.db.NewSelect().Model(model).
		Where("server_id = ?", serverID).
		Where("season = ?", season)
}

// FlushDelta writes the delta in one transaction. Step rows are upserted in
// chunks of 100 and claims inserted in chunks of 200, ignoring duplicates.
func (r *ProgressionRepository) FlushDelta(ctx context.Context, serverID string, season int, playerID uuid.UUID, d progression.Delta) error {
	if d.Empty() {
		return nil
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	pid := playerID.String()
	now := time.Now()

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if d.WriteProgress {
			row := models.Progress{
				ServerID: serverID, Season: season, PlayerID: pid,
				Points: d.Points, Tier: d.Tier, UpdatedAt: now,
			}
			_, err := tx.NewInsert().Model(&row).
				On("CONFLICT (server_id, season, player_id) DO UPDATE").
				Set("points = EXCLUDED.points").
				Set("tier = EXCLUDED.tier").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx)
			if err != nil {
				return wrapErr("upsert", "progress", err)
			}
		}

		steps := stepRows(serverID, season, pid, d.Quests, now)
		for _, chunk := range chunks(steps, stepChunkSize) {
			_, err := tx.NewInsert().Model(&chunk).
				On("CONFLICT (server_id, season, player_id, quest_id) DO UPDATE").
				Set("step_idx = EXCLUDED.step_idx").
				Set("progress = EXCLUDED.progress").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx)
			if err != nil {
				return wrapErr("upsert", "steps", err)
			}
		}

		claims := make([]models.TierClaim, 0, len(d.Claims))
		for _, c := range d.Claims {
			claims = append(claims, claimRow(serverID, season, pid, c, now))
		}
		for _, chunk := range chunks(claims, claimChunkSize) {
			_, err := tx.NewInsert().Model(&chunk).On("CONFLICT DO NOTHING").Exec(ctx)
			if err != nil {
				return wrapErr("insert", "claims", err)
			}
		}
		return nil
	})
}

func (r *ProgressionRepository) UpsertPeriod(ctx context.Context, serverID string, season int, playerID uuid.UUID, p progression.Period) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := models.Period{
		ServerID: serverID, Season: season, PlayerID: playerID.String(),
		DailyDay: p.Daily, WeeklyWeek: p.Weekly, UpdatedAt: time.Now(),
	}
	_, err := r.db.NewInsert().Model(&row).
		On("CONFLICT (server_id, season, player_id) DO UPDATE").
		Set("daily_day = EXCLUDED.daily_day").
		Set("weekly_week = EXCLUDED.weekly_week").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return wrapErr("upsert", "period", err)
	}
	return nil
}

// ExportSeason reads every row of the partition, grouped by player and
// ordered by player id. The whole read shares one export deadline.
func (r *ProgressionRepository) ExportSeason(ctx context.Context, serverID string, season int) ([]archive.PlayerRecord, error) {
	ctx, cancel := r.withCustomTimeout(ctx, exportTimeout)
	defer cancel()

	var (
		progress []models.Progress
		steps    []models.StepProgress
		claims   []models.TierClaim
		periods  []models.Period
	)
	for _, m := range []any{&progress, &steps, &claims, &periods} {
		if err := r.partition(m, serverID, season).Scan(ctx); err != nil {
			return nil, wrapErr("export", "season", err)
		}
	}

	byPlayer := make(map[string]*archive.PlayerRecord)
	record := func(pid, table string) *archive.PlayerRecord {
		rec, ok := byPlayer[pid]
		if !ok {
			rec = &archive.PlayerRecord{PlayerID: parsePlayerID(pid, table)}
			byPlayer[pid] = rec
		}
		return rec
	}
	for _, p := range progress {
		rec := record(p.PlayerID, "bp_progress")
		rec.Points, rec.Tier = p.Points, p.Tier
	}
	for _, s := range steps {
		rec := record(s.PlayerID, "bp_steps")
		if rec.Quests == nil {
			rec.Quests = make(map[string]progression.QuestState)
		}
		rec.Quests[s.QuestID] = progression.QuestState{StepIdx: s.StepIdx, Progress: s.Progress}
	}
	for _, c := range claims {
		rec := record(c.PlayerID, "bp_claims")
		rec.Claims = append(rec.Claims, claimFromRow(c))
	}
	for _, p := range periods {
		record(p.PlayerID, "bp_periods").Period = progression.Period{Daily: p.DailyDay, Weekly: p.WeeklyWeek}
	}

	ids := make([]string, 0, len(byPlayer))
	for id := range byPlayer {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]archive.PlayerRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, *byPlayer[id])
	}
	return out, nil
}

func stepRows(serverID string, season int, pid string, quests map[string]progression.QuestState, now time.Time) []models.StepProgress {
	ids := make([]string, 0, len(quests))
	for id := range quests {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	rows := make([]models.StepProgress, 0, len(ids))
	for _, id := range ids {
		st := quests[id]
		rows = append(rows, models.StepProgress{
			ServerID: serverID, Season: season, PlayerID: pid, QuestID: id,
			StepIdx: st.StepIdx, Progress: st.Progress, UpdatedAt: now,
		})
	}
	return rows
}

func claimRow(serverID string, season int, pid string, c progression.Claim, now time.Time) models.TierClaim {
	track := models.TrackFree
	if c.Premium {
		track = models.TrackPremium
	}
	return models.TierClaim{
		ServerID: serverID, Season: season, PlayerID: pid,
		Tier: c.Tier, Track: track, ClaimedAt: now,
	}
}

func claimFromRow(c models.TierClaim) progression.Claim {
	return progression.Claim{Tier: c.Tier, Premium: c.Track == models.TrackPremium}
}
