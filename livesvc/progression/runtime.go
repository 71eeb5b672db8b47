package progression

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/orbis/livesvc/livesvc/actions"
	"github.com/orbis/livesvc/livesvc/async"
	"github.com/orbis/livesvc/livesvc/boosters"
	"github.com/orbis/livesvc/livesvc/clock"
	"github.com/orbis/livesvc/livesvc/database"
	"github.com/orbis/livesvc/livesvc/entitlements"
	"github.com/orbis/livesvc/livesvc/quests"
)

const (
	defaultBatchSize = 200
	minBatchSize     = 10
	flushParallelism = 4
)

var (
	ErrNotLoaded   = errors.New("progression not loaded yet")
	ErrInvalidTier = errors.New("tier must be >= 1")
	ErrTierLocked  = errors.New("tier not reached")
	ErrNoRewards   = errors.New("tier has no rewards")
	ErrNotPremium  = errors.New("premium pass required")
)

type Track string

const (
	TrackFree    Track = "FREE"
	TrackPremium Track = "PREMIUM"
	TrackBoth    Track = "BOTH"
)

func ParseTrack(raw string) (Track, bool) {
	switch t := Track(strings.ToUpper(strings.TrimSpace(raw))); t {
	case TrackFree, TrackPremium, TrackBoth:
		return t, true
	default:
		return "", false
	}
}

// ClaimResult reports which tracks a claim actually granted. Claiming an
// already claimed tier grants nothing and is not an error.
type ClaimResult struct {
	Free    bool
	Premium bool
}

func (c ClaimResult) Claimed() bool { return c.Free || c.Premium }

// Multiplier is the booster lookup the runtime needs.
type Multiplier interface {
	Multiplier(playerID uuid.UUID, scope entitlements.Scope, serverID string, kind boosters.Kind) float64
}

// RewardSink hands claimed rewards to whatever executes them. Deliver is
// called on the claiming goroutine and must not block.
type RewardSink interface {
	Deliver(playerID uuid.UUID, tier int, premium bool, rewards []Reward)
}

// LogSink only logs deliveries.
type LogSink struct{}

func (LogSink) Deliver(playerID uuid.UUID, tier int, premium bool, rewards []Reward) {
	slog.Info("Tier rewards claimed",
		slog.String("type", "sys"),
		slog.String("player", playerID.String()),
		slog.Int("tier", tier),
		slog.Bool("premium", premium),
		slog.Int("rewards", len(rewards)))
}

type Config struct {
	// ServerID is the progress partition, which may differ from the server's
	// own id when several servers share one pass.
	ServerID           string
	Season             int
	MaxPlayersPerBatch int
}

type Deps struct {
	Store    Store
	State    database.StateReporter
	Exec     *async.Executor
	Bus      *actions.Bus
	Catalog  *quests.Catalog
	Rewards  *RewardsTable
	Periods  *Periods
	Clock    clock.Clock
	Boosters Multiplier
	Premium  *PremiumResolver
	Sink     RewardSink
}

// Runtime applies bus events to live ledgers and mirrors them to the store.
type Runtime struct {
	cfg      Config
	store    Store
	state    database.StateReporter
	exec     *async.Executor
	bus      *actions.Bus
	catalog  *quests.Catalog
	periods  *Periods
	clock    clock.Clock
	boosters Multiplier
	premium  *PremiumResolver
	sink     RewardSink

	rewards atomic.Pointer[RewardsTable]
	ledgers *xsync.MapOf[uuid.UUID, *Ledger]

	subMu sync.Mutex
	sub   *actions.Subscription
}

func NewRuntime(cfg Config, deps Deps) *Runtime {
	if cfg.MaxPlayersPerBatch <= 0 {
		cfg.MaxPlayersPerBatch = defaultBatchSize
	}
	cfg.MaxPlayersPerBatch = max(minBatchSize, cfg.MaxPlayersPerBatch)
	cfg.Season = max(1, cfg.Season)

	r := &Runtime{
		cfg:      cfg,
		store:    deps.Store,
		state:    deps.State,
		exec:     deps.Exec,
		bus:      deps.Bus,
		catalog:  deps.Catalog,
		periods:  deps.Periods,
		clock:    deps.Clock,
		boosters: deps.Boosters,
		premium:  deps.Premium,
		sink:     deps.Sink,
		ledgers:  xsync.NewMapOf[uuid.UUID, *Ledger](),
	}
	if r.clock == nil {
		r.clock = clock.System()
	}
	if r.sink == nil {
		r.sink = LogSink{}
	}
	rewards := deps.Rewards
	if rewards == nil {
		rewards = NewRewardsTable(nil)
	}
	r.rewards.Store(rewards)
	return r
}

func (r *Runtime) ServerID() string { return r.cfg.ServerID }
func (r *Runtime) Season() int      { return r.cfg.Season }

func (r *Runtime) Rewards() *RewardsTable { return r.rewards.Load() }

// ReplaceRewards swaps the tier curve. Loaded ledgers keep their tier until
// their next join.
func (r *Runtime) ReplaceRewards(t *RewardsTable) {
	if t != nil {
		r.rewards.Store(t)
	}
}

func (r *Runtime) Ledger(playerID uuid.UUID) (*Ledger, bool) {
	return r.ledgers.Load(playerID)
}

func (r *Runtime) Players() int { return r.ledgers.Size() }

// Start subscribes to the bus. Calling it twice is a no-op.
func (r *Runtime) Start() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	if r.sub == nil {
		r.sub = r.bus.Subscribe(r.onAction)
	}
}

// Pause stops event processing without touching loaded ledgers.
func (r *Runtime) Pause() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	if r.sub != nil {
		r.sub.Close()
		r.sub = nil
	}
}

// Stop pauses and writes every pending delta.
func (r *Runtime) Stop(ctx context.Context) error {
	r.Pause()
	return r.FlushAllAndWait(ctx)
}

func (r *Runtime) week() int {
	if r.periods == nil {
		return 1
	}
	return r.periods.Week()
}

func (r *Runtime) multiplier(playerID uuid.UUID, kind boosters.Kind) float64 {
	if r.boosters == nil {
		return 1
	}
	return r.boosters.Multiplier(playerID, entitlements.ScopeServer, r.cfg.ServerID, kind)
}

func boosted(amount int64, mult float64) int64 {
	return max(1, int64(math.Floor(float64(amount)*mult)))
}

func (r *Runtime) onAction(ev actions.ActionEvent) {
	l, ok := r.ledgers.Load(ev.PlayerID())
	if !ok {
		return
	}
	ev = ev.WithAmount(boosted(ev.Amount(), r.multiplier(ev.PlayerID(), boosters.KindProgress)))

	week := r.week()
	premium := l.Premium()
	for _, q := range r.catalog.Index().Candidates(ev) {
		if !q.ActiveIn(week) {
			continue
		}
		if q.PremiumOnly && !premium {
			continue
		}
		r.applyQuest(l, q, ev)
	}
}

func (r *Runtime) applyQuest(l *Ledger, q *quests.Quest, ev actions.ActionEvent) {
	cur := l.Quest(q.ID)
	if cur.StepIdx >= len(q.Steps) {
		return
	}
	step := q.Steps[cur.StepIdx]
	if !step.Matches(ev) {
		return
	}

	next := cur.Progress + ev.Amount()
	if next < step.Required {
		l.SetQuest(q.ID, cur.StepIdx, next)
		return
	}

	nextIdx := cur.StepIdx + 1
	l.SetQuest(q.ID, nextIdx, 0)
	if nextIdx >= len(q.Steps) {
		r.awardPoints(l, q)
	}
}

func (r *Runtime) awardPoints(l *Ledger, q *quests.Quest) {
	base := q.Reward(l.Premium())
	if base <= 0 {
		return
	}
	points := l.AddPoints(boosted(base, r.multiplier(l.PlayerID(), boosters.KindPoints)))
	if tier := r.rewards.Load().TierForPoints(points); tier > l.Tier() {
		l.SetTier(tier)
	}
}

// Join loads the player's ledger. While the store is offline, or when the load
// fails, the player starts from an empty ledger so play is never blocked.
func (r *Runtime) Join(playerID uuid.UUID) *async.Future[*Ledger] {
	if playerID == uuid.Nil {
		return async.Failed[*Ledger](actions.ErrMissingPlayer)
	}
	if l, ok := r.ledgers.Load(playerID); ok {
		l.departed.Store(false)
		return async.Resolved(l)
	}
	if !database.Online(r.state) {
		return async.Resolved(r.install(r.emptyLedger(playerID)))
	}

	return async.Submit(r.exec, func(ctx context.Context) (*Ledger, error) {
		l, err := r.load(ctx, playerID)
		if err != nil {
			slog.Error("Failed to load progression",
				slog.String("type", "db"),
				slog.String("player", playerID.String()),
				slog.Any("error", err))
			l = r.emptyLedger(playerID)
		}
		return r.install(l), nil
	})
}

func (r *Runtime) install(l *Ledger) *Ledger {
	actual, _ := r.ledgers.LoadOrStore(l.PlayerID(), l)
	actual.departed.Store(false)
	r.refreshPremium(actual)
	return actual
}

func (r *Runtime) emptyLedger(playerID uuid.UUID) *Ledger {
	l := NewLedger(playerID)
	for _, q := range r.catalog.All() {
		l.EnsureQuest(q.ID)
	}
	return l
}

func (r *Runtime) load(ctx context.Context, playerID uuid.UUID) (*Ledger, error) {
	snap, err := r.store.Load(ctx, r.cfg.ServerID, r.cfg.Season, playerID)
	if err != nil {
		return nil, err
	}

	l := NewLedger(playerID)
	l.SeedProgress(snap.Points, snap.Tier)
	for id, st := range snap.Quests {
		l.SeedQuest(id, st)
	}
	for _, c := range snap.Claims {
		l.SeedClaim(c)
	}
	for _, q := range r.catalog.All() {
		l.EnsureQuest(q.ID)
	}

	changed := false
	if r.periods != nil {
		now := r.periods.Current(r.clock.Now())
		if snap.Period.Daily != now.Daily {
			for _, id := range r.catalog.IDsWithCadence(quests.CadenceDaily) {
				l.ResetQuest(id)
			}
			changed = true
		}
		if snap.Period.Weekly != now.Weekly {
			for _, id := range r.catalog.IDsWithCadence(quests.CadenceWeekly) {
				l.ResetQuest(id)
			}
			changed = true
		}
		if changed {
			if err := r.store.UpsertPeriod(ctx, r.cfg.ServerID, r.cfg.Season, playerID, now); err != nil {
				slog.Warn("Failed to store reset period",
					slog.String("type", "db"),
					slog.String("player", playerID.String()),
					slog.Any("error", err))
			}
		}
	}

	if expected := r.rewards.Load().TierForPoints(l.Points()); expected != l.Tier() {
		l.SetTier(expected)
		changed = true
	}
	if changed {
		r.flushOne(ctx, l)
	}
	return l, nil
}

// Quit writes the player's pending delta and drops the ledger once it is
// written. If the write fails the ledger stays until a later flush succeeds.
func (r *Runtime) Quit(playerID uuid.UUID) *async.Future[struct{}] {
	l, ok := r.ledgers.Load(playerID)
	if !ok {
		return async.Resolved(struct{}{})
	}
	l.departed.Store(true)
	return async.Run(r.exec, func(ctx context.Context) error {
		r.flushOne(ctx, l)
		return nil
	})
}

// FlushAll writes every dirty ledger in batches and resolves with the number
// of ledgers written. Nothing is snapshotted while the store is offline.
func (r *Runtime) FlushAll() *async.Future[int] {
	if !database.Online(r.state) {
		return async.Resolved(0)
	}
	ledgers := make([]*Ledger, 0, r.ledgers.Size())
	r.ledgers.Range(func(_ uuid.UUID, l *Ledger) bool {
		ledgers = append(ledgers, l)
		return true
	})
	if len(ledgers) == 0 {
		return async.Resolved(0)
	}
	return async.Submit(r.exec, func(ctx context.Context) (int, error) {
		return r.flushLedgers(ctx, ledgers), nil
	})
}

func (r *Runtime) FlushAllAndWait(ctx context.Context) error {
	_, err := r.FlushAll().Await(ctx)
	return err
}

func (r *Runtime) flushLedgers(ctx context.Context, ledgers []*Ledger) int {
	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(flushParallelism)
	for batch := range slices.Chunk(ledgers, r.cfg.MaxPlayersPerBatch) {
		g.Go(func() error {
			for _, l := range batch {
				if r.flushOne(gctx, l) {
					written.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(written.Load())
	if n > 0 {
		slog.Debug("Flushed ledgers",
			slog.String("type", "flush"),
			slog.Int("players", n),
			slog.Int("loaded", len(ledgers)))
	}
	return n
}

// flushOne writes one ledger's delta. A delta that could not be written is
// merged back so the next flush retries it. Concurrent flushes of the same
// ledger wait for each other; an older snapshot never commits after a newer
// one.
func (r *Runtime) flushOne(ctx context.Context, l *Ledger) bool {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	d := l.SnapshotDeltaAndClear()
	if d.Empty() {
		r.dropIfDeparted(l)
		return false
	}
	if !database.Online(r.state) {
		l.Remerge(d)
		return false
	}
	if err := r.store.FlushDelta(ctx, r.cfg.ServerID, r.cfg.Season, l.PlayerID(), d); err != nil {
		l.Remerge(d)
		slog.Warn("Ledger flush failed, delta kept for retry",
			slog.String("type", "flush"),
			slog.String("player", l.PlayerID().String()),
			slog.Any("error", err))
		return false
	}
	r.dropIfDeparted(l)
	return true
}

func (r *Runtime) dropIfDeparted(l *Ledger) {
	if !l.departed.Load() {
		return
	}
	r.ledgers.Compute(l.PlayerID(), func(cur *Ledger, loaded bool) (*Ledger, bool) {
		return cur, loaded && cur == l && l.departed.Load()
	})
}

// RefreshPremiumAll re-resolves the premium flag of every loaded ledger.
func (r *Runtime) RefreshPremiumAll() {
	r.ledgers.Range(func(_ uuid.UUID, l *Ledger) bool {
		r.refreshPremium(l)
		return true
	})
}

// refreshPremium updates the flag when the lookup resolves. The event in
// flight is not affected; later ones see the new value. Offline answers are
// ignored so an outage never strips premium.
func (r *Runtime) refreshPremium(l *Ledger) {
	if r.premium == nil || !database.Online(r.state) {
		return
	}
	r.premium.IsPremium(l.PlayerID()).OnComplete(func(ok bool, err error) {
		if err != nil || !database.Online(r.state) {
			return
		}
		l.SetPremium(ok)
	})
}

// Claim grants the tier's rewards on the requested track.
func (r *Runtime) Claim(playerID uuid.UUID, tier int, track Track) (ClaimResult, error) {
	if tier <= 0 {
		return ClaimResult{}, ErrInvalidTier
	}
	l, ok := r.ledgers.Load(playerID)
	if !ok {
		return ClaimResult{}, ErrNotLoaded
	}
	if l.Tier() < tier {
		return ClaimResult{}, ErrTierLocked
	}
	t, ok := r.rewards.Load().Tier(tier)
	if !ok {
		return ClaimResult{}, ErrNoRewards
	}

	var res ClaimResult
	switch track {
	case TrackFree:
		res.Free = r.claimTrack(l, t, false)
	case TrackPremium:
		if !l.Premium() {
			return ClaimResult{}, ErrNotPremium
		}
		res.Premium = r.claimTrack(l, t, true)
	default:
		res.Free = r.claimTrack(l, t, false)
		res.Premium = r.claimTrack(l, t, true)
	}
	return res, nil
}

// ClaimAll claims both tracks of every reached tier and returns how many
// tiers granted something.
func (r *Runtime) ClaimAll(playerID uuid.UUID) (int, error) {
	l, ok := r.ledgers.Load(playerID)
	if !ok {
		return 0, ErrNotLoaded
	}
	table := r.rewards.Load()
	claimed := 0
	for tier := 1; tier <= l.Tier(); tier++ {
		t, ok := table.Tier(tier)
		if !ok {
			continue
		}
		free := r.claimTrack(l, t, false)
		premium := r.claimTrack(l, t, true)
		if free || premium {
			claimed++
		}
	}
	return claimed, nil
}

func (r *Runtime) claimTrack(l *Ledger, t TierRewards, premium bool) bool {
	if premium && !l.Premium() {
		return false
	}
	if len(t.Track(premium)) == 0 {
		return false
	}
	if !l.MarkClaim(premium, t.Tier) {
		return false
	}
	r.sink.Deliver(l.PlayerID(), t.Tier, premium, t.Track(premium))
	return true
}
