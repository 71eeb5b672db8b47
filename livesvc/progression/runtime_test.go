package progression_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/orbis/livesvc/livesvc/actions"
	"github.com/orbis/livesvc/livesvc/async"
	"github.com/orbis/livesvc/livesvc/boosters"
	"github.com/orbis/livesvc/livesvc/clock"
	"github.com/orbis/livesvc/livesvc/database"
	"github.com/orbis/livesvc/livesvc/entitlements"
	"github.com/orbis/livesvc/livesvc/progression"
	"github.com/orbis/livesvc/livesvc/progression/mock"
	"github.com/orbis/livesvc/livesvc/quests"
)

type flushed struct {
	player uuid.UUID
	delta  progression.Delta
}

type memStore struct {
	mu      sync.Mutex
	snaps   map[uuid.UUID]progression.Snapshot
	flushes []flushed
	periods map[uuid.UUID]progression.Period
	fail    bool
}

func newMemStore() *memStore {
	return &memStore{
		snaps:   make(map[uuid.UUID]progression.Snapshot),
		periods: make(map[uuid.UUID]progression.Period),
	}
}

func (m *memStore) Load(_ context.Context, _ string, _ int, playerID uuid.UUID) (progression.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snaps[playerID], nil
}

func (m *memStore) FlushDelta(_ context.Context, _ string, _ int, playerID uuid.UUID, d progression.Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("connection refused")
	}
	m.flushes = append(m.flushes, flushed{player: playerID, delta: d})
	return nil
}

func (m *memStore) UpsertPeriod(_ context.Context, _ string, _ int, playerID uuid.UUID, p progression.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods[playerID] = p
	return nil
}

func (m *memStore) setFail(v bool) {
	m.mu.Lock()
	m.fail = v
	m.mu.Unlock()
}

func (m *memStore) written() []flushed {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]flushed(nil), m.flushes...)
}

type fixedBoost map[boosters.Kind]float64

func (f fixedBoost) Multiplier(_ uuid.UUID, _ entitlements.Scope, _ string, kind boosters.Kind) float64 {
	if m, ok := f[kind]; ok {
		return m
	}
	return 1
}

type recordingSink struct {
	mu     sync.Mutex
	claims []progression.Claim
}

func (s *recordingSink) Deliver(_ uuid.UUID, tier int, premium bool, _ []progression.Reward) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims = append(s.claims, progression.Claim{Tier: tier, Premium: premium})
}

type premiumSet map[uuid.UUID]bool

func (p premiumSet) Has(playerID uuid.UUID, _ entitlements.Scope, _, _ string) *async.Future[bool] {
	return async.Resolved(p[playerID])
}

var stoneQuest = &quests.Quest{
	ID:      "stone_breaker",
	Name:    "Stone Breaker",
	Points:  50,
	Cadence: quests.CadenceSeason,
	Steps:   []quests.Step{{Type: "BLOCK_BREAK", Key: "MATERIAL", Value: "STONE", Required: 10}},
}

type fixture struct {
	store   progression.Store
	mem     *memStore
	state   *database.Switch
	bus     *actions.Bus
	exec    *async.Executor
	sink    *recordingSink
	runtime *progression.Runtime
}

type option func(*progression.Config, *progression.Deps)

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	f := &fixture{
		mem:   newMemStore(),
		state: database.NewSwitch(database.StateOnline),
		bus:   actions.NewBus(),
		exec:  async.NewExecutor(4),
		sink:  &recordingSink{},
	}
	t.Cleanup(func() { _ = f.exec.Shutdown(context.Background()) })

	cfg := progression.Config{ServerID: "s1", Season: 1, MaxPlayersPerBatch: 10}
	deps := progression.Deps{
		Store:   f.mem,
		State:   f.state,
		Exec:    f.exec,
		Bus:     f.bus,
		Catalog: quests.NewCatalog([]*quests.Quest{stoneQuest}),
		Rewards: progression.NewRewardsTable([]progression.TierRewards{
			{Tier: 1, PointsRequired: 40, Free: []progression.Reward{{ID: "coins"}}, Premium: []progression.Reward{{ID: "gems"}}},
			{Tier: 2, PointsRequired: 100, Free: []progression.Reward{{ID: "crate"}}},
		}),
		Clock: clock.NewManual(time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)),
		Sink:  f.sink,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	f.store = deps.Store
	f.runtime = progression.NewRuntime(cfg, deps)
	f.runtime.Start()
	return f
}

func awaitFuture[T any](t *testing.T, fut *async.Future[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := fut.Await(ctx)
	require.NoError(t, err)
	return v
}

func (f *fixture) breakStone(player uuid.UUID, times int) {
	for range times {
		f.bus.Publish(actions.MustActionEvent("BLOCK_BREAK", player, 1, "MATERIAL", "STONE"))
	}
}

func TestTenEventsCompleteQuestOnce(t *testing.T) {
	f := newFixture(t)
	player := uuid.New()
	l := awaitFuture(t, f.runtime.Join(player))

	f.breakStone(player, 10)

	assert.Equal(t, progression.QuestState{StepIdx: 1}, l.Quest("stone_breaker"))
	assert.Equal(t, int64(50), l.Points())
	assert.Equal(t, 1, l.Tier())

	// completed quests ignore further events
	f.breakStone(player, 10)
	assert.Equal(t, int64(50), l.Points())

	require.NoError(t, f.runtime.FlushAllAndWait(context.Background()))
	written := f.mem.written()
	require.Len(t, written, 1)
	assert.Equal(t, int64(50), written[0].delta.Points)
	assert.Equal(t, 1, written[0].delta.Tier)
	assert.Equal(t, progression.QuestState{StepIdx: 1}, written[0].delta.Quests["stone_breaker"])

	require.NoError(t, f.runtime.FlushAllAndWait(context.Background()))
	assert.Len(t, f.mem.written(), 1)
}

func TestEventsForUnloadedPlayersAreIgnored(t *testing.T) {
	f := newFixture(t)
	f.breakStone(uuid.New(), 10)

	require.NoError(t, f.runtime.FlushAllAndWait(context.Background()))
	assert.Empty(t, f.mem.written())
}

func TestBoostersScaleProgressAndPoints(t *testing.T) {
	f := newFixture(t, func(_ *progression.Config, d *progression.Deps) {
		d.Boosters = fixedBoost{boosters.KindProgress: 2, boosters.KindPoints: 1.5}
	})
	player := uuid.New()
	l := awaitFuture(t, f.runtime.Join(player))

	f.breakStone(player, 4)
	assert.Equal(t, progression.QuestState{Progress: 8}, l.Quest("stone_breaker"))

	f.breakStone(player, 1)
	assert.Equal(t, int64(75), l.Points())
}

func TestFailedFlushIsRetried(t *testing.T) {
	f := newFixture(t)
	player := uuid.New()
	awaitFuture(t, f.runtime.Join(player))
	f.breakStone(player, 10)

	f.mem.setFail(true)
	n := awaitFuture(t, f.runtime.FlushAll())
	assert.Zero(t, n)

	f.mem.setFail(false)
	n = awaitFuture(t, f.runtime.FlushAll())
	assert.Equal(t, 1, n)
	written := f.mem.written()
	require.Len(t, written, 1)
	assert.Equal(t, int64(50), written[0].delta.Points)
}

func TestFlushWhileOfflineWritesNothingAndLosesNothing(t *testing.T) {
	f := newFixture(t)
	player := uuid.New()
	awaitFuture(t, f.runtime.Join(player))
	f.breakStone(player, 10)

	f.state.Set(database.StateOffline)
	assert.Zero(t, awaitFuture(t, f.runtime.FlushAll()))

	f.state.Set(database.StateOnline)
	assert.Equal(t, 1, awaitFuture(t, f.runtime.FlushAll()))
}

func TestFlushCoversEveryBatch(t *testing.T) {
	f := newFixture(t)
	for range 25 {
		player := uuid.New()
		awaitFuture(t, f.runtime.Join(player))
		f.breakStone(player, 3)
	}

	assert.Equal(t, 25, awaitFuture(t, f.runtime.FlushAll()))
	assert.Len(t, f.mem.written(), 25)
}

func TestJoinOfflineStartsEmpty(t *testing.T) {
	f := newFixture(t)
	f.state.Set(database.StateOffline)
	player := uuid.New()

	l := awaitFuture(t, f.runtime.Join(player))
	assert.Zero(t, l.Points())
	assert.Equal(t, progression.QuestState{}, l.Quest("stone_breaker"))

	same := awaitFuture(t, f.runtime.Join(player))
	assert.Same(t, l, same)
}

func TestJoinFallsBackToEmptyLedgerOnLoadError(t *testing.T) {
	store := mock.NewMockStore(gomock.NewController(t))
	f := newFixture(t, func(_ *progression.Config, d *progression.Deps) { d.Store = store })
	player := uuid.New()

	store.EXPECT().Load(gomock.Any(), "s1", 1, player).Return(progression.Snapshot{}, errors.New("timeout"))

	l := awaitFuture(t, f.runtime.Join(player))
	assert.Zero(t, l.Points())
	_, ok := f.runtime.Ledger(player)
	assert.True(t, ok)
}

func TestJoinResetsRolledOverQuestsAndResyncsTier(t *testing.T) {
	daily := &quests.Quest{
		ID: "daily_fish", Name: "Daily Fish", Points: 10, Cadence: quests.CadenceDaily,
		Steps: []quests.Step{{Type: "FISH", Required: 5}},
	}
	clk := clock.NewManual(time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC))
	periods, err := progression.NewPeriods("UTC", "0 0 * * *", "BATTLEPASS_WEEK", "", 2)
	require.NoError(t, err)

	f := newFixture(t, func(_ *progression.Config, d *progression.Deps) {
		d.Catalog = quests.NewCatalog([]*quests.Quest{stoneQuest, daily})
		d.Clock = clk
		d.Periods = periods
	})
	player := uuid.New()
	yesterday := periods.Current(clk.Now().Add(-24 * time.Hour))
	f.mem.snaps[player] = progression.Snapshot{
		Points: 120,
		Tier:   0,
		Quests: map[string]progression.QuestState{
			"daily_fish":    {Progress: 3},
			"stone_breaker": {Progress: 7},
		},
		Period: yesterday,
	}

	l := awaitFuture(t, f.runtime.Join(player))
	assert.Equal(t, progression.QuestState{}, l.Quest("daily_fish"))
	assert.Equal(t, progression.QuestState{Progress: 7}, l.Quest("stone_breaker"))
	assert.Equal(t, 2, l.Tier())

	assert.Equal(t, periods.Current(clk.Now()), f.mem.periods[player])
	written := f.mem.written()
	require.Len(t, written, 1)
	assert.Equal(t, 2, written[0].delta.Tier)
	assert.Contains(t, written[0].delta.Quests, "daily_fish")
	assert.NotContains(t, written[0].delta.Quests, "stone_breaker")
}

func TestQuitFlushesAndDrops(t *testing.T) {
	f := newFixture(t)
	player := uuid.New()
	awaitFuture(t, f.runtime.Join(player))
	f.breakStone(player, 10)

	awaitFuture(t, f.runtime.Quit(player))
	_, ok := f.runtime.Ledger(player)
	assert.False(t, ok)
	assert.Len(t, f.mem.written(), 1)
}

func TestQuitKeepsLedgerUntilWritten(t *testing.T) {
	f := newFixture(t)
	player := uuid.New()
	awaitFuture(t, f.runtime.Join(player))
	f.breakStone(player, 10)

	f.mem.setFail(true)
	awaitFuture(t, f.runtime.Quit(player))
	_, ok := f.runtime.Ledger(player)
	require.True(t, ok)

	f.mem.setFail(false)
	assert.Equal(t, 1, awaitFuture(t, f.runtime.FlushAll()))
	_, ok = f.runtime.Ledger(player)
	assert.False(t, ok)
}

func TestClaim(t *testing.T) {
	f := newFixture(t)
	player := uuid.New()
	awaitFuture(t, f.runtime.Join(player))
	f.breakStone(player, 10)

	res, err := f.runtime.Claim(player, 1, progression.TrackFree)
	require.NoError(t, err)
	assert.True(t, res.Free)

	res, err = f.runtime.Claim(player, 1, progression.TrackFree)
	require.NoError(t, err)
	assert.False(t, res.Claimed())

	_, err = f.runtime.Claim(player, 1, progression.TrackPremium)
	assert.ErrorIs(t, err, progression.ErrNotPremium)
	_, err = f.runtime.Claim(player, 2, progression.TrackFree)
	assert.ErrorIs(t, err, progression.ErrTierLocked)
	_, err = f.runtime.Claim(player, 0, progression.TrackFree)
	assert.ErrorIs(t, err, progression.ErrInvalidTier)
	_, err = f.runtime.Claim(uuid.New(), 1, progression.TrackFree)
	assert.ErrorIs(t, err, progression.ErrNotLoaded)

	assert.Equal(t, []progression.Claim{{Tier: 1}}, f.sink.claims)
}

func TestClaimAllWithPremium(t *testing.T) {
	player := uuid.New()
	f := newFixture(t, func(c *progression.Config, d *progression.Deps) {
		d.Premium = progression.NewPremiumResolver(premiumSet{player: true}, "NETWORK", c.ServerID, "")
	})
	l := awaitFuture(t, f.runtime.Join(player))
	require.True(t, l.Premium())
	l.AddPoints(150)
	l.SetTier(2)

	n, err := f.runtime.ClaimAll(player)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []progression.Claim{{Tier: 1}, {Tier: 1, Premium: true}, {Tier: 2}}, f.sink.claims)

	n, err = f.runtime.ClaimAll(player)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPremiumOnlyQuestsNeedPremium(t *testing.T) {
	vip := &quests.Quest{
		ID: "vip_stone", Name: "VIP Stone", Points: 5, PremiumOnly: true,
		Steps: []quests.Step{{Type: "BLOCK_BREAK", Required: 1}},
	}
	premium := uuid.New()
	f := newFixture(t, func(c *progression.Config, d *progression.Deps) {
		d.Catalog = quests.NewCatalog([]*quests.Quest{vip})
		d.Premium = progression.NewPremiumResolver(premiumSet{premium: true}, "SERVER", c.ServerID, "")
	})
	free := uuid.New()
	freeLedger := awaitFuture(t, f.runtime.Join(free))
	premiumLedger := awaitFuture(t, f.runtime.Join(premium))

	f.breakStone(free, 1)
	f.breakStone(premium, 1)

	assert.Zero(t, freeLedger.Points())
	assert.Equal(t, int64(5), premiumLedger.Points())
}

func TestPauseStopsEventProcessing(t *testing.T) {
	f := newFixture(t)
	player := uuid.New()
	l := awaitFuture(t, f.runtime.Join(player))

	f.runtime.Pause()
	f.breakStone(player, 10)
	assert.Zero(t, l.Points())

	f.runtime.Start()
	f.breakStone(player, 10)
	assert.Equal(t, int64(50), l.Points())

	require.NoError(t, f.runtime.Stop(context.Background()))
	assert.Equal(t, 0, f.bus.Len())
	assert.Len(t, f.mem.written(), 1)
}

// gatedStore holds the first FlushDelta until release is closed.
type gatedStore struct {
	*memStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) FlushDelta(ctx context.Context, serverID string, season int, playerID uuid.UUID, d progression.Delta) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.memStore.FlushDelta(ctx, serverID, season, playerID, d)
}

func TestOverlappingFlushesCommitInSnapshotOrder(t *testing.T) {
	gated := &gatedStore{memStore: newMemStore(), entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, func(_ *progression.Config, d *progression.Deps) { d.Store = gated })
	player := uuid.New()
	l := awaitFuture(t, f.runtime.Join(player))

	l.AddPoints(10)
	periodic := f.runtime.FlushAll()
	select {
	case <-gated.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first flush never reached the store")
	}

	l.AddPoints(10)
	quit := f.runtime.Quit(player)
	time.Sleep(50 * time.Millisecond)
	close(gated.release)

	awaitFuture(t, periodic)
	awaitFuture(t, quit)

	written := gated.written()
	require.Len(t, written, 2)
	assert.Equal(t, int64(10), written[0].delta.Points)
	assert.Equal(t, int64(20), written[1].delta.Points)
	_, ok := f.runtime.Ledger(player)
	assert.False(t, ok)
}
