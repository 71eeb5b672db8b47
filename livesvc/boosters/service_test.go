package boosters_test

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

	"github.com/orbis/livesvc/livesvc/async"
	"github.com/orbis/livesvc/livesvc/boosters"
	"github.com/orbis/livesvc/livesvc/boosters/mock"
	"github.com/orbis/livesvc/livesvc/clock"
	"github.com/orbis/livesvc/livesvc/database"
	"github.com/orbis/livesvc/livesvc/entitlements"
)

type memGrants struct {
	mu     sync.Mutex
	grants []boosters.Grant
}

func (m *memGrants) Insert(_ context.Context, g boosters.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.ID = int64(len(m.grants) + 1)
	m.grants = append(m.grants, g)
	return nil
}

func (m *memGrants) ListActive(_ context.Context, now time.Time) ([]boosters.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []boosters.Grant
	for _, g := range m.grants {
		if g.ExpiresAt.After(now) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memGrants) DeleteExpired(context.Context, time.Time, int) (int64, error) {
	return 0, nil
}

func newService(t *testing.T, repo boosters.Repository, clk clock.Clock) *boosters.Service {
	t.Helper()
	exec := async.NewExecutor(2)
	t.Cleanup(func() { _ = exec.Shutdown(context.Background()) })
	return boosters.NewService(repo, database.Always(database.StateOnline), exec, clk, 100)
}

func await(t *testing.T, f *async.Future[struct{}]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := f.Await(ctx)
	require.NoError(t, err)
}

func TestMultiplierDefaultsToOne(t *testing.T) {
	svc := newService(t, &memGrants{}, clock.System())
	assert.Equal(t, 1.0, svc.Multiplier(uuid.New(), entitlements.ScopeServer, "s1", boosters.KindPoints))
}

func TestMultiplierTakesMaxAcrossScopes(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	svc := newService(t, &memGrants{}, clk)
	player := uuid.New()

	await(t, svc.GrantToAll(entitlements.ScopeServer, "s1", boosters.KindPoints, 1.5, time.Hour))
	await(t, svc.GrantToPlayer(player, entitlements.ScopeNetwork, "", boosters.KindPoints, 2.0, time.Hour))

	assert.Equal(t, 2.0, svc.Multiplier(player, entitlements.ScopeServer, "s1", boosters.KindPoints))
	assert.Equal(t, 1.5, svc.Multiplier(uuid.New(), entitlements.ScopeServer, "s1", boosters.KindPoints))
	assert.Equal(t, 1.0, svc.Multiplier(uuid.New(), entitlements.ScopeServer, "s2", boosters.KindPoints))
	assert.Equal(t, 1.0, svc.Multiplier(player, entitlements.ScopeServer, "s1", boosters.KindProgress))
	// a network context never sees server grants
	assert.Equal(t, 2.0, svc.Multiplier(player, entitlements.ScopeNetwork, "", boosters.KindPoints))
	assert.Equal(t, 1.0, svc.Multiplier(uuid.New(), entitlements.ScopeNetwork, "", boosters.KindPoints))
}

func TestMultiplierIgnoresExpiredGrants(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	svc := newService(t, &memGrants{}, clk)
	player := uuid.New()

	await(t, svc.GrantToPlayer(player, entitlements.ScopeServer, "s1", boosters.KindProgress, 3, time.Minute))
	await(t, svc.GrantToAll(entitlements.ScopeNetwork, "", boosters.KindProgress, 1.25, time.Hour))
	assert.Equal(t, 3.0, svc.Multiplier(player, entitlements.ScopeServer, "s1", boosters.KindProgress))

	clk.Advance(2 * time.Minute)
	assert.Equal(t, 1.25, svc.Multiplier(player, entitlements.ScopeServer, "s1", boosters.KindProgress))
}

func TestGrantSanitizesMultiplier(t *testing.T) {
	svc := newService(t, &memGrants{}, clock.System())

	await(t, svc.GrantToAll(entitlements.ScopeNetwork, "", boosters.KindPetsXP, 5000, time.Hour))
	assert.Equal(t, 100.0, svc.Multiplier(uuid.New(), entitlements.ScopeNetwork, "", boosters.KindPetsXP))

	assert.Equal(t, 0.01, boosters.Sanitize(-3))
	assert.Equal(t, 1.0, boosters.Sanitize(float64Inf()))
}

func float64Inf() float64 {
	var zero float64
	return 1 / zero
}

func TestGrantRequiresServerForServerScope(t *testing.T) {
	svc := newService(t, &memGrants{}, clock.System())
	_, err := svc.GrantToAll(entitlements.ScopeServer, "", boosters.KindPoints, 2, time.Hour).Await(context.Background())
	assert.ErrorIs(t, err, entitlements.ErrMissingServer)

	_, err = svc.GrantToPlayer(uuid.Nil, entitlements.ScopeNetwork, "", boosters.KindPoints, 2, time.Hour).Await(context.Background())
	assert.ErrorIs(t, err, entitlements.ErrMissingPlayer)
}

func TestRefreshKeepsSnapshotOnError(t *testing.T) {
	repo := mock.NewMockRepository(gomock.NewController(t))
	clk := clock.NewManual(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	svc := newService(t, repo, clk)
	player := uuid.New()

	repo.EXPECT().ListActive(gomock.Any(), gomock.Any()).Return([]boosters.Grant{{
		Scope: entitlements.ScopeNetwork, PlayerID: player, Kind: boosters.KindPoints,
		Multiplier: 1.75, ExpiresAt: clk.Now().Add(time.Hour),
	}}, nil)
	repo.EXPECT().ListActive(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

	require.NoError(t, svc.Refresh(context.Background()))
	assert.Error(t, svc.Refresh(context.Background()))
	assert.Equal(t, 1.75, svc.Multiplier(player, entitlements.ScopeServer, "s1", boosters.KindPoints))
}

func TestPurgeExpiredLoopsWhileFull(t *testing.T) {
	repo := mock.NewMockRepository(gomock.NewController(t))
	svc := newService(t, repo, clock.System())

	gomock.InOrder(
		repo.EXPECT().DeleteExpired(gomock.Any(), gomock.Any(), 100).Return(int64(100), nil),
		repo.EXPECT().DeleteExpired(gomock.Any(), gomock.Any(), 100).Return(int64(100), nil),
		repo.EXPECT().DeleteExpired(gomock.Any(), gomock.Any(), 100).Return(int64(7), nil),
	)

	n, err := svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(207), n)
}

func TestParseKind(t *testing.T) {
	k, ok := boosters.ParseKind("battlepass_points")
	assert.True(t, ok)
	assert.Equal(t, boosters.KindPoints, k)

	_, ok = boosters.ParseKind("DOUBLE_LOOT")
	assert.False(t, ok)
}
