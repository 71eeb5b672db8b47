package entitlements_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/orbis/livesvc/livesvc/async"
	"github.com/orbis/livesvc/livesvc/clock"
	"github.com/orbis/livesvc/livesvc/database"
	"github.com/orbis/livesvc/livesvc/entitlements"
	"github.com/orbis/livesvc/livesvc/entitlements/mock"
)

type fixture struct {
	repo  *mock.MockRepository
	clock *clock.Manual
	state *database.Switch
	svc   *entitlements.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	exec := async.NewExecutor(2)
	t.Cleanup(func() { _ = exec.Shutdown(context.Background()) })

	f := &fixture{
		repo:  mock.NewMockRepository(gomock.NewController(t)),
		clock: clock.NewManual(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		state: database.NewSwitch(database.StateOnline),
	}
	svc, err := entitlements.NewService(f.repo, f.state, exec, f.clock, 100, time.Minute)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func await[T any](t *testing.T, f *async.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Await(ctx)
}

func TestHasCachesResult(t *testing.T) {
	f := newFixture(t)
	player := uuid.New()

	f.repo.EXPECT().
		Exists(gomock.Any(), entitlements.Lookup{PlayerID: player, Scope: entitlements.ScopeServer, ServerID: "s1", Key: "vip"}, gomock.Any()).
		Return(true, nil).
		Times(1)

	for i := 0; i < 3; i++ {
		ok, err := await(t, f.svc.Has(player, entitlements.ScopeServer, "s1", "vip"))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, f.svc.Len())
}

func TestHasRequeriesAfterTTL(t *testing.T) {
	f := newFixture(t)
	player := uuid.New()

	f.repo.EXPECT().Exists(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil).Times(2)

	_, err := await(t, f.svc.Has(player, entitlements.ScopeNetwork, "ignored", "vip"))
	require.NoError(t, err)
	f.clock.Advance(30 * time.Second)
	_, err = await(t, f.svc.Has(player, entitlements.ScopeNetwork, "", "vip"))
	require.NoError(t, err)
	f.clock.Advance(31 * time.Second)
	_, err = await(t, f.svc.Has(player, entitlements.ScopeNetwork, "", "vip"))
	require.NoError(t, err)
}

func TestGrantInvalidatesAfterWrite(t *testing.T) {
	f := newFixture(t)
	player := uuid.New()
	other := uuid.New()

	gomock.InOrder(
		f.repo.EXPECT().Exists(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil).Times(2),
		f.repo.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil),
		f.repo.EXPECT().Exists(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil),
	)

	ok, err := await(t, f.svc.Has(player, entitlements.ScopeServer, "s1", "battlepass_premium"))
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = await(t, f.svc.Has(other, entitlements.ScopeServer, "s1", "battlepass_premium"))
	require.NoError(t, err)

	_, err = await(t, f.svc.Grant(player, entitlements.ScopeServer, "s1", "battlepass_premium", nil))
	require.NoError(t, err)
	assert.Equal(t, 1, f.svc.Len())

	ok, err = await(t, f.svc.Has(player, entitlements.ScopeServer, "s1", "battlepass_premium"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLookupRacingGrantIsNotCached(t *testing.T) {
	f := newFixture(t)
	player := uuid.New()

	gomock.InOrder(
		f.repo.EXPECT().Exists(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, entitlements.Lookup, time.Time) (bool, error) {
				// the grant lands while this lookup is still in flight
				_, err := await(t, f.svc.Grant(player, entitlements.ScopeServer, "s1", "vip", nil))
				assert.NoError(t, err)
				return false, nil
			}),
		f.repo.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil),
		f.repo.EXPECT().Exists(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil),
	)

	ok, err := await(t, f.svc.Has(player, entitlements.ScopeServer, "s1", "vip"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, f.svc.Len())

	ok, err = await(t, f.svc.Has(player, entitlements.ScopeServer, "s1", "vip"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRevokeBroadcasts(t *testing.T) {
	f := newFixture(t)
	player := uuid.New()
	b := mock.NewMockBroadcaster(gomock.NewController(t))
	f.svc.SetBroadcaster(b)

	f.repo.EXPECT().Delete(gomock.Any(), entitlements.Lookup{PlayerID: player, Scope: entitlements.ScopeNetwork, Key: "vip"}).Return(nil)
	b.EXPECT().PublishInvalidate(gomock.Any(), player).Return(nil)

	_, err := await(t, f.svc.Revoke(player, entitlements.ScopeNetwork, "s1", "vip"))
	require.NoError(t, err)
}

func TestOfflineNeverTouchesStore(t *testing.T) {
	f := newFixture(t)
	f.state.Set(database.StateOffline)
	player := uuid.New()

	ok, err := await(t, f.svc.Has(player, entitlements.ScopeServer, "s1", "vip"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, f.svc.Len())

	_, err = await(t, f.svc.Grant(player, entitlements.ScopeServer, "s1", "vip", nil))
	assert.NoError(t, err)
	_, err = await(t, f.svc.Revoke(player, entitlements.ScopeServer, "s1", "vip"))
	assert.NoError(t, err)
}

func TestInvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := await(t, f.svc.Has(uuid.New(), entitlements.ScopeServer, "s1", "  "))
	assert.ErrorIs(t, err, entitlements.ErrBlankKey)

	_, err = await(t, f.svc.Has(uuid.New(), entitlements.ScopeServer, "", "vip"))
	assert.ErrorIs(t, err, entitlements.ErrMissingServer)

	_, err = await(t, f.svc.Grant(uuid.Nil, entitlements.ScopeNetwork, "", "vip", nil))
	assert.ErrorIs(t, err, entitlements.ErrMissingPlayer)
}

func TestHousekeepEvictsExpired(t *testing.T) {
	f := newFixture(t)
	f.repo.EXPECT().Exists(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil).Times(2)

	_, err := await(t, f.svc.Has(uuid.New(), entitlements.ScopeServer, "s1", "a"))
	require.NoError(t, err)
	f.clock.Advance(45 * time.Second)
	_, err = await(t, f.svc.Has(uuid.New(), entitlements.ScopeServer, "s1", "b"))
	require.NoError(t, err)

	f.clock.Advance(20 * time.Second)
	assert.Equal(t, 1, f.svc.Housekeep())
	assert.Equal(t, 1, f.svc.Len())
}

func TestParseScope(t *testing.T) {
	assert.Equal(t, entitlements.ScopeNetwork, entitlements.ParseScope("global"))
	assert.Equal(t, entitlements.ScopeNetwork, entitlements.ParseScope(" NETWORK "))
	assert.Equal(t, entitlements.ScopeServer, entitlements.ParseScope("lobby"))
}
