package livesvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/orbis/livesvc/livesvc/actions"
	"github.com/orbis/livesvc/livesvc/archive"
	"github.com/orbis/livesvc/livesvc/async"
	"github.com/orbis/livesvc/livesvc/boosters"
	"github.com/orbis/livesvc/livesvc/capability"
	"github.com/orbis/livesvc/livesvc/clock"
	"github.com/orbis/livesvc/livesvc/database"
	"github.com/orbis/livesvc/livesvc/database/repositories"
	"github.com/orbis/livesvc/livesvc/entitlements"
	"github.com/orbis/livesvc/livesvc/leaderboard"
	"github.com/orbis/livesvc/livesvc/progression"
	"github.com/orbis/livesvc/livesvc/quests"
	"github.com/orbis/livesvc/livesvc/scheduler"
)

// Capability keys under which the engine publishes its services.
var (
	BusKey          = capability.NewKey[*actions.Bus]("livesvc.bus")
	DeferredKey     = capability.NewKey[*actions.DeferredQueue]("livesvc.deferred")
	ProgressionKey  = capability.NewKey[*progression.Runtime]("livesvc.progression")
	EntitlementsKey = capability.NewKey[*entitlements.Service]("livesvc.entitlements")
	BoostersKey     = capability.NewKey[*boosters.Service]("livesvc.boosters")
	LeaderboardKey  = capability.NewKey[*leaderboard.Cache]("livesvc.leaderboard")
	QuestsKey       = capability.NewKey[*quests.Catalog]("livesvc.quests")
	ArchiveKey      = capability.NewKey[*archive.Service]("livesvc.archive")
)

func New(cfg Config, version string, commit string) *Engine {
	return &Engine{
		Cfg:          cfg,
		Version:      version,
		Commit:       commit,
		Clock:        clock.System(),
		Capabilities: capability.NewRegistry(),
		Scheduler:    scheduler.New(),
	}
}

type Engine struct {
	Cfg          Config
	Version      string
	Commit       string
	Clock        clock.Clock
	DB           *database.DB
	Exec         *async.Executor
	Bus          *actions.Bus
	Capabilities *capability.Registry
	Scheduler    *scheduler.Scheduler

	Catalog      *quests.Catalog
	Runtime      *progression.Runtime
	Entitlements *entitlements.Service
	Boosters     *boosters.Service
	Deferred     *actions.DeferredQueue
	Leaderboard  *leaderboard.Cache
	Archive      *archive.Service

	redis  *redis.Client
	cancel context.CancelFunc
	done   chan struct{}
}

// Stores is the persistence the services run on.
type Stores struct {
	Entitlements entitlements.Repository
	Boosters     boosters.Repository
	Deferred     actions.DeferredRepository
	Progression  ProgressionStore
	Leaderboard  leaderboard.Repository
}

// ProgressionStore persists ledgers and reads whole seasons for export.
type ProgressionStore interface {
	progression.Store
	archive.Source
}

// Setup builds every service on top of db. It loads the quest and reward
// catalogs but does not start any background work.
func (e *Engine) Setup(ctx context.Context, db *database.DB) error {
	e.DB = db
	bunDB := db.BunDB()
	return e.SetupStores(ctx, db, Stores{
		Entitlements: repositories.NewEntitlementRepository(bunDB),
		Boosters:     repositories.NewBoosterRepository(bunDB),
		Deferred:     repositories.NewDeferredRepository(bunDB),
		Progression:  repositories.NewProgressionRepository(bunDB),
		Leaderboard:  repositories.NewLeaderboardRepository(bunDB),
	})
}

// SetupStores builds every service on stores, gated by state.
func (e *Engine) SetupStores(ctx context.Context, state database.StateReporter, stores Stores) error {
	e.Exec = async.NewExecutor(e.Cfg.Server.AsyncWorkers)
	e.Bus = actions.NewBus()

	loaded, err := quests.LoadFile(e.Cfg.BattlePass.QuestsFile)
	if err != nil {
		return fmt.Errorf("failed to load quests: %w", err)
	}
	e.Catalog = quests.NewCatalog(loaded)

	rewards, err := progression.LoadRewardsFile(e.Cfg.BattlePass.RewardsFile)
	if err != nil {
		return fmt.Errorf("failed to load rewards: %w", err)
	}

	bp := e.Cfg.BattlePass
	periods, err := progression.NewPeriods(bp.Timezone, bp.DailyReset, bp.WeeklyResetMode, bp.WeeklyReset, bp.Week)
	if err != nil {
		return err
	}

	e.Entitlements, err = entitlements.NewService(
		stores.Entitlements, state, e.Exec, e.Clock,
		e.Cfg.Entitlements.CacheSize, e.Cfg.Entitlements.CacheTTL.Std())
	if err != nil {
		return fmt.Errorf("failed to create entitlement cache: %w", err)
	}
	if e.Cfg.Redis.Enabled {
		e.redis = redis.NewClient(&redis.Options{Addr: e.Cfg.Redis.Addr, Password: e.Cfg.Redis.Password})
		e.Entitlements.SetBroadcaster(entitlements.NewRedisBroadcaster(e.redis, e.Cfg.Redis.Channel, e.Cfg.Server.ID))
	}

	e.Boosters = boosters.NewService(stores.Boosters, state, e.Exec, e.Clock, e.Cfg.Boosters.PurgeLimit)

	e.Deferred = actions.NewDeferredQueue(
		stores.Deferred, state, e.Exec, e.Clock, e.Bus, e.Cfg.Deferred.ClaimLimit)

	e.Runtime = progression.NewRuntime(progression.Config{
		ServerID:           e.Cfg.ProgressServerID(),
		Season:             bp.Season,
		MaxPlayersPerBatch: bp.MaxPlayersPerBatch,
	}, progression.Deps{
		Store:    stores.Progression,
		State:    state,
		Exec:     e.Exec,
		Bus:      e.Bus,
		Catalog:  e.Catalog,
		Rewards:  rewards,
		Periods:  periods,
		Clock:    e.Clock,
		Boosters: e.Boosters,
		Premium:  progression.NewPremiumResolver(e.Entitlements, bp.PremiumScope, e.Cfg.Server.ID, bp.PremiumEntitlementKey),
	})

	e.Leaderboard = leaderboard.NewCache(
		stores.Leaderboard, state, e.Exec,
		e.Cfg.ProgressServerID(), bp.Season, e.Cfg.Leaderboard.Size)

	if e.Cfg.Archive.Enabled {
		client, err := archive.NewS3Client(ctx, archive.Options{
			Endpoint: e.Cfg.Archive.Endpoint,
			Region:   e.Cfg.Archive.Region,
			Key:      e.Cfg.Archive.Key,
			Secret:   e.Cfg.Archive.Secret,
		})
		if err != nil {
			return fmt.Errorf("failed to create archive client: %w", err)
		}
		e.Archive = archive.NewService(stores.Progression, e.Runtime, client, state, e.Clock, e.Cfg.Archive.Bucket, e.Cfg.Archive.Prefix)
	}

	e.publish()
	e.schedule()
	return nil
}

func (e *Engine) publish() {
	r := e.Capabilities
	capability.Register(r, BusKey, e.Bus)
	capability.Register(r, DeferredKey, e.Deferred)
	capability.Register(r, ProgressionKey, e.Runtime)
	capability.Register(r, EntitlementsKey, e.Entitlements)
	capability.Register(r, BoostersKey, e.Boosters)
	capability.Register(r, LeaderboardKey, e.Leaderboard)
	capability.Register(r, QuestsKey, e.Catalog)
	if e.Archive != nil {
		capability.Register(r, ArchiveKey, e.Archive)
	}
}

func (e *Engine) schedule() {
	s := e.Scheduler
	s.Add(scheduler.Task{
		Name:     "progress-flush",
		Interval: e.Cfg.BattlePass.FlushInterval.Std(),
		Run: func(ctx context.Context) {
			if _, err := e.Runtime.FlushAll().Await(ctx); err != nil {
				logTaskError("progress-flush", err)
			}
		},
	})
	s.Add(scheduler.Task{
		Name:       "leaderboard-refresh",
		Interval:   e.Cfg.Leaderboard.RefreshInterval.Std(),
		RunAtStart: true,
		Run: func(ctx context.Context) {
			if err := e.Leaderboard.RefreshNow(ctx); err != nil {
				logTaskError("leaderboard-refresh", err)
			}
		},
	})
	s.Add(scheduler.Task{
		Name:     "deferred-purge",
		Interval: e.Cfg.Deferred.PurgeInterval.Std(),
		Run: func(ctx context.Context) {
			if _, err := e.Deferred.PurgeExpired(ctx); err != nil {
				logTaskError("deferred-purge", err)
			}
		},
	})
	s.Add(scheduler.Task{
		Name:     "entitlement-housekeep",
		Interval: e.Cfg.Entitlements.HousekeepInterval.Std(),
		Run:      func(context.Context) { e.Entitlements.Housekeep() },
	})
	s.Add(scheduler.Task{
		Name:       "booster-refresh",
		Interval:   e.Cfg.Boosters.RefreshInterval.Std(),
		RunAtStart: true,
		Run: func(ctx context.Context) {
			if err := e.Boosters.Refresh(ctx); err != nil {
				logTaskError("booster-refresh", err)
			}
		},
	})
	s.Add(scheduler.Task{
		Name:     "booster-purge",
		Interval: e.Cfg.Boosters.PurgeInterval.Std(),
		Run: func(ctx context.Context) {
			if _, err := e.Boosters.PurgeExpired(ctx); err != nil {
				logTaskError("booster-purge", err)
			}
		},
	})
	s.Add(scheduler.Task{
		Name:     "premium-refresh",
		Interval: e.Cfg.Entitlements.CacheTTL.Std(),
		Run:      func(context.Context) { e.Runtime.RefreshPremiumAll() },
	})
}

func logTaskError(task string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	slog.Error("Periodic task failed",
		slog.String("type", "sys"),
		slog.String("task", task),
		slog.Any("error", err))
}

// Start subscribes the runtime to the bus and launches the probe, the
// periodic tasks and the invalidation listener.
func (e *Engine) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	e.cancel = cancel
	e.done = make(chan struct{})

	e.Runtime.Start()
	e.Scheduler.Start(ctx)

	probeDone := make(chan struct{})
	go func() {
		defer close(probeDone)
		if e.DB == nil {
			return
		}
		e.DB.RunProbe(ctx, e.Cfg.DB.ProbeInterval.Std())
	}()

	listenDone := make(chan struct{})
	go func() {
		defer close(listenDone)
		if e.redis == nil {
			return
		}
		b := entitlements.NewRedisBroadcaster(e.redis, e.Cfg.Redis.Channel, e.Cfg.Server.ID)
		if err := b.Listen(ctx, e.Entitlements); err != nil {
			slog.Error("Invalidation listener stopped",
				slog.String("type", "cache"),
				slog.Any("error", err))
		}
	}()

	go func() {
		<-probeDone
		<-listenDone
		close(e.done)
	}()

	slog.Info("Engine started",
		slog.String("type", "sys"),
		slog.String("server", e.Cfg.Server.ID),
		slog.Int("season", e.Cfg.BattlePass.Season),
		slog.Int("quests", len(e.Catalog.All())),
		slog.String("version", e.Version))
}

// PlayerJoin loads the player's ledger and then replays actions queued for
// their name, so replayed events land on a live ledger.
func (e *Engine) PlayerJoin(playerID uuid.UUID, name string) *async.Future[int] {
	joined := e.Runtime.Join(playerID)
	return async.Compose(joined, func(_ *progression.Ledger, err error) *async.Future[int] {
		if err != nil {
			return async.Failed[int](err)
		}
		return e.Deferred.ReplayOnJoin(e.Cfg.Server.ID, name, playerID)
	})
}

// Defer queues an action for a player known only by name. Network-wide
// entries can be claimed on any server.
func (e *Engine) Defer(playerName string, action actions.DeferredAction, source string, networkWide bool) *async.Future[struct{}] {
	serverID := e.Cfg.Server.ID
	if networkWide {
		serverID = ""
	}
	return e.Deferred.Enqueue(serverID, playerName, action, e.Cfg.Deferred.DefaultTTL.Std(), source)
}

func (e *Engine) PlayerQuit(playerID uuid.UUID) *async.Future[struct{}] {
	e.Entitlements.Invalidate(playerID)
	return e.Runtime.Quit(playerID)
}

// Reload re-reads the quest and reward catalogs. Both files are parsed before
// either is swapped in, so on error the previous catalogs stay in place.
func (e *Engine) Reload() error {
	loaded, err := quests.LoadFile(e.Cfg.BattlePass.QuestsFile)
	if err != nil {
		return fmt.Errorf("failed to reload quests: %w", err)
	}
	rewards, err := progression.LoadRewardsFile(e.Cfg.BattlePass.RewardsFile)
	if err != nil {
		return fmt.Errorf("failed to reload rewards: %w", err)
	}
	e.Catalog.Replace(loaded)
	e.Runtime.ReplaceRewards(rewards)
	slog.Info("Catalogs reloaded",
		slog.String("type", "sys"),
		slog.Int("quests", len(loaded)),
		slog.Int("tiers", rewards.MaxTier()))
	return nil
}

// Close stops background work, flushes every ledger and shuts the executor
// down. The database is left open for the caller to close.
func (e *Engine) Close(ctx context.Context) {
	if e.Runtime != nil {
		if err := e.Runtime.Stop(ctx); err != nil {
			slog.Error("Final flush failed",
				slog.String("type", "flush"),
				slog.Any("error", err))
		}
	}
	e.Scheduler.Stop()
	if e.cancel != nil {
		e.cancel()
		select {
		case <-e.done:
		case <-ctx.Done():
		}
	}
	if e.Bus != nil {
		e.Bus.Close()
	}
	if e.Exec != nil {
		if err := e.Exec.Shutdown(ctx); err != nil {
			slog.Warn("Executor did not drain",
				slog.String("type", "sys"),
				slog.Any("error", err))
		}
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
	slog.Info("Engine stopped", slog.String("type", "sys"))
}
