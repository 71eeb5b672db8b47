package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	defaultPingTimeout   = 3 * time.Second
	defaultProbeInterval = 5 * time.Second
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	PoolSize int
}

// DB is the store gateway. It owns the pgx pool used for health checks and
// raw statements, the bun handle used by repositories, and the reachability
// state every service consults.
type DB struct {
	pool  *pgxpool.Pool
	bunDB *bun.DB
	state *Switch
}

// New builds the pool without requiring the server to be reachable. The
// gateway starts OFFLINE until the first successful ping.
func New(ctx context.Context, cfg Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(buildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.PoolSize > 0 {
		poolConfig.MaxConns = int32(cfg.PoolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	db := &DB{
		pool:  pool,
		bunDB: newBunDB(cfg),
		state: NewSwitch(StateOffline),
	}
	db.probe(ctx)
	return db, nil
}

func buildConnString(cfg Config) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Database,
		RawQuery: "connect_timeout=5",
	}
	return u.String()
}

func newBunDB(cfg Config) *bun.DB {
	sslMode := os.Getenv("PG_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := buildConnString(cfg) + "&sslmode=" + sslMode

	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	if cfg.PoolSize > 0 {
		sqldb.SetMaxOpenConns(cfg.PoolSize)
	}
	return bun.NewDB(sqldb, pgdialect.New())
}

func (db *DB) Pool() *pgxpool.Pool { return db.pool }

func (db *DB) BunDB() *bun.DB { return db.bunDB }

func (db *DB) State() State { return db.state.State() }

func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	return db.pool.Ping(ctx)
}

// probe pings once and records the result. Transitions are logged; steady
// state is not.
func (db *DB) probe(ctx context.Context) {
	next := StateOnline
	err := db.Ping(ctx)
	if err != nil {
		next = StateOffline
	}
	if !db.state.Set(next) {
		return
	}
	if next == StateOnline {
		slog.Info("Database online",
			slog.String("type", "db"),
			slog.String("status", next.String()))
		return
	}
	slog.Warn("Database offline",
		slog.String("type", "db"),
		slog.String("status", next.String()),
		slog.Any("error", err))
}

// RunProbe pings on every interval until ctx ends.
func (db *DB) RunProbe(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			db.probe(ctx)
		}
	}
}

func (db *DB) ExecWithLog(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	start := time.Now()
	result, err := db.pool.Exec(ctx, sql, args...)
	duration := time.Since(start)

	if err != nil {
		slog.Error("Query failed",
			slog.String("type", "db"),
			slog.String("operation", "exec"),
			slog.String("query", sql),
			slog.Duration("took", duration),
			slog.Any("error", err),
		)
		return result, err
	}

	slog.Debug("Query executed",
		slog.String("type", "db"),
		slog.String("operation", "exec"),
		slog.String("query", sql),
		slog.Duration("took", duration),
		slog.Int64("affected_rows", result.RowsAffected()),
	)
	return result, nil
}

func (db *DB) QueryWithLog(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	start := time.Now()
	rows, err := db.pool.Query(ctx, sql, args...)
	duration := time.Since(start)

	if err != nil {
		slog.Error("Query failed",
			slog.String("type", "db"),
			slog.String("operation", "query"),
			slog.String("query", sql),
			slog.Duration("took", duration),
			slog.Any("error", err),
		)
		return rows, err
	}

	slog.Debug("Query executed",
		slog.String("type", "db"),
		slog.String("operation", "query"),
		slog.String("query", sql),
		slog.Duration("took", duration),
	)
	return rows, nil
}

func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
	if db.bunDB != nil {
		db.bunDB.Close()
	}
}
