package livesvc

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// LoadConfig reads the TOML file at path, fills defaults and applies
// LIVESVC_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	cfg := DefaultConfig()
	if err = toml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err = env.ParseWithOptions(cfg, env.Options{Prefix: "LIVESVC_"}); err != nil {
		return nil, fmt.Errorf("failed to parse env overrides: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: slog.LevelInfo, Color: true},
		DB: DBConfig{
			Host:          "localhost",
			Port:          5432,
			PoolSize:      10,
			ProbeInterval: Duration(5 * time.Second),
		},
		Server: ServerConfig{ID: "default", AsyncWorkers: 8},
		BattlePass: BattlePassConfig{
			Season:                1,
			Week:                  1,
			Timezone:              "UTC",
			DailyReset:            "0 0 * * *",
			WeeklyResetMode:       "BATTLEPASS_WEEK",
			WeeklyReset:           "0 0 * * 1",
			PremiumScope:          "SERVER",
			PremiumEntitlementKey: "battlepass_premium",
			FlushInterval:         Duration(30 * time.Second),
			MaxPlayersPerBatch:    200,
			QuestsFile:            "quests.yaml",
			RewardsFile:           "rewards.yaml",
		},
		Entitlements: EntitlementConfig{
			CacheSize:         10000,
			CacheTTL:          Duration(2 * time.Minute),
			HousekeepInterval: Duration(time.Minute),
		},
		Boosters: BoosterConfig{
			RefreshInterval: Duration(30 * time.Second),
			PurgeInterval:   Duration(10 * time.Minute),
			PurgeLimit:      500,
		},
		Leaderboard: LeaderboardConfig{
			Size:            100,
			RefreshInterval: Duration(time.Minute),
		},
		Deferred: DeferredConfig{
			PurgeInterval: Duration(5 * time.Minute),
			ClaimLimit:    100,
			DefaultTTL:    Duration(7 * 24 * time.Hour),
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "livesvc:entitlements:invalidate",
		},
		Archive: ArchiveConfig{Prefix: "battlepass"},
	}
}

type Config struct {
	Log          LogConfig         `toml:"log" envPrefix:"LOG_"`
	DB           DBConfig          `toml:"db" envPrefix:"DB_"`
	Server       ServerConfig      `toml:"server" envPrefix:"SERVER_"`
	BattlePass   BattlePassConfig  `toml:"battlepass" envPrefix:"BATTLEPASS_"`
	Entitlements EntitlementConfig `toml:"entitlements" envPrefix:"ENTITLEMENTS_"`
	Boosters     BoosterConfig     `toml:"boosters" envPrefix:"BOOSTERS_"`
	Leaderboard  LeaderboardConfig `toml:"leaderboard" envPrefix:"LEADERBOARD_"`
	Deferred     DeferredConfig    `toml:"deferred" envPrefix:"DEFERRED_"`
	Redis        RedisConfig       `toml:"redis" envPrefix:"REDIS_"`
	Archive      ArchiveConfig     `toml:"archive" envPrefix:"ARCHIVE_"`
}

type LogConfig struct {
	Level slog.Level `toml:"level" env:"LEVEL"`
	Color bool       `toml:"color" env:"COLOR"`
}

type DBConfig struct {
	Host          string   `toml:"host" env:"HOST"`
	Port          int      `toml:"port" env:"PORT"`
	User          string   `toml:"user" env:"USER"`
	Password      string   `toml:"password" env:"PASSWORD"`
	Database      string   `toml:"database" env:"DATABASE"`
	PoolSize      int      `toml:"pool_size" env:"POOL_SIZE"`
	ProbeInterval Duration `toml:"probe_interval" env:"PROBE_INTERVAL"`
}

type ServerConfig struct {
	ID           string `toml:"id" env:"ID"`
	AsyncWorkers int    `toml:"async_workers" env:"ASYNC_WORKERS"`
}

type BattlePassConfig struct {
	Season int `toml:"season" env:"SEASON"`
	Week   int `toml:"week" env:"WEEK"`
	// ProgressServerID overrides Server.ID as the progress partition key.
	ProgressServerID      string   `toml:"progress_server_id" env:"PROGRESS_SERVER_ID"`
	Timezone              string   `toml:"timezone" env:"TIMEZONE"`
	DailyReset            string   `toml:"daily_reset" env:"DAILY_RESET"`
	WeeklyResetMode       string   `toml:"weekly_reset_mode" env:"WEEKLY_RESET_MODE"`
	WeeklyReset           string   `toml:"weekly_reset" env:"WEEKLY_RESET"`
	PremiumScope          string   `toml:"premium_scope" env:"PREMIUM_SCOPE"`
	PremiumEntitlementKey string   `toml:"premium_entitlement_key" env:"PREMIUM_ENTITLEMENT_KEY"`
	FlushInterval         Duration `toml:"flush_interval" env:"FLUSH_INTERVAL"`
	MaxPlayersPerBatch    int      `toml:"max_players_per_batch" env:"MAX_PLAYERS_PER_BATCH"`
	QuestsFile            string   `toml:"quests_file" env:"QUESTS_FILE"`
	RewardsFile           string   `toml:"rewards_file" env:"REWARDS_FILE"`
}

type EntitlementConfig struct {
	CacheSize         int      `toml:"cache_size" env:"CACHE_SIZE"`
	CacheTTL          Duration `toml:"cache_ttl" env:"CACHE_TTL"`
	HousekeepInterval Duration `toml:"housekeep_interval" env:"HOUSEKEEP_INTERVAL"`
}

type BoosterConfig struct {
	RefreshInterval Duration `toml:"refresh_interval" env:"REFRESH_INTERVAL"`
	PurgeInterval   Duration `toml:"purge_interval" env:"PURGE_INTERVAL"`
	PurgeLimit      int      `toml:"purge_limit" env:"PURGE_LIMIT"`
}

type LeaderboardConfig struct {
	Size            int      `toml:"size" env:"SIZE"`
	RefreshInterval Duration `toml:"refresh_interval" env:"REFRESH_INTERVAL"`
}

type DeferredConfig struct {
	PurgeInterval Duration `toml:"purge_interval" env:"PURGE_INTERVAL"`
	ClaimLimit    int      `toml:"claim_limit" env:"CLAIM_LIMIT"`
	DefaultTTL    Duration `toml:"default_ttl" env:"DEFAULT_TTL"`
}

type RedisConfig struct {
	Enabled  bool   `toml:"enabled" env:"ENABLED"`
	Addr     string `toml:"addr" env:"ADDR"`
	Password string `toml:"password" env:"PASSWORD"`
	Channel  string `toml:"channel" env:"CHANNEL"`
}

type ArchiveConfig struct {
	Enabled  bool   `toml:"enabled" env:"ENABLED"`
	Endpoint string `toml:"endpoint" env:"ENDPOINT"`
	Region   string `toml:"region" env:"REGION"`
	Bucket   string `toml:"bucket" env:"BUCKET"`
	Key      string `toml:"key" env:"KEY"`
	Secret   string `toml:"secret" env:"SECRET"`
	Prefix   string `toml:"prefix" env:"PREFIX"`
}

// ProgressServerID is the server id progress rows are partitioned under.
func (c *Config) ProgressServerID() string {
	if c.BattlePass.ProgressServerID != "" {
		return c.BattlePass.ProgressServerID
	}
	return c.Server.ID
}

func (c *Config) Validate() error {
	if c.Server.ID == "" {
		return fmt.Errorf("server.id must be set")
	}
	if c.BattlePass.Season < 1 {
		return fmt.Errorf("battlepass.season must be >= 1, got %d", c.BattlePass.Season)
	}
	if c.BattlePass.FlushInterval <= 0 {
		return fmt.Errorf("battlepass.flush_interval must be positive")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket must be set when archive is enabled")
	}
	return nil
}

// Duration decodes "30s"-style strings from TOML and the environment.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
