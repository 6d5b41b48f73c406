package cfg

import (
	"cmp"
	"fmt"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"feedrelay" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" default:"feedrelay" description:"Database password (required)" required:"true"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"feedrelay" description:"Database name"`

	// Lock store configuration
	RedisAddr string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for processing locks (empty = in-memory locks, single node only)"`

	// Scheduling configuration
	SchedulesFile         string `long:"schedules-file" env:"SCHEDULES_FILE" default:"./schedules.yaml" description:"YAML file with administrator refresh schedule overrides"`
	TickInterval          int    `long:"tick-interval" env:"TICK_INTERVAL" default:"60" description:"Scheduler tick interval in seconds"`
	WorkerCount           int    `long:"worker-count" env:"WORKER_COUNT" default:"10" description:"Number of background workers for feed processing"`
	DefaultRefreshMinutes int    `long:"default-refresh-minutes" env:"DEFAULT_REFRESH_MINUTES" default:"10" description:"Default feed refresh rate in minutes"`
	VipRefreshMinutes     int    `long:"vip-refresh-minutes" env:"VIP_REFRESH_MINUTES" default:"2" description:"Refresh rate in minutes for supporter-owned feeds"`
	LockTTLMinutes        int    `long:"lock-ttl-minutes" env:"LOCK_TTL_MINUTES" default:"5" description:"Processing lock TTL in minutes"`
	BackfillBatchSize     int    `long:"backfill-batch-size" env:"BACKFILL_BATCH_SIZE" default:"100" description:"Batch size for the slot offset backfill"`
	RateSyncTicks         int    `long:"rate-sync-ticks" env:"RATE_SYNC_TICKS" default:"60" description:"Run the refresh rate sync every N ticks"`
	MaxFetchFailures      int    `long:"max-fetch-failures" env:"MAX_FETCH_FAILURES" default:"18" description:"Consecutive fetch failures before a feed is marked failed"`

	// Benefits lookup
	BenefitsURL string   `long:"benefits-url" env:"BENEFITS_URL" description:"Base URL of the tier benefits service (empty = static lookup from --vip-owner)"`
	VipOwnerIDs []string `long:"vip-owner" env:"VIP_OWNER_IDS" env-delim:"," description:"Owner IDs treated as supporters by the static benefits lookup"`

	// HTTP server
	Port string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"FeedRelay/1.0" description:"User agent string for HTTP requests"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBHost:                raw.DBHost,
		DBPort:                raw.DBPort,
		DBUser:                raw.DBUser,
		DBPassword:            raw.DBPassword,
		DBName:                raw.DBName,
		RedisAddr:             raw.RedisAddr,
		SchedulesFile:         raw.SchedulesFile,
		TickInterval:          raw.TickInterval,
		WorkerCount:           raw.WorkerCount,
		DefaultRefreshMinutes: raw.DefaultRefreshMinutes,
		VipRefreshMinutes:     raw.VipRefreshMinutes,
		LockTTLMinutes:        raw.LockTTLMinutes,
		BackfillBatchSize:     raw.BackfillBatchSize,
		RateSyncTicks:         raw.RateSyncTicks,
		MaxFetchFailures:      raw.MaxFetchFailures,
		BenefitsURL:           raw.BenefitsURL,
		VipOwnerIDs:           raw.VipOwnerIDs,
		Port:                  raw.Port,
		UserAgent:             raw.UserAgent,
		Debug:                 raw.Debug,
		Version:               GetVersion(),
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}
