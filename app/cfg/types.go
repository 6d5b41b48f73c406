package cfg

type Cfg struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Lock store configuration
	RedisAddr string

	// Scheduling configuration
	SchedulesFile         string
	TickInterval          int // seconds
	WorkerCount           int
	DefaultRefreshMinutes int
	VipRefreshMinutes     int
	LockTTLMinutes        int
	BackfillBatchSize     int
	RateSyncTicks         int // rate sync runs every N ticks
	MaxFetchFailures      int

	// Benefits lookup
	BenefitsURL string
	VipOwnerIDs []string

	// HTTP server
	Port string

	// Application metadata
	UserAgent string
	Debug     bool
	Version   string
}
