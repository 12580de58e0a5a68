package constants

import "time"

const (
	ProfileCacheCapacity = 512
	MatchCacheCapacity   = 256
)

const (
	ExternalAPITimeout = 10 * time.Second
	HealthProbeTimeout = 5 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	SweepInterval  = 24 * time.Hour
	ChainStepDelay = 1 * time.Second
	SweepFanout    = 4
)

const (
	JobStuckTimeout = 10 * time.Minute
	JanitorInterval = 1 * time.Minute
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

// MaxReplayUpload caps direct replay uploads; competitive demos stay
// well under this.
const MaxReplayUpload = 64 << 20

const (
	SearchSuggestionLimit = 10
	MatchHistoryPageSize  = 10
	LeaderboardSize       = 10
)
