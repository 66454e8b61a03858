package cfg

import "time"

// Command names accepted on the command line.
const (
	CommandRun     = "run"
	CommandMigrate = "migrate"
	CommandInspect = "inspect"
)

type Cfg struct {
	Command string

	// Storage configuration
	SourceDatabaseURL   string
	TrackingDatabaseURL string
	SourceTable         string
	DBSSLMode           string
	DBMaxRetries        int

	// Posting API configuration
	XAPIBaseURL    string
	XAccessToken   string
	RequestTimeout time.Duration

	// Delivery configuration
	PollInterval     time.Duration
	PostDelay        time.Duration
	MaxRetries       int
	RetryBaseDelay   time.Duration
	RetryMultiplier  float64
	MaxBackoffDelay  time.Duration
	LookbackWindow   time.Duration
	PageSize         int
	MaxContentLength int

	// Application configuration
	Port         string
	APIAccessKey string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	LogFormat string
	Version   string
}
