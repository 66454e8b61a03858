package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	SourceDatabaseURL   string `long:"source-database-url" env:"SOURCE_DATABASE_URL" description:"Connection string of the read-only answers store"`
	TrackingDatabaseURL string `long:"tracking-database-url" env:"TRACKING_DATABASE_URL" description:"Connection string of the delivery ledger store"`
	SourceTable         string `long:"source-table" env:"SOURCE_TABLE" default:"answers" description:"Table holding candidate answers"`
	DBSSLMode           string `long:"db-ssl-mode" env:"DB_SSL_MODE" default:"require" description:"sslmode applied to postgres URLs without one"`
	DBMaxRetries        int    `long:"db-max-retries" env:"DB_MAX_RETRIES" default:"3" description:"Retries after a lost database connection"`

	// Posting API configuration
	XAPIBaseURL    string        `long:"x-api-base-url" env:"X_API_BASE_URL" default:"https://api.twitter.com" description:"X API base URL"`
	XAccessToken   string        `long:"x-access-token" env:"X_ACCESS_TOKEN" description:"X API bearer token (required for run)"`
	RequestTimeout time.Duration `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"30s" description:"Timeout of a single API or database call"`

	// Delivery configuration
	PollInterval     time.Duration `long:"poll-interval" env:"POLL_INTERVAL" default:"60s" description:"Interval between poll cycles"`
	PostDelay        time.Duration `long:"post-delay" env:"POST_DELAY" default:"10s" description:"Minimum delay between successful posts"`
	MaxRetries       int           `long:"max-retries" env:"MAX_RETRIES" default:"3" description:"Retries after a rate-limited API call"`
	RetryBaseDelay   time.Duration `long:"retry-base-delay" env:"RETRY_BASE_DELAY" default:"5s" description:"Backoff delay of the first retry"`
	RetryMultiplier  float64       `long:"retry-multiplier" env:"RETRY_MULTIPLIER" default:"2" description:"Backoff growth factor"`
	MaxBackoffDelay  time.Duration `long:"max-backoff-delay" env:"MAX_BACKOFF_DELAY" default:"5m" description:"Upper bound of a backoff delay"`
	LookbackWindow   time.Duration `long:"lookback-window" env:"LOOKBACK_WINDOW" default:"24h" description:"How far back the first poll and retries reach"`
	PageSize         int           `long:"page-size" env:"PAGE_SIZE" default:"50" description:"Answers fetched per cycle"`
	MaxContentLength int           `long:"max-content-length" env:"MAX_CONTENT_LENGTH" default:"25000" description:"Reply length in characters before truncation"`

	// Application configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"Status HTTP server port (empty disables it)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"answer-relay/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
	LogFormat string `long:"log-format" env:"LOG_FORMAT" default:"text" choice:"text" choice:"json" description:"Log output format"`
}

type commandOptions struct{}

// LoadDotEnv reads path into the environment when the file exists.
// Variables already set win over the file.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load parses args and the environment. It returns nil, nil when help was
// requested.
func Load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)
	parser.SubcommandsOptional = true
	parser.AddCommand(CommandRun, "Run the poll loop", "Poll for new answers and post them as replies (default)", &commandOptions{})
	parser.AddCommand(CommandMigrate, "Apply ledger migrations", "Create or upgrade the ledger schema and exit", &commandOptions{})
	parser.AddCommand(CommandInspect, "Show ledger state", "Print schema version and outcome counts as YAML", &commandOptions{})

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	command := CommandRun
	if parser.Active != nil {
		command = parser.Active.Name
	}

	cfg := &Cfg{
		Command:             command,
		SourceDatabaseURL:   strings.TrimSpace(raw.SourceDatabaseURL),
		TrackingDatabaseURL: strings.TrimSpace(raw.TrackingDatabaseURL),
		SourceTable:         raw.SourceTable,
		DBSSLMode:           raw.DBSSLMode,
		DBMaxRetries:        raw.DBMaxRetries,
		XAPIBaseURL:         raw.XAPIBaseURL,
		XAccessToken:        strings.TrimSpace(raw.XAccessToken),
		RequestTimeout:      raw.RequestTimeout,
		PollInterval:        raw.PollInterval,
		PostDelay:           raw.PostDelay,
		MaxRetries:          raw.MaxRetries,
		RetryBaseDelay:      raw.RetryBaseDelay,
		RetryMultiplier:     raw.RetryMultiplier,
		MaxBackoffDelay:     raw.MaxBackoffDelay,
		LookbackWindow:      raw.LookbackWindow,
		PageSize:            raw.PageSize,
		MaxContentLength:    raw.MaxContentLength,
		Port:                raw.Port,
		APIAccessKey:        raw.APIAccessKey,
		UserAgent:           raw.UserAgent,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		LogFormat:           raw.LogFormat,
		Version:             GetVersion(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

// Validate checks the settings the selected command depends on.
func (c *Cfg) Validate() error {
	var problems []string

	if c.TrackingDatabaseURL == "" {
		problems = append(problems, "TRACKING_DATABASE_URL is required")
	}

	if c.Command == CommandRun {
		if c.SourceDatabaseURL == "" {
			problems = append(problems, "SOURCE_DATABASE_URL is required")
		}
		if c.XAccessToken == "" {
			problems = append(problems, "X_ACCESS_TOKEN is required")
		}
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"POLL_INTERVAL", c.PollInterval},
		{"REQUEST_TIMEOUT", c.RequestTimeout},
		{"LOOKBACK_WINDOW", c.LookbackWindow},
	}
	for _, p := range positive {
		if p.value <= 0 {
			problems = append(problems, p.name+" must be positive")
		}
	}

	if c.PostDelay < 0 || c.RetryBaseDelay < 0 || c.MaxBackoffDelay < 0 {
		problems = append(problems, "delays must not be negative")
	}
	if c.MaxRetries < 0 || c.DBMaxRetries < 0 {
		problems = append(problems, "retry counts must not be negative")
	}
	if c.RetryMultiplier < 1 {
		problems = append(problems, "RETRY_MULTIPLIER must be at least 1")
	}
	if c.PageSize <= 0 {
		problems = append(problems, "PAGE_SIZE must be positive")
	}
	if c.MaxContentLength <= 3 {
		problems = append(problems, "MAX_CONTENT_LENGTH must be greater than 3")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
