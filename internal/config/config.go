// Package config loads ladder-server configuration from flags, environment variables and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	App        AppConfig
	Logger     LoggerConfig
	Server     ServerConfig
	Auth       AuthConfig
	Ranking    RankingConfig
	AntiCheat  AntiCheatConfig
	Submission SubmissionConfig
	Hub        HubConfig
	RateLimit  RateLimitConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
	DataDir     string // badger, sqlite audit log and auth key live here
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string
	Format string // json or pretty; empty picks by environment
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

// AuthConfig holds access token configuration.
type AuthConfig struct {
	// TokenKey is the hex-encoded PASETO v4 key. Empty means load or
	// generate <DataDir>/auth.key.
	TokenKey            string
	AccessTokenDuration time.Duration
}

// RankingConfig bounds ranking queries.
type RankingConfig struct {
	DefaultPageSize     int
	MaxPageSize         int
	MaxTopN             int
	MaxContextWindow    int
	SnapshotInterval    time.Duration
	DefaultLeaderboards []string
}

// AntiCheatConfig tunes the submission evaluator.
type AntiCheatConfig struct {
	VarianceMultiplier float64
	HistoryWindow      int
	MinHistory         int
	ChecksumKey        string
	RequireChecksum    bool
	MinSubmitInterval  time.Duration
}

// SubmissionConfig bounds pipeline input.
type SubmissionConfig struct {
	MaxBatchSize     int
	DisputeReasonMin int
	DisputeReasonMax int
}

// HubConfig tunes the realtime hub.
type HubConfig struct {
	MaxSubscriptions  int
	HeartbeatInterval time.Duration
	EventBuffer       int
	PublishTimeout    time.Duration // how long a publisher waits on a full event queue
	MessageRate       float64       // inbound websocket messages per second
	MessageBurst      int
}

// Budget is a per-tier request allowance.
type Budget struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// RateLimitConfig holds tier budgets.
type RateLimitConfig struct {
	Anonymous       Budget
	Authenticated   Budget
	Premium         Budget
	BurstMultiplier float64
	SweepInterval   time.Duration
	IdleTTL         time.Duration
}

// LoadConfig loads configuration from os.Args with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load is LoadConfig over an explicit argument list.
func Load(args []string) (*Config, error) {
	l := newLoader()
	if err := l.fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Missing .env is fine; real environment variables always win.
	_ = godotenv.Load(*l.envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: l.str("env", "ENV", "development"),
			DataDir:     l.str("data-dir", "DATA_DIR", ""),
		},
		Logger: LoggerConfig{
			Level:  l.str("log-level", "LOG_LEVEL", "info"),
			Format: l.str("log-format", "LOG_FORMAT", ""),
		},
		Server: ServerConfig{
			Port:         l.str("port", "SERVER_PORT", "8080"),
			ReadTimeout:  l.duration("read-timeout", "SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: l.duration("write-timeout", "SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  l.duration("idle-timeout", "SERVER_IDLE_TIMEOUT", "60s"),
			CORSOrigins:  l.list("cors-origins", "CORS_ORIGINS", "*"),
		},
		Auth: AuthConfig{
			TokenKey:            l.str("token-key", "AUTH_TOKEN_KEY", ""),
			AccessTokenDuration: l.duration("access-token-duration", "ACCESS_TOKEN_DURATION", "24h"),
		},
		Ranking: RankingConfig{
			DefaultPageSize:     l.int("page-size", "RANKING_PAGE_SIZE", 25),
			MaxPageSize:         l.int("max-page-size", "RANKING_MAX_PAGE_SIZE", 100),
			MaxTopN:             l.int("max-top-n", "RANKING_MAX_TOP_N", 100),
			MaxContextWindow:    l.int("max-context-window", "RANKING_MAX_CONTEXT_WINDOW", 25),
			SnapshotInterval:    l.duration("snapshot-interval", "RANKING_SNAPSHOT_INTERVAL", "30s"),
			DefaultLeaderboards: l.list("leaderboards", "RANKING_DEFAULT_LEADERBOARDS", "global"),
		},
		AntiCheat: AntiCheatConfig{
			VarianceMultiplier: l.float("variance-multiplier", "ANTICHEAT_VARIANCE_MULTIPLIER", 5),
			HistoryWindow:      l.int("history-window", "ANTICHEAT_HISTORY_WINDOW", 20),
			MinHistory:         l.int("min-history", "ANTICHEAT_MIN_HISTORY", 1),
			ChecksumKey:        l.str("checksum-key", "ANTICHEAT_CHECKSUM_KEY", ""),
			RequireChecksum:    l.bool("require-checksum", "ANTICHEAT_REQUIRE_CHECKSUM", false),
			MinSubmitInterval:  l.duration("min-submit-interval", "ANTICHEAT_MIN_SUBMIT_INTERVAL", "2s"),
		},
		Submission: SubmissionConfig{
			MaxBatchSize:     l.int("max-batch-size", "SUBMISSION_MAX_BATCH_SIZE", 50),
			DisputeReasonMin: l.int("dispute-reason-min", "SUBMISSION_DISPUTE_REASON_MIN", 10),
			DisputeReasonMax: l.int("dispute-reason-max", "SUBMISSION_DISPUTE_REASON_MAX", 500),
		},
		Hub: HubConfig{
			MaxSubscriptions:  l.int("max-subscriptions", "HUB_MAX_SUBSCRIPTIONS", 10),
			HeartbeatInterval: l.duration("heartbeat-interval", "HUB_HEARTBEAT_INTERVAL", "30s"),
			EventBuffer:       l.int("event-buffer", "HUB_EVENT_BUFFER", 1024),
			PublishTimeout:    l.duration("publish-timeout", "HUB_PUBLISH_TIMEOUT", "2s"),
			MessageRate:       l.float("ws-message-rate", "HUB_MESSAGE_RATE", 10),
			MessageBurst:      l.int("ws-message-burst", "HUB_MESSAGE_BURST", 20),
		},
		RateLimit: RateLimitConfig{
			Anonymous: Budget{
				PerMinute: l.int("anon-per-minute", "RATELIMIT_ANON_PER_MINUTE", 30),
				PerHour:   l.int("anon-per-hour", "RATELIMIT_ANON_PER_HOUR", 500),
				PerDay:    l.int("anon-per-day", "RATELIMIT_ANON_PER_DAY", 5000),
			},
			Authenticated: Budget{
				PerMinute: l.int("auth-per-minute", "RATELIMIT_AUTH_PER_MINUTE", 120),
				PerHour:   l.int("auth-per-hour", "RATELIMIT_AUTH_PER_HOUR", 3000),
				PerDay:    l.int("auth-per-day", "RATELIMIT_AUTH_PER_DAY", 30000),
			},
			Premium: Budget{
				PerMinute: l.int("premium-per-minute", "RATELIMIT_PREMIUM_PER_MINUTE", 600),
				PerHour:   l.int("premium-per-hour", "RATELIMIT_PREMIUM_PER_HOUR", 15000),
				PerDay:    l.int("premium-per-day", "RATELIMIT_PREMIUM_PER_DAY", 150000),
			},
			BurstMultiplier: l.float("burst-multiplier", "RATELIMIT_BURST_MULTIPLIER", 1.5),
			SweepInterval:   l.duration("ratelimit-sweep-interval", "RATELIMIT_SWEEP_INTERVAL", "5m"),
			IdleTTL:         l.duration("ratelimit-idle-ttl", "RATELIMIT_IDLE_TTL", "25h"),
		},
	}

	if err := errors.Join(l.errs...); err != nil {
		return nil, err
	}

	if err := cfg.expandDataDir(); err != nil {
		return nil, fmt.Errorf("invalid data dir: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all config values are usable.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.App.DataDir == "" {
		return errors.New("data dir cannot be empty after expansion")
	}

	if c.Ranking.MaxPageSize <= 0 || c.Ranking.DefaultPageSize <= 0 {
		return errors.New("ranking page sizes must be positive")
	}
	if c.Ranking.DefaultPageSize > c.Ranking.MaxPageSize {
		return fmt.Errorf("default page size %d exceeds max page size %d", c.Ranking.DefaultPageSize, c.Ranking.MaxPageSize)
	}

	if c.AntiCheat.VarianceMultiplier <= 1 {
		return fmt.Errorf("variance multiplier must be greater than 1, got %v", c.AntiCheat.VarianceMultiplier)
	}
	if c.AntiCheat.HistoryWindow <= 0 {
		return errors.New("anti-cheat history window must be positive")
	}

	if c.Submission.MaxBatchSize <= 0 {
		return errors.New("max batch size must be positive")
	}
	if c.Submission.DisputeReasonMin < 1 || c.Submission.DisputeReasonMax < c.Submission.DisputeReasonMin {
		return fmt.Errorf("invalid dispute reason bounds [%d, %d]", c.Submission.DisputeReasonMin, c.Submission.DisputeReasonMax)
	}

	if c.Hub.MaxSubscriptions <= 0 {
		return errors.New("hub max subscriptions must be positive")
	}
	if c.Hub.HeartbeatInterval <= 0 {
		return errors.New("hub heartbeat interval must be positive")
	}

	for name, b := range map[string]Budget{
		"anonymous":     c.RateLimit.Anonymous,
		"authenticated": c.RateLimit.Authenticated,
		"premium":       c.RateLimit.Premium,
	} {
		if b.PerMinute <= 0 || b.PerHour <= 0 || b.PerDay <= 0 {
			return fmt.Errorf("rate limit budget for %s tier must be positive", name)
		}
	}
	if c.RateLimit.BurstMultiplier < 1 {
		return fmt.Errorf("burst multiplier must be at least 1, got %v", c.RateLimit.BurstMultiplier)
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

func (c *Config) expandDataDir() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	expanded, err := expandPath(c.App.DataDir, filepath.Join(homeDir, ".ladder", "data"))
	if err != nil {
		return err
	}
	c.App.DataDir = expanded
	return nil
}

// loader resolves one setting at a time from its flag, env var or default,
// collecting parse errors instead of failing on the first.
type loader struct {
	fs      *flag.FlagSet
	flags   map[string]*string
	envFile *string
	errs    []error
}

var flagUsage = map[string]string{
	"env":                      "Environment (development, staging, production)",
	"data-dir":                 "Directory for the key-value store, audit log and auth key",
	"log-level":                "Log level (debug, info, warn, error)",
	"log-format":               "Log format (json, pretty)",
	"port":                     "Server port (default: 8080)",
	"read-timeout":             "HTTP read timeout (default: 15s)",
	"write-timeout":            "HTTP write timeout (default: 15s)",
	"idle-timeout":             "HTTP idle timeout (default: 60s)",
	"cors-origins":             "Comma-separated allowed CORS origins",
	"token-key":                "Hex-encoded PASETO v4 key for access tokens",
	"access-token-duration":    "Access token lifetime (e.g., 24h)",
	"page-size":                "Default leaderboard page size",
	"max-page-size":            "Maximum leaderboard page size",
	"max-top-n":                "Maximum N for top-N queries",
	"max-context-window":       "Maximum neighbors on each side for context queries",
	"snapshot-interval":        "Interval between ranking snapshots",
	"leaderboards":             "Comma-separated leaderboards created at startup",
	"variance-multiplier":      "Flag scores above this multiple of the recent average",
	"history-window":           "Number of recent accepted scores kept per player",
	"min-history":              "Minimum history before variance checks apply",
	"checksum-key":             "Key for submission checksums",
	"require-checksum":         "Reject submissions without a checksum",
	"min-submit-interval":      "Flag submissions closer together than this",
	"max-batch-size":           "Maximum submissions per batch",
	"dispute-reason-min":       "Minimum dispute reason length",
	"dispute-reason-max":       "Maximum dispute reason length",
	"max-subscriptions":        "Maximum leaderboard subscriptions per connection",
	"heartbeat-interval":       "Hub heartbeat interval",
	"event-buffer":             "Hub event queue capacity",
	"ws-message-rate":          "Inbound websocket messages per second per connection",
	"ws-message-burst":         "Inbound websocket message burst per connection",
	"anon-per-minute":          "Anonymous requests per minute",
	"anon-per-hour":            "Anonymous requests per hour",
	"anon-per-day":             "Anonymous requests per day",
	"auth-per-minute":          "Authenticated requests per minute",
	"auth-per-hour":            "Authenticated requests per hour",
	"auth-per-day":             "Authenticated requests per day",
	"premium-per-minute":       "Premium requests per minute",
	"premium-per-hour":         "Premium requests per hour",
	"premium-per-day":          "Premium requests per day",
	"burst-multiplier":         "Burst ceiling as a multiple of the per-minute budget",
	"ratelimit-sweep-interval": "Interval between idle rate limit state sweeps",
	"ratelimit-idle-ttl":       "Drop rate limit state idle longer than this",
}

func newLoader() *loader {
	l := &loader{
		fs:    flag.NewFlagSet("ladder-server", flag.ContinueOnError),
		flags: make(map[string]*string, len(flagUsage)),
	}
	for name, usage := range flagUsage {
		l.flags[name] = l.fs.String(name, "", usage)
	}
	l.envFile = l.fs.String("env-file", ".env", "Path to .env file")
	return l
}

func (l *loader) str(flagName, envKey, defaultValue string) string {
	var flagValue string
	if p, ok := l.flags[flagName]; ok {
		flagValue = *p
	}
	return getConfigValue(flagValue, envKey, defaultValue)
}

func (l *loader) int(flagName, envKey string, defaultValue int) int {
	s := l.str(flagName, envKey, "")
	if s == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: %w", flagName, s, err))
		return defaultValue
	}
	return v
}

func (l *loader) float(flagName, envKey string, defaultValue float64) float64 {
	s := l.str(flagName, envKey, "")
	if s == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: %w", flagName, s, err))
		return defaultValue
	}
	return v
}

func (l *loader) bool(flagName, envKey string, defaultValue bool) bool {
	s := strings.ToLower(l.str(flagName, envKey, ""))
	if s == "" {
		return defaultValue
	}
	return s == "true" || s == "1" || s == "yes"
}

func (l *loader) duration(flagName, envKey, defaultValue string) time.Duration {
	s := l.str(flagName, envKey, defaultValue)
	d, err := time.ParseDuration(s)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: %w", flagName, s, err))
		return 0
	}
	return d
}

func (l *loader) list(flagName, envKey, defaultValue string) []string {
	var out []string
	for part := range strings.SplitSeq(l.str(flagName, envKey, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}
