package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Backends and exporters accepted by Validate.
var (
	Backends  = []string{"csv", "sqlite", "memory"}
	Exporters = []string{"none", "csvdir", "google"}
)

// Config is loaded from defaults, then an optional TOML file
// (BUDGET_CONFIG_FILE), then environment variables.
type Config struct {
	// HTTP Server
	Port     string `toml:"port"`
	LogLevel string `toml:"log_level"`
	// TrustedProxies are CIDRs, beyond the private ranges, whose
	// X-Forwarded-For header names the client.
	TrustedProxies []string `toml:"trusted_proxies"`

	// Storage
	DataBackend  string `toml:"backend"`
	DataDir      string `toml:"data_dir"`
	SQLiteDBPath string `toml:"sqlite_db_path"`
	WatchFiles   bool   `toml:"watch_files"`

	// AMQP
	AMQPURL        string `toml:"amqp_url"`
	AMQPExchange   string `toml:"amqp_exchange"`
	AMQPQueue      string `toml:"amqp_queue"`
	AMQPRoutingKey string `toml:"amqp_routing_key"`

	// Mirror worker
	Exporter         string        `toml:"exporter"`
	ExportDir        string        `toml:"export_dir"`
	MirrorDebounce   time.Duration `toml:"mirror_debounce"`
	MirrorMaxRetries int           `toml:"mirror_max_retries"`

	// Google Sheets exporter
	GoogleSpreadsheetID      string `toml:"google_spreadsheet_id"`
	GoogleServiceAccountFile string `toml:"google_service_account_file"`
	GoogleOAuthClientFile    string `toml:"google_oauth_client_file"`
	GoogleOAuthTokenFile     string `toml:"google_oauth_token_file"`
	GoogleOAuthClientJSON    string `toml:"-"`
	GoogleOAuthTokenJSON     string `toml:"-"`

	// Summary cache
	SummaryCacheSize int           `toml:"summary_cache_size"`
	SummaryCacheTTL  time.Duration `toml:"summary_cache_ttl"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:     "8081",
		LogLevel: "info",

		DataBackend:  "csv",
		DataDir:      "./data",
		SQLiteDBPath: "./data/budget.db",
		WatchFiles:   true,

		AMQPURL:        "",
		AMQPExchange:   "budget_exchange",
		AMQPQueue:      "budget_changes",
		AMQPRoutingKey: "budget.change",

		Exporter:         "none",
		ExportDir:        "./export",
		MirrorDebounce:   2 * time.Second,
		MirrorMaxRetries: 3,

		SummaryCacheSize: 16,
		SummaryCacheTTL:  5 * time.Minute,
	}
}

// Load builds the effective configuration. A missing BUDGET_CONFIG_FILE is
// an error; leaving the variable unset skips the file.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("BUDGET_CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile overlays the TOML file at path onto c.
func (c *Config) LoadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.TrustedProxies = getEnvList("TRUSTED_PROXIES", c.TrustedProxies)

	c.DataBackend = getEnv("DATA_BACKEND", c.DataBackend)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)
	c.WatchFiles = getEnvBool("WATCH_FILES", c.WatchFiles)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)
	c.AMQPRoutingKey = getEnv("AMQP_ROUTING_KEY", c.AMQPRoutingKey)

	c.Exporter = getEnv("EXPORTER", c.Exporter)
	c.ExportDir = getEnv("EXPORT_DIR", c.ExportDir)
	c.MirrorDebounce = getEnvDuration("MIRROR_DEBOUNCE", c.MirrorDebounce)
	c.MirrorMaxRetries = getEnvInt("MIRROR_MAX_RETRIES", c.MirrorMaxRetries)

	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", c.GoogleServiceAccountFile)
	c.GoogleOAuthClientFile = getEnv("GOOGLE_OAUTH_CLIENT_FILE", c.GoogleOAuthClientFile)
	c.GoogleOAuthTokenFile = getEnv("GOOGLE_OAUTH_TOKEN_FILE", c.GoogleOAuthTokenFile)
	c.GoogleOAuthClientJSON = getEnv("GOOGLE_OAUTH_CLIENT_JSON", c.GoogleOAuthClientJSON)
	c.GoogleOAuthTokenJSON = getEnv("GOOGLE_OAUTH_TOKEN_JSON", c.GoogleOAuthTokenJSON)

	c.SummaryCacheSize = getEnvInt("SUMMARY_CACHE_SIZE", c.SummaryCacheSize)
	c.SummaryCacheTTL = getEnvDuration("SUMMARY_CACHE_TTL", c.SummaryCacheTTL)
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			problems = append(problems, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR such as 203.0.113.0/24", cidr))
		}
	}

	if !slices.Contains(Backends, c.DataBackend) {
		problems = append(problems, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, Backends))
	}

	switch c.DataBackend {
	case "csv":
		if c.DataDir == "" {
			problems = append(problems, "data directory cannot be empty when using csv backend")
		} else if err := ensureDir(c.DataDir); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create data directory '%s': %v", c.DataDir, err))
		}
	case "sqlite":
		if c.SQLiteDBPath == "" {
			problems = append(problems, "SQLite database path cannot be empty when using sqlite backend")
		} else if err := ensureDir(filepath.Dir(c.SQLiteDBPath)); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create SQLite database directory '%s': %v", filepath.Dir(c.SQLiteDBPath), err))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if !slices.Contains(Exporters, c.Exporter) {
		problems = append(problems, fmt.Sprintf("invalid exporter '%s': must be one of %v", c.Exporter, Exporters))
	}
	switch c.Exporter {
	case "csvdir":
		if c.ExportDir == "" {
			problems = append(problems, "export directory is required for the csvdir exporter")
		}
	case "google":
		problems = append(problems, c.validateGoogle()...)
	}

	if c.MirrorDebounce <= 0 {
		problems = append(problems, fmt.Sprintf("invalid mirror debounce %v: must be positive", c.MirrorDebounce))
	}
	if c.MirrorMaxRetries < 0 {
		problems = append(problems, fmt.Sprintf("invalid mirror max retries %d: must not be negative", c.MirrorMaxRetries))
	}
	if c.SummaryCacheSize < 1 {
		problems = append(problems, fmt.Sprintf("invalid summary cache size %d: must be at least 1", c.SummaryCacheSize))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// ValidateWorker adds the checks budget-worker needs on top of Validate. The
// worker reads tables a separate server process writes, so the
// process-local memory backend cannot serve it.
func (c *Config) ValidateWorker() error {
	var problems []string
	if c.AMQPURL == "" {
		problems = append(problems, "AMQP URL is required for the worker")
	}
	if c.Exporter == "none" {
		problems = append(problems, "no exporter configured: set EXPORTER to csvdir or google")
	}
	if c.DataBackend == "memory" {
		problems = append(problems, "the memory backend is private to one process: use csv or sqlite for the worker")
	}
	if len(problems) > 0 {
		return fmt.Errorf("worker configuration invalid:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

func (c *Config) validateGoogle() []string {
	var problems []string
	if c.GoogleSpreadsheetID == "" {
		problems = append(problems, "Google Spreadsheet ID is required for the google exporter")
	}

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); errors.Is(err, os.ErrNotExist) {
			problems = append(problems, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
		return problems
	}

	hasClientFile := c.GoogleOAuthClientFile != ""
	hasTokenFile := c.GoogleOAuthTokenFile != ""
	if !hasClientFile && c.GoogleOAuthClientJSON == "" {
		problems = append(problems, "either GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON must be provided for the google exporter")
	}
	if !hasTokenFile && c.GoogleOAuthTokenJSON == "" {
		problems = append(problems, "either GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_OAUTH_TOKEN_JSON must be provided for the google exporter")
	}
	if hasClientFile {
		if _, err := os.Stat(c.GoogleOAuthClientFile); errors.Is(err, os.ErrNotExist) {
			problems = append(problems, fmt.Sprintf("Google OAuth client file does not exist: %s", c.GoogleOAuthClientFile))
		}
	}
	if hasTokenFile {
		if _, err := os.Stat(c.GoogleOAuthTokenFile); errors.Is(err, os.ErrNotExist) {
			problems = append(problems, fmt.Sprintf("Google OAuth token file does not exist: %s", c.GoogleOAuthTokenFile))
		}
	}
	return problems
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping blank entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
