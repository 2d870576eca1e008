package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override values read from the TOML file.
const (
	EnvAPIBaseURL   = "BPMX_API_BASE_URL"
	EnvTokenPath    = "BPMX_TOKEN_PATH"
	EnvCacheDir     = "BPMX_CACHE_DIR"
	EnvDatabasePath = "BPMX_DATABASE_PATH"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	API      APIConfig      `toml:"api"`
	Auth     AuthConfig     `toml:"auth"`
	Jobs     JobsConfig     `toml:"jobs"`
	Storage  StorageConfig  `toml:"storage"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
}

// APIConfig points the client at the backend.
type APIConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
}

// AuthConfig locates the persisted bearer token.
type AuthConfig struct {
	TokenPath string `toml:"token_path"`
}

// JobsConfig controls polling and bulk analysis.
type JobsConfig struct {
	PollInterval    Duration `toml:"poll_interval"`
	AnalysisTimeout Duration `toml:"analysis_timeout"`
	RenderTimeout   Duration `toml:"render_timeout"`
	Workers         int      `toml:"workers"`
	RateLimit       float64  `toml:"rate_limit"`
}

// StorageConfig holds local directories for fetched render audio.
type StorageConfig struct {
	CacheDir string `toml:"cache_dir"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LogConfig controls the log level and the TUI log file.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Duration is a [time.Duration] written as a string ("2s", "1m30s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads a .env file from the working directory when present and overlays the BPMX_*
// variables onto c. Variables already set in the process environment win over the file.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	for env, dst := range map[string]*string{
		EnvAPIBaseURL:   &c.API.BaseURL,
		EnvTokenPath:    &c.Auth.TokenPath,
		EnvCacheDir:     &c.Storage.CacheDir,
		EnvDatabasePath: &c.Database.Path,
	} {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*dst = v
		}
	}
	return nil
}

// Validate checks the values the client cannot run without.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url is empty", ErrInvalidConfig)
	}
	if c.Jobs.PollInterval.Duration <= 0 {
		return fmt.Errorf("%w: jobs.poll_interval must be positive", ErrInvalidConfig)
	}
	if c.Jobs.AnalysisTimeout.Duration <= 0 || c.Jobs.RenderTimeout.Duration <= 0 {
		return fmt.Errorf("%w: job timeouts must be positive", ErrInvalidConfig)
	}
	return nil
}
