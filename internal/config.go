package internal

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/railmiles/internal/rtt"
	"github.com/starford/railmiles/internal/stations"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App            ApplicationConfig    `yaml:"app"`
	SQLite         SQLiteConfig         `yaml:"sqlite"`
	Auth           AuthConfig           `yaml:"auth"`
	RealTimeTrains RealTimeTrainsConfig `yaml:"realtimetrains"`
	Stations       StationsConfig       `yaml:"stations"`
	Cache          CacheConfig          `yaml:"cache"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.RealTimeTrains.Validate(); err != nil {
		return err
	}
	if err := c.Stations.Validate(); err != nil {
		return err
	}
	return c.Cache.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// Debug enables permissive CORS for a separately served frontend.
	Debug   bool       `yaml:"debug"`
	BaseURL string     `yaml:"base_url"`
	HTTP    HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, is.URL),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// RealTimeTrainsConfig holds credentials and endpoints for RealTimeTrains.
type RealTimeTrainsConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	APIURL   string `yaml:"api_url"`
	SiteURL  string `yaml:"site_url"`
	// Timeout bounds a single service search; detail page fetches get twice
	// as long.
	Timeout time.Duration `yaml:"timeout"`
	// Concurrency caps the journey submissions processed at once.
	Concurrency int64 `yaml:"concurrency"`
}

// Validate validates the RealTimeTrains configuration. Credentials are
// checked separately by RequireCredentials since only the HTTP server
// submits journeys.
func (c *RealTimeTrainsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIURL, validation.Required, is.URL),
		validation.Field(&c.SiteURL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Second)),
		validation.Field(&c.Concurrency, validation.Min(int64(1))),
	)
}

// RequireCredentials reports an error when the username or password is unset.
func (c *RealTimeTrainsConfig) RequireCredentials() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("realtimetrains: %w", err)
	}
	return nil
}

// StationsConfig points at an optional station dataset that overrides the
// embedded one and is reloaded when it changes.
type StationsConfig struct {
	Path        string `yaml:"path"`
	OverpassURL string `yaml:"overpass_url"`
}

// Validate validates the stations configuration.
func (c *StationsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.OverpassURL, validation.Required, is.URL),
	)
}

// CacheConfig configures the leg distance cache. An empty RedisURL selects
// the in-process cache.
type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Minute)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			BaseURL:  "http://localhost:8080",
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./railmiles.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		RealTimeTrains: RealTimeTrainsConfig{
			APIURL:      rtt.DefaultAPIURL,
			SiteURL:     rtt.DefaultSiteURL,
			Timeout:     5 * time.Second,
			Concurrency: 4,
		},
		Stations: StationsConfig{
			OverpassURL: stations.DefaultOverpassURL,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
	}
}
