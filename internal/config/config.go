package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv
const EnvPrefix = "QUIETLINK"

// Environment variables honoured for deployments that predate the prefix.
// The first non-empty Redis URL wins.
var legacyRedisVars = []string{"UPSTASH_REDIS_URL", "UPSTASH_REDIS_CONNECTION_URL", "REDIS_URL"}

const legacyPortVar = "PORT"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	HTTP        *HTTPConfig        `json:"http" validate:"required"`
	WebSocket   *WebSocketConfig   `json:"websocket" validate:"required"`
	Store       *StoreConfig       `json:"store" validate:"required"`
	Bus         *BusConfig         `json:"bus" validate:"required"`
	Matchmaking *MatchmakingConfig `json:"matchmaking" validate:"required"`
	Database    *DatabaseConfig    `json:"database" validate:"required"`
	Log         *LogConfig         `json:"log" validate:"required"`
}

// FUNCTIONAL DISCOVERY: HTTP configuration balances performance and reliability
type HTTPConfig struct {
	Host            string        `json:"host" validate:"required"`
	Port            int           `json:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `json:"read_timeout" split_words:"true" validate:"gt=0"`
	WriteTimeout    time.Duration `json:"write_timeout" split_words:"true" validate:"gt=0"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" split_words:"true" validate:"gt=0"`
}

// WebSocketConfig tunes the socket heartbeat and inbound limits
type WebSocketConfig struct {
	PingInterval    time.Duration `json:"ping_interval" split_words:"true" validate:"gt=0"`
	ReadTimeout     time.Duration `json:"read_timeout" split_words:"true" validate:"gt=0"`
	WriteTimeout    time.Duration `json:"write_timeout" split_words:"true" validate:"gt=0"`
	MaxMessageSize  int64         `json:"max_message_size" split_words:"true" validate:"gt=0"`
	AllowedOrigins  []string      `json:"allowed_origins" split_words:"true"`
	EventsPerMinute int           `json:"events_per_minute" split_words:"true" validate:"min=0"`
}

// StoreConfig selects the shared state backend; an empty RedisURL means memory
type StoreConfig struct {
	RedisURL    string        `json:"redis_url" envconfig:"REDIS_URL" validate:"omitempty,url"`
	Prefix      string        `json:"prefix"`
	MaxRetries  int           `json:"max_retries" split_words:"true" validate:"min=0"`
	DialTimeout time.Duration `json:"dial_timeout" split_words:"true" validate:"gt=0"`
}

// BusConfig selects how deliveries reach other instances
type BusConfig struct {
	Driver  string `json:"driver" validate:"oneof=auto local redis nats"`
	Channel string `json:"channel" validate:"required"`
	NATSURL string `json:"nats_url" envconfig:"NATS_URL" validate:"required_if=Driver nats"`
}

// MatchmakingConfig names the shared sets and pairing tunables
type MatchmakingConfig struct {
	WaitingSet     string        `json:"waiting_set" split_words:"true" validate:"required"`
	ChattingSet    string        `json:"chatting_set" split_words:"true" validate:"required,nefield=WaitingSet"`
	OnlineSet      string        `json:"online_set" split_words:"true" validate:"required,nefield=WaitingSet,nefield=ChattingSet"`
	MaxPopAttempts int           `json:"max_pop_attempts" split_words:"true" validate:"min=1,max=100"`
	PresenceDelay  time.Duration `json:"presence_delay" split_words:"true" validate:"gt=0"`
}

// DatabaseConfig configures the room ledger
type DatabaseConfig struct {
	Enabled bool          `json:"enabled"`
	Path    string        `json:"path" validate:"required_if=Enabled true"`
	Timeout time.Duration `json:"timeout" validate:"gt=0"`
}

// LogConfig selects the log level and colored output
type LogConfig struct {
	Level string `json:"level" validate:"oneof=debug info warn warning error"`
	Color bool   `json:"color"`
}

// FUNCTIONAL DISCOVERY: Production-ready defaults run a single instance on
// the in-memory store with the ledger enabled
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:    30 * time.Second,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    5 * time.Second,
			MaxMessageSize:  128 * 1024,
			EventsPerMinute: 600,
		},
		Store: &StoreConfig{
			MaxRetries:  3,
			DialTimeout: 5 * time.Second,
		},
		Bus: &BusConfig{
			Driver:  "auto",
			Channel: "quietlink.deliveries",
		},
		Matchmaking: &MatchmakingConfig{
			WaitingSet:     "waiting_users",
			ChattingSet:    "chatting_users",
			OnlineSet:      "online_users",
			MaxPopAttempts: 6,
			PresenceDelay:  100 * time.Millisecond,
		},
		Database: &DatabaseConfig{
			Enabled: true,
			Path:    "./data/quietlink.db",
			Timeout: 30 * time.Second,
		},
		Log: &LogConfig{
			Level: "info",
			Color: true,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section with struct tags
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "required" && fe.Kind().String() == "ptr" {
				return fmt.Errorf("%w: %s", ErrMissingField, strings.ToLower(fe.Field()))
			}
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LoadFromEnv overlays QUIETLINK_* variables and the legacy variables on the defaults
// FUNCTIONAL DISCOVERY: envconfig leaves fields untouched when their variable
// is unset, so defaults survive partial environments
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(config *Config) error {
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if _, ok := os.LookupEnv(EnvPrefix + "_STORE_REDIS_URL"); !ok {
		for _, name := range legacyRedisVars {
			if v := os.Getenv(name); v != "" {
				config.Store.RedisURL = v
				break
			}
		}
	}

	if _, ok := os.LookupEnv(EnvPrefix + "_HTTP_PORT"); !ok {
		if v := os.Getenv(legacyPortVar); v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not a port", ErrInvalidConfig, legacyPortVar, v)
			}
			config.HTTP.Port = port
		}
	}
	return nil
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	HTTP *struct {
		Host            string `json:"host"`
		Port            int    `json:"port"`
		ReadTimeout     string `json:"read_timeout"`
		WriteTimeout    string `json:"write_timeout"`
		ShutdownTimeout string `json:"shutdown_timeout"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval    string   `json:"ping_interval"`
		ReadTimeout     string   `json:"read_timeout"`
		WriteTimeout    string   `json:"write_timeout"`
		MaxMessageSize  int64    `json:"max_message_size"`
		AllowedOrigins  []string `json:"allowed_origins"`
		EventsPerMinute *int     `json:"events_per_minute"`
	} `json:"websocket"`
	Store *struct {
		RedisURL    string `json:"redis_url"`
		Prefix      string `json:"prefix"`
		MaxRetries  *int   `json:"max_retries"`
		DialTimeout string `json:"dial_timeout"`
	} `json:"store"`
	Bus *struct {
		Driver  string `json:"driver"`
		Channel string `json:"channel"`
		NATSURL string `json:"nats_url"`
	} `json:"bus"`
	Matchmaking *struct {
		WaitingSet     string `json:"waiting_set"`
		ChattingSet    string `json:"chatting_set"`
		OnlineSet      string `json:"online_set"`
		MaxPopAttempts int    `json:"max_pop_attempts"`
		PresenceDelay  string `json:"presence_delay"`
	} `json:"matchmaking"`
	Database *struct {
		Enabled *bool  `json:"enabled"`
		Path    string `json:"path"`
		Timeout string `json:"timeout"`
	} `json:"database"`
	Log *struct {
		Level string `json:"level"`
		Color *bool  `json:"color"`
	} `json:"log"`
}

// LoadFromFile reads a JSON config file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	d := durations{}

	if f := file.HTTP; f != nil {
		setString(&config.HTTP.Host, f.Host)
		setInt(&config.HTTP.Port, f.Port)
		d.set(&config.HTTP.ReadTimeout, "http.read_timeout", f.ReadTimeout)
		d.set(&config.HTTP.WriteTimeout, "http.write_timeout", f.WriteTimeout)
		d.set(&config.HTTP.ShutdownTimeout, "http.shutdown_timeout", f.ShutdownTimeout)
	}
	if f := file.WebSocket; f != nil {
		d.set(&config.WebSocket.PingInterval, "websocket.ping_interval", f.PingInterval)
		d.set(&config.WebSocket.ReadTimeout, "websocket.read_timeout", f.ReadTimeout)
		d.set(&config.WebSocket.WriteTimeout, "websocket.write_timeout", f.WriteTimeout)
		if f.MaxMessageSize > 0 {
			config.WebSocket.MaxMessageSize = f.MaxMessageSize
		}
		if f.AllowedOrigins != nil {
			config.WebSocket.AllowedOrigins = f.AllowedOrigins
		}
		if f.EventsPerMinute != nil {
			config.WebSocket.EventsPerMinute = *f.EventsPerMinute
		}
	}
	if f := file.Store; f != nil {
		setString(&config.Store.RedisURL, f.RedisURL)
		setString(&config.Store.Prefix, f.Prefix)
		if f.MaxRetries != nil {
			config.Store.MaxRetries = *f.MaxRetries
		}
		d.set(&config.Store.DialTimeout, "store.dial_timeout", f.DialTimeout)
	}
	if f := file.Bus; f != nil {
		setString(&config.Bus.Driver, f.Driver)
		setString(&config.Bus.Channel, f.Channel)
		setString(&config.Bus.NATSURL, f.NATSURL)
	}
	if f := file.Matchmaking; f != nil {
		setString(&config.Matchmaking.WaitingSet, f.WaitingSet)
		setString(&config.Matchmaking.ChattingSet, f.ChattingSet)
		setString(&config.Matchmaking.OnlineSet, f.OnlineSet)
		setInt(&config.Matchmaking.MaxPopAttempts, f.MaxPopAttempts)
		d.set(&config.Matchmaking.PresenceDelay, "matchmaking.presence_delay", f.PresenceDelay)
	}
	if f := file.Database; f != nil {
		if f.Enabled != nil {
			config.Database.Enabled = *f.Enabled
		}
		setString(&config.Database.Path, f.Path)
		d.set(&config.Database.Timeout, "database.timeout", f.Timeout)
	}
	if f := file.Log; f != nil {
		setString(&config.Log.Level, f.Level)
		if f.Color != nil {
			config.Log.Color = *f.Color
		}
	}

	if d.err != nil {
		return fmt.Errorf("config file %s: %w", path, d.err)
	}
	return nil
}

// LoadConfigWithPrecedence layers defaults, then the file, then the environment
// FUNCTIONAL DISCOVERY: Environment wins over the file so containers can
// override a baked-in config without rebuilding it
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		if err := applyFile(config, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Addr returns the HTTP listen address
func (c *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type durations struct {
	err error
}

func (d *durations) set(dst *time.Duration, name, value string) {
	if value == "" || d.err != nil {
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		d.err = fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
		return
	}
	*dst = parsed
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setInt(dst *int, value int) {
	if value > 0 {
		*dst = value
	}
}
