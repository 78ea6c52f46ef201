package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"livescore/internal/livescore/model"
)

const DefaultPath = "config/livescore.yaml"

// envRef matches ${NAME}. A bare $ is left alone so JS expressions and URLs survive.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

type ServerConfig struct {
	Addr  string `yaml:"addr"`
	PProf bool   `yaml:"pprof"`
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// WSOrigins are extra browser origins allowed to open /ws.
	WSOrigins []string `yaml:"ws_origins"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Encoding    string `yaml:"encoding"` // console|json
	Development bool   `yaml:"development"`
}

type MongoConfig struct {
	Host       string `yaml:"host"`
	DBName     string `yaml:"dbname"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	AuthSource string `yaml:"authSource"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BusConfig struct {
	Driver string `yaml:"driver"` // redis|memory
	Buffer int    `yaml:"buffer"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // mongo|memory
}

type BrowserConfig struct {
	ExecPath string        `yaml:"exec_path"`
	Headful  bool          `yaml:"headful"`
	Wait     time.Duration `yaml:"wait"`
	// Expression is evaluated in the rendered page and must return the JSON document as a string.
	Expression string `yaml:"expression"`
}

type FetcherConfig struct {
	Mode       string               `yaml:"mode"` // http|browser
	Timeout    time.Duration        `yaml:"timeout"`
	UserAgents []string             `yaml:"user_agents"`
	Snapshot   model.SourceEndpoint `yaml:"snapshot"`
	Events     model.SourceEndpoint `yaml:"events"`
	Upcoming   model.SourceEndpoint `yaml:"upcoming"`
	Browser    BrowserConfig        `yaml:"browser"`
}

type TaskConfig struct {
	Spec     string `yaml:"spec"`
	Disabled bool   `yaml:"disabled"`
}

type SchedulerConfig struct {
	Disabled     bool          `yaml:"disabled"`
	HardTimeout  time.Duration `yaml:"hard_timeout"`
	SoftTimeout  time.Duration `yaml:"soft_timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBase    time.Duration `yaml:"retry_base"`
	RefreshLimit int           `yaml:"refresh_limit"`
	DaysAhead    int           `yaml:"days_ahead"`

	LiveScores  TaskConfig `yaml:"live_scores"`
	MatchEvents TaskConfig `yaml:"match_events"`
	Fixtures    TaskConfig `yaml:"fixtures"`
}

type HubConfig struct {
	SendTimeout time.Duration `yaml:"send_timeout"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Redis     RedisConfig     `yaml:"redis"`
	Bus       BusConfig       `yaml:"bus"`
	Store     StoreConfig     `yaml:"store"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Hub       HubConfig       `yaml:"hub"`
}

// LoadConfig reads a YAML file, expanding ${VAR} references from the
// environment. A .env file next to the working directory is loaded first
// when present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML config data and fills in defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(expandEnv(data), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnv substitutes ${NAME} references with environment values.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Encoding == "" {
		cfg.Log.Encoding = "console"
	}
	if cfg.Mongo.DBName == "" {
		cfg.Mongo.DBName = "livescore"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Bus.Driver == "" {
		cfg.Bus.Driver = "redis"
	}
	if cfg.Bus.Buffer <= 0 {
		cfg.Bus.Buffer = 256
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "mongo"
	}

	f := &cfg.Fetcher
	if f.Mode == "" {
		f.Mode = "http"
	}
	if f.Timeout <= 0 {
		f.Timeout = 10 * time.Second
	}
	if f.Browser.Wait <= 0 {
		f.Browser.Wait = 2 * time.Second
	}
	if f.Browser.Expression == "" {
		f.Browser.Expression = "document.body.innerText"
	}
	for _, ep := range []*model.SourceEndpoint{&f.Snapshot, &f.Events, &f.Upcoming} {
		if ep.Method == "" {
			ep.Method = "GET"
		}
	}

	s := &cfg.Scheduler
	if s.HardTimeout <= 0 {
		s.HardTimeout = 300 * time.Second
	}
	if s.SoftTimeout <= 0 {
		s.SoftTimeout = 240 * time.Second
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 3
	}
	if s.RetryBase <= 0 {
		s.RetryBase = time.Second
	}
	if s.RefreshLimit <= 0 {
		s.RefreshLimit = 100
	}
	if s.DaysAhead <= 0 {
		s.DaysAhead = 7
	}
	if s.LiveScores.Spec == "" {
		s.LiveScores.Spec = "*/30 * * * * *"
	}
	if s.MatchEvents.Spec == "" {
		s.MatchEvents.Spec = "*/10 * * * * *"
	}
	if s.Fixtures.Spec == "" {
		s.Fixtures.Spec = "CRON_TZ=UTC 0 0 2 * * *"
	}

	if cfg.Hub.SendTimeout <= 0 {
		cfg.Hub.SendTimeout = 5 * time.Second
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "mongo":
		if c.Mongo.Host == "" {
			return errors.New("config: mongo.host is required when store.driver is mongo")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	switch c.Bus.Driver {
	case "redis", "memory":
	default:
		return fmt.Errorf("config: unknown bus.driver %q", c.Bus.Driver)
	}
	switch c.Fetcher.Mode {
	case "http", "browser":
	default:
		return fmt.Errorf("config: unknown fetcher.mode %q", c.Fetcher.Mode)
	}
	if c.Scheduler.SoftTimeout > c.Scheduler.HardTimeout {
		return errors.New("config: scheduler.soft_timeout must not exceed hard_timeout")
	}
	return nil
}
