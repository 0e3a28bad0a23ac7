// Package config resolves service configuration from defaults, an optional
// .env file, an optional YAML file and PROPERTYVET_* environment variables,
// in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PROPERTYVET_"

// Config is the full service configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Log       Log       `yaml:"log"`
	Screening Screening `yaml:"screening"`
	Providers Providers `yaml:"providers"`
	Publish   Publish   `yaml:"publish"`
	Redis     Redis     `yaml:"redis"`
	Postgres  Postgres  `yaml:"postgres"`
	Kafka     Kafka     `yaml:"kafka"`
	Tracing   Tracing   `yaml:"tracing"`
	Auth      Auth      `yaml:"auth"`
	Privacy   Privacy   `yaml:"privacy"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Screening holds the engine tunables. Nil Tiers and Weights select the
// engine's built-in tables.
type Screening struct {
	Tiers            map[string][]string      `yaml:"tiers"`
	Weights          Weights                  `yaml:"weights"`
	Thresholds       Thresholds               `yaml:"thresholds"`
	MinCoverage      float64                  `yaml:"min_coverage"`
	MaxConcurrent    int                      `yaml:"max_concurrent"`
	Retries          int                      `yaml:"retries"`
	ProviderTimeout  time.Duration            `yaml:"provider_timeout"`
	ProviderTimeouts map[string]time.Duration `yaml:"provider_timeouts"`
	RateLimits       map[string]int           `yaml:"rate_limits"`
	RequestTimeout   time.Duration            `yaml:"request_timeout"`
	Retention        time.Duration            `yaml:"retention"`
	SweepInterval    time.Duration            `yaml:"sweep_interval"`
}

type Weights struct {
	Global map[string]float64            `yaml:"global"`
	Tiers  map[string]map[string]float64 `yaml:"tiers"`
}

type Thresholds struct {
	Low    float64 `yaml:"low"`
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

// Providers selects the adapters registered at startup.
type Providers struct {
	Simulated bool           `yaml:"simulated"`
	HTTP      []HTTPProvider `yaml:"http"`
	OSINT     OSINT          `yaml:"osint"`
}

// HTTPProvider describes one signed JSON backend. A backend with the same id
// as a simulated provider replaces it.
type HTTPProvider struct {
	ID         string   `yaml:"id"`
	Endpoint   string   `yaml:"endpoint"`
	HealthURL  string   `yaml:"health_url"`
	APIKey     string   `yaml:"api_key"`
	Secret     string   `yaml:"secret"`
	Categories []string `yaml:"categories"`
	ScoreMin   float64  `yaml:"score_min"`
	ScoreMax   float64  `yaml:"score_max"`
}

type OSINT struct {
	SearchURL    string   `yaml:"search_url"`
	AdverseTerms []string `yaml:"adverse_terms"`
}

// Publish configures the downstream sinks. Empty values disable a sink.
type Publish struct {
	ReportDir   string        `yaml:"report_dir"`
	WebhookURL  string        `yaml:"webhook_url"`
	Buffer      int           `yaml:"buffer"`
	SinkTimeout time.Duration `yaml:"sink_timeout"`
}

type Redis struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type Postgres struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"`
}

type Kafka struct {
	Brokers           []string `yaml:"brokers"`
	Topic             string   `yaml:"topic"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replication_factor"`
}

type Tracing struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Auth guards the /v1 routes with HMAC-signed JWT bearer tokens.
type Auth struct {
	Enabled    bool   `yaml:"enabled"`
	SigningKey string `yaml:"signing_key"`
	Issuer     string `yaml:"issuer"`
}

type Privacy struct {
	PseudonymKey string `yaml:"pseudonym_key"`
}

// Default returns the built-in configuration. Rate limits follow the bureau
// per-minute quotas.
func Default() Config {
	return Config{
		Server: Server{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Log:    Log{Level: "info", Format: "text"},
		Screening: Screening{
			Thresholds:      Thresholds{Low: 750, Medium: 650, High: 550},
			MinCoverage:     0.5,
			MaxConcurrent:   10,
			Retries:         2,
			ProviderTimeout: 30 * time.Second,
			RateLimits: map[string]int{
				"credit":         60,
				"public_records": 100,
				"employment":     80,
				"identity":       80,
				"osint":          30,
			},
			RequestTimeout: 120 * time.Second,
			Retention:      90 * 24 * time.Hour,
			SweepInterval:  time.Hour,
		},
		Providers: Providers{Simulated: true},
		Publish:   Publish{Buffer: 256, SinkTimeout: 10 * time.Second},
		Redis: Redis{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: Postgres{MaxConns: 10, Migrate: true},
		Kafka:    Kafka{Topic: "screening.reports", Partitions: 3, ReplicationFactor: 1},
		Tracing:  Tracing{ServiceName: "propertyvet", SampleRatio: 1},
		Auth:     Auth{Issuer: "propertyvet"},
	}
}

// Load resolves configuration from the process environment, reading the YAML
// file named by PROPERTYVET_CONFIG when set.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	return LoadFile(os.Getenv(envPrefix + "CONFIG"))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := Parse(raw, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadDotEnv never overrides variables that are already set, so calling it
// twice is harmless.
func loadDotEnv() error {
	envFile := os.Getenv(envPrefix + "ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	return nil
}

// Parse merges a YAML document over cfg. Keys absent from the document keep
// their current values.
func Parse(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(envPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(envPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("ADDR", &cfg.Server.Addr)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	integer("MAX_CONCURRENT", &cfg.Screening.MaxConcurrent)
	integer("RETRIES", &cfg.Screening.Retries)
	float("MIN_COVERAGE", &cfg.Screening.MinCoverage)
	duration("PROVIDER_TIMEOUT", &cfg.Screening.ProviderTimeout)
	duration("REQUEST_TIMEOUT", &cfg.Screening.RequestTimeout)
	duration("RETENTION", &cfg.Screening.Retention)
	boolean("SIMULATED_PROVIDERS", &cfg.Providers.Simulated)
	str("OSINT_SEARCH_URL", &cfg.Providers.OSINT.SearchURL)

	str("REPORT_DIR", &cfg.Publish.ReportDir)
	str("WEBHOOK_URL", &cfg.Publish.WebhookURL)
	str("REDIS_URL", &cfg.Redis.URL)
	str("POSTGRES_URL", &cfg.Postgres.URL)
	boolean("POSTGRES_MIGRATE", &cfg.Postgres.Migrate)
	if v, ok := lookup(envPrefix + "KAFKA_BROKERS"); ok {
		cfg.Kafka.Brokers = splitList(v)
	}
	str("KAFKA_TOPIC", &cfg.Kafka.Topic)
	str("TRACING_ENDPOINT", &cfg.Tracing.Endpoint)
	boolean("TRACING_INSECURE", &cfg.Tracing.Insecure)
	boolean("AUTH_ENABLED", &cfg.Auth.Enabled)
	str("JWT_SIGNING_KEY", &cfg.Auth.SigningKey)
	str("PSEUDONYM_KEY", &cfg.Privacy.PseudonymKey)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks cross-field constraints. Every violation is reported.
func (c Config) Validate() error {
	var errs []error
	s := c.Screening
	t := s.Thresholds
	if !(t.Low > t.Medium && t.Medium > t.High && t.High >= 0) {
		errs = append(errs, fmt.Errorf("screening.thresholds must satisfy low > medium > high >= 0, got %v/%v/%v", t.Low, t.Medium, t.High))
	}
	if s.MinCoverage < 0 || s.MinCoverage > 1 {
		errs = append(errs, fmt.Errorf("screening.min_coverage must be within [0, 1], got %v", s.MinCoverage))
	}
	if s.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("screening.max_concurrent must be positive"))
	}
	if s.Retries < 0 {
		errs = append(errs, errors.New("screening.retries must not be negative"))
	}
	if s.ProviderTimeout <= 0 || s.RequestTimeout <= 0 {
		errs = append(errs, errors.New("screening timeouts must be positive"))
	}
	for id, d := range s.ProviderTimeouts {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("screening.provider_timeouts.%s must be positive", id))
		}
	}
	for tier, ids := range s.Tiers {
		if len(ids) == 0 {
			errs = append(errs, fmt.Errorf("screening.tiers.%s lists no providers", tier))
		}
	}
	errs = append(errs, validateWeights("screening.weights.global", s.Weights.Global)...)
	for tier, w := range s.Weights.Tiers {
		errs = append(errs, validateWeights("screening.weights.tiers."+tier, w)...)
	}
	if s.Retention <= 0 || s.SweepInterval <= 0 {
		errs = append(errs, errors.New("screening retention and sweep_interval must be positive"))
	}
	for i, p := range c.Providers.HTTP {
		if p.ID == "" || p.Endpoint == "" {
			errs = append(errs, fmt.Errorf("providers.http[%d] requires id and endpoint", i))
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Auth.Enabled && c.Auth.SigningKey == "" {
		errs = append(errs, errors.New("auth.signing_key is required when auth is enabled"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing.sample_ratio must be within [0, 1]"))
	}
	return errors.Join(errs...)
}

func validateWeights(path string, w map[string]float64) []error {
	var errs []error
	for id, v := range w {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s.%s must not be negative", path, id))
		}
	}
	return errs
}
