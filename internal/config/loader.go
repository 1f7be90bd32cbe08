package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override. A double underscore
	// separates nesting levels: REMINDERS_STORE__DRIVER sets store.driver.
	EnvPrefix = "REMINDERS_"
	// ConfigFileEnv names the optional YAML file to load.
	ConfigFileEnv = "REMINDERS_CONFIG"
)

// Config captures the settings of the reminder service.
type Config struct {
	HTTP      HTTPConfig
	Log       LogConfig
	Store     StoreConfig
	Delivery  DeliveryConfig
	Reminders RemindersConfig
}

type HTTPConfig struct {
	Port           int
	AdminTokenHash string
}

type LogConfig struct {
	Level  string
	Format string
}

type StoreConfig struct {
	Driver        string
	SQLiteDSN     string
	MongoURI      string
	MongoDatabase string
	PostgresDSN   string
}

type DeliveryConfig struct {
	Sink           string
	KafkaBrokers   []string
	KafkaTopic     string
	LocalAlerts    bool
	AlertDedupeTTL time.Duration
}

type RemindersConfig struct {
	SweepInterval    time.Duration
	CleanupInterval  time.Duration
	Retention        time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	SweepConcurrency int
	Timezone         string
}

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Delivery sinks.
const (
	SinkStore = "store"
	SinkKafka = "kafka"
)

func defaults() map[string]any {
	return map[string]any{
		"http.port":                   8080,
		"http.admin_token_hash":       "",
		"log.level":                   "info",
		"log.format":                  "json",
		"store.driver":                DriverSQLite,
		"store.sqlite_dsn":            "file:reminders.db",
		"store.mongo_uri":             "mongodb://localhost:27017",
		"store.mongo_database":        "club_portal",
		"store.postgres_dsn":          "",
		"delivery.sink":               SinkStore,
		"delivery.kafka_brokers":      []string{"localhost:9092"},
		"delivery.kafka_topic":        "club.notifications",
		"delivery.local_alerts":       false,
		"delivery.alert_dedupe_ttl":   "1h",
		"reminders.sweep_interval":    "15m",
		"reminders.cleanup_interval":  "24h",
		"reminders.retention":         "168h",
		"reminders.max_retries":       3,
		"reminders.retry_backoff":     "30m",
		"reminders.sweep_concurrency": 4,
		"reminders.timezone":          "UTC",
	}
}

// Load reads configuration from defaults, the YAML file named by
// REMINDERS_CONFIG when it exists, and REMINDERS_ environment variables,
// in increasing order of precedence.
func Load() (Config, error) {
	return LoadFile(os.Getenv(ConfigFileEnv))
}

// LoadFile is Load with an explicit YAML path. An empty path or a missing
// file is skipped.
func LoadFile(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path = strings.TrimSpace(path); path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("failed to load config file: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load env vars: %w", err)
	}

	return parse(k)
}

// envKey maps REMINDERS_DELIVERY__KAFKA_TOPIC to delivery.kafka_topic.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	if !strings.Contains(s, "__") {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

type reader struct {
	k       *koanf.Koanf
	invalid []string
}

func (r *reader) string(key string) string {
	v := r.k.Get(key)
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func (r *reader) int(key string, min int) int {
	n, err := strconv.Atoi(r.string(key))
	if err != nil || n < min {
		r.invalid = append(r.invalid, key)
		return 0
	}
	return n
}

func (r *reader) bool(key string) bool {
	b, err := strconv.ParseBool(r.string(key))
	if err != nil {
		r.invalid = append(r.invalid, key)
		return false
	}
	return b
}

func (r *reader) duration(key string, allowZero bool) time.Duration {
	d, err := time.ParseDuration(r.string(key))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		r.invalid = append(r.invalid, key)
		return 0
	}
	return d
}

func (r *reader) oneOf(key string, allowed ...string) string {
	v := strings.ToLower(r.string(key))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	r.invalid = append(r.invalid, key)
	return v
}

func (r *reader) list(key string) []string {
	var raw []string
	switch v := r.k.Get(key).(type) {
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			raw = append(raw, fmt.Sprint(item))
		}
	case string:
		raw = strings.Split(v, ",")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parse(k *koanf.Koanf) (Config, error) {
	r := &reader{k: k}
	var missing []string

	cfg := Config{
		HTTP: HTTPConfig{
			Port:           r.int("http.port", 1),
			AdminTokenHash: r.string("http.admin_token_hash"),
		},
		Log: LogConfig{
			Level:  r.oneOf("log.level", "debug", "info", "warn", "error"),
			Format: r.oneOf("log.format", "json", "text"),
		},
		Store: StoreConfig{
			Driver:        r.oneOf("store.driver", DriverMemory, DriverSQLite, DriverMongo, DriverPostgres),
			SQLiteDSN:     r.string("store.sqlite_dsn"),
			MongoURI:      r.string("store.mongo_uri"),
			MongoDatabase: r.string("store.mongo_database"),
			PostgresDSN:   r.string("store.postgres_dsn"),
		},
		Delivery: DeliveryConfig{
			Sink:           r.oneOf("delivery.sink", SinkStore, SinkKafka),
			KafkaBrokers:   r.list("delivery.kafka_brokers"),
			KafkaTopic:     r.string("delivery.kafka_topic"),
			LocalAlerts:    r.bool("delivery.local_alerts"),
			AlertDedupeTTL: r.duration("delivery.alert_dedupe_ttl", false),
		},
		Reminders: RemindersConfig{
			SweepInterval:    r.duration("reminders.sweep_interval", false),
			CleanupInterval:  r.duration("reminders.cleanup_interval", false),
			Retention:        r.duration("reminders.retention", true),
			MaxRetries:       r.int("reminders.max_retries", 1),
			RetryBackoff:     r.duration("reminders.retry_backoff", false),
			SweepConcurrency: r.int("reminders.sweep_concurrency", 1),
			Timezone:         r.string("reminders.timezone"),
		},
	}

	if _, err := time.LoadLocation(cfg.Reminders.Timezone); err != nil {
		r.invalid = append(r.invalid, "reminders.timezone")
	}

	switch cfg.Store.Driver {
	case DriverSQLite:
		if cfg.Store.SQLiteDSN == "" {
			missing = append(missing, "store.sqlite_dsn")
		}
	case DriverMongo:
		if cfg.Store.MongoURI == "" {
			missing = append(missing, "store.mongo_uri")
		}
		if cfg.Store.MongoDatabase == "" {
			missing = append(missing, "store.mongo_database")
		}
	case DriverPostgres:
		if cfg.Store.PostgresDSN == "" {
			missing = append(missing, "store.postgres_dsn")
		}
	}
	if cfg.Delivery.Sink == SinkKafka {
		if len(cfg.Delivery.KafkaBrokers) == 0 {
			missing = append(missing, "delivery.kafka_brokers")
		}
		if cfg.Delivery.KafkaTopic == "" {
			missing = append(missing, "delivery.kafka_topic")
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if len(r.invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configuration values: %s", strings.Join(r.invalid, ", "))
	}
	return cfg, nil
}

// Location returns the zone for calendar due dates.
func (c RemindersConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
