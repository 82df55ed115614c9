package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Scheduler SchedulerConfig
	Fetch     FetchConfig
	Delivery  DeliveryConfig
	Price     PriceConfig
	Telegram  TelegramConfig
	Workers   WorkersConfig
	DBPath    string
	// PostgresURL selects the Postgres store when set; SQLite otherwise.
	PostgresURL string
	LogLevel    string
	Sources     map[string]*SourceConfig
}

type SchedulerConfig struct {
	Interval    time.Duration
	WarmupDelay time.Duration
	Cron        string
}

type FetchConfig struct {
	Timeout time.Duration
	// SourceTimeout bounds one adapter's whole fetch, including the
	// rendered fallback with its scroll loop.
	SourceTimeout time.Duration
	MaxScrolls    int
	ScrollSettle  time.Duration
	MaxPerSource  int
}

type DeliveryConfig struct {
	MaxPerCycle int
	SendDelay   time.Duration
}

// PriceConfig externalizes the BYN/USD unit-correction thresholds; they are
// empirical for one currency pair and drift with exchange rates.
type PriceConfig struct {
	RatioThreshold   float64
	AbsThreshold     float64
	AbsSoloThreshold float64
}

type TelegramConfig struct {
	BotToken string
}

type WorkersConfig struct {
	HealthcheckInterval time.Duration
	// StaleAfter is how long a listing may go unchecked before the
	// healthcheck probes it again.
	StaleAfter           time.Duration
	HealthcheckBatchSize int
	PruneInterval        time.Duration
	// PruneRetention is how long inactive listings are kept before their
	// rows and delivery marks are removed.
	PruneRetention time.Duration
}

// SourceConfig describes one listing site. Loaded from config/sources/*.yaml.
type SourceConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	BaseURL   string `yaml:"base_url"`
	Transport string `yaml:"transport"` // "direct" or "rendered"
	// LinkPattern lets a new source run on the generic adapter before a
	// dedicated one exists: a regexp that listing hrefs must match.
	LinkPattern string `yaml:"link_pattern"`
	Enabled     bool   `yaml:"enabled"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Scheduler: SchedulerConfig{
			Interval:    getEnvDuration("CHECK_INTERVAL", 300*time.Second),
			WarmupDelay: getEnvDuration("WARMUP_DELAY", 10*time.Second),
			Cron:        os.Getenv("SCRAPE_CRON"),
		},
		Fetch: FetchConfig{
			Timeout:       getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
			SourceTimeout: getEnvDuration("SOURCE_TIMEOUT", 90*time.Second),
			MaxScrolls:    getEnvInt("MAX_SCROLLS", 10),
			ScrollSettle:  getEnvDuration("SCROLL_SETTLE", 2*time.Second),
			MaxPerSource:  getEnvInt("MAX_PER_SOURCE", 20),
		},
		Delivery: DeliveryConfig{
			MaxPerCycle: getEnvInt("MAX_PER_CYCLE", 15),
			SendDelay:   getEnvDuration("DELIVERY_DELAY", time.Second),
		},
		Price: PriceConfig{
			RatioThreshold:   getEnvFloat("PRICE_RATIO_THRESHOLD", 10),
			AbsThreshold:     getEnvFloat("PRICE_ABS_THRESHOLD", 10000),
			AbsSoloThreshold: getEnvFloat("PRICE_ABS_THRESHOLD_SOLO", 100000),
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		},
		Workers: WorkersConfig{
			HealthcheckInterval:  getEnvDuration("HEALTHCHECK_INTERVAL", time.Hour),
			StaleAfter:           getEnvDuration("HEALTHCHECK_STALE_AFTER", 24*time.Hour),
			HealthcheckBatchSize: getEnvInt("HEALTHCHECK_BATCH_SIZE", 20),
			PruneInterval:        getEnvDuration("PRUNE_INTERVAL", 6*time.Hour),
			PruneRetention:       getEnvDuration("PRUNE_RETENTION", 30*24*time.Hour),
		},
		DBPath:      getEnv("DB_PATH", "monitor.db"),
		PostgresURL: os.Getenv("DATABASE_URL"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Sources:     make(map[string]*SourceConfig),
	}

	if err := cfg.loadSourceConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EnabledSources returns the enabled source configs.
func (c *Config) EnabledSources() []*SourceConfig {
	var out []*SourceConfig
	for _, src := range c.Sources {
		if src.Enabled {
			out = append(out, src)
		}
	}
	return out
}

func (c *Config) loadSourceConfigs() error {
	configDir := getEnv("SOURCES_DIR", "config/sources")
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(configDir, entry.Name()))
		if err != nil {
			return err
		}

		var src SourceConfig
		if err := yaml.Unmarshal(data, &src); err != nil {
			return err
		}

		c.Sources[src.ID] = &src
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvDuration accepts either a Go duration string ("5m") or a bare
// number of seconds, which is what older deployments used.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
