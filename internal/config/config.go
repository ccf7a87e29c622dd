// This file defines the configuration structure for the application.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port     int `mapstructure:"port"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
	Anilist  ProviderConfig `mapstructure:"anilist"`
	Mangadex ProviderConfig `mapstructure:"mangadex"`
	Library  LibraryConfig  `mapstructure:"library"`
	Sync     struct {
		WatchDir string `mapstructure:"watch_dir"`
	} `mapstructure:"sync"`
	Backup BackupConfig `mapstructure:"backup"`
	NATS   struct {
		URL           string `mapstructure:"url"`
		SubjectPrefix string `mapstructure:"subject_prefix"`
	} `mapstructure:"nats"`
	API struct {
		TokenHash string `mapstructure:"token_hash"`
	} `mapstructure:"api"`
	Scraper struct {
		MaxPages int            `mapstructure:"max_pages"`
		Sources  []SourceConfig `mapstructure:"sources"`
	} `mapstructure:"scraper"`
}

// ProviderConfig configures one metadata provider client.
type ProviderConfig struct {
	URL         string        `mapstructure:"url"`
	CoverURL    string        `mapstructure:"cover_url"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// LibraryConfig tunes the reconciliation engine.
type LibraryConfig struct {
	SweepInterval     int           `mapstructure:"sweep_interval"` // minutes, 0 disables
	SweepBatchSize    int           `mapstructure:"sweep_batch_size"`
	SweepDelay        time.Duration `mapstructure:"sweep_delay"`
	RetryWindow       time.Duration `mapstructure:"retry_window"`
	NotFoundCooldown  time.Duration `mapstructure:"not_found_cooldown"`
	SmartAutoComplete bool          `mapstructure:"smart_auto_complete"`
}

// BackupConfig points at the blob store used for cloud snapshots.
type BackupConfig struct {
	Bucket   string `mapstructure:"bucket"`
	Key      string `mapstructure:"key"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
	Dir      string `mapstructure:"dir"`      // local folder target, used when no bucket is set
	Interval int    `mapstructure:"interval"` // minutes between scheduled syncs, 0 disables
}

// SourceConfig describes an HTML bookmark page that can be scraped. Exactly
// one of the CSS or XPath selector sets is used, chosen by SelectorType.
type SourceConfig struct {
	Name          string `mapstructure:"name"`
	URL           string `mapstructure:"url"` // contains "{page}"
	SelectorType  string `mapstructure:"selector_type"`
	ItemSelector  string `mapstructure:"item_selector"`
	TitleSelector string `mapstructure:"title_selector"`
	StatusValue   string `mapstructure:"status"` // fixed status for every item on the page
	StatusSelect  string `mapstructure:"status_selector"`
	Cookie        string `mapstructure:"cookie"` // "name=value; other=value" sent with every page request
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom is Load with an explicit directory to search for config.yml and .env.
func LoadFrom(dir string) (*Config, error) {
	// A .env file is optional; its values are picked up by AutomaticEnv below.
	if err := godotenv.Load(dir + "/.env"); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to read .env")
	}

	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")
	v.AddConfigPath(dir)

	// MANGO_DATABASE_PATH overrides `database.path`, and so on.
	v.SetEnvPrefix("MANGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "failed to read config.yml")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("database.path", "./mango-tracker.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", true)

	v.SetDefault("anilist.url", "https://graphql.anilist.co")
	v.SetDefault("anilist.min_interval", "700ms")
	v.SetDefault("anilist.max_retries", 3)
	v.SetDefault("anilist.backoff_base", "2s")
	v.SetDefault("anilist.timeout", "20s")

	v.SetDefault("mangadex.url", "https://api.mangadex.org")
	v.SetDefault("mangadex.cover_url", "https://uploads.mangadex.org")
	v.SetDefault("mangadex.min_interval", "250ms")
	v.SetDefault("mangadex.max_retries", 2)
	v.SetDefault("mangadex.backoff_base", "1s")
	v.SetDefault("mangadex.timeout", "20s")
	v.SetDefault("mangadex.cache_ttl", "168h")

	v.SetDefault("library.sweep_interval", 60)
	v.SetDefault("library.sweep_batch_size", 5)
	v.SetDefault("library.sweep_delay", "500ms")
	v.SetDefault("library.retry_window", "24h")
	v.SetDefault("library.not_found_cooldown", "168h")
	v.SetDefault("library.smart_auto_complete", false)

	v.SetDefault("sync.watch_dir", "")
	v.SetDefault("backup.bucket", "")
	v.SetDefault("backup.key", "mango-tracker/backup.json.gz")
	v.SetDefault("backup.region", "us-east-1")
	v.SetDefault("backup.endpoint", "")
	v.SetDefault("backup.dir", "")
	v.SetDefault("backup.interval", 0)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "mango")
	v.SetDefault("api.token_hash", "")
	v.SetDefault("scraper.max_pages", 200)
}
