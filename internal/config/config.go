package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Channels ChannelsConfig `mapstructure:"channels"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	TMDB     TMDBConfig     `mapstructure:"tmdb"`
	Announce AnnounceConfig `mapstructure:"announce"`
	Backfill BackfillConfig `mapstructure:"backfill"`
	Features FeaturesConfig `mapstructure:"features"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ChannelsConfig maps source channel identities to catalog roles.
type ChannelsConfig struct {
	SinhalaSub  int64 `mapstructure:"sinhala_sub"`
	Games       int64 `mapstructure:"games"`
	MovieSeries int64 `mapstructure:"movie_series"`
	Update      int64 `mapstructure:"update"`
}

// GatewayConfig holds the content-source gateway configuration.
type GatewayConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TMDBConfig holds TMDB enrichment configuration.
type TMDBConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AnnounceConfig holds announcement posting configuration.
type AnnounceConfig struct {
	BotToken string        `mapstructure:"bot_token"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// BackfillConfig holds backfill coordinator tuning.
type BackfillConfig struct {
	ItemDelay        time.Duration `mapstructure:"item_delay"`
	ProgressInterval int           `mapstructure:"progress_interval"`
	ProposalTTL      time.Duration `mapstructure:"proposal_ttl"`
}

// FeaturesConfig holds initial values for runtime feature flags.
type FeaturesConfig struct {
	MaintenanceMode bool `mapstructure:"maintenance_mode"`
	AutoAnnounce    bool `mapstructure:"auto_announce"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.mediadex")
	}

	v.SetEnvPrefix("MEDIADEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.path", "./data/mediadex.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.compress", true)

	v.SetDefault("channels.sinhala_sub", 0)
	v.SetDefault("channels.games", 0)
	v.SetDefault("channels.movie_series", 0)
	v.SetDefault("channels.update", 0)

	v.SetDefault("gateway.base_url", "")
	v.SetDefault("gateway.token", "")
	v.SetDefault("gateway.timeout", 30*time.Second)

	v.SetDefault("tmdb.api_key", "")
	v.SetDefault("tmdb.base_url", "https://api.themoviedb.org/3")
	v.SetDefault("tmdb.timeout", 10*time.Second)

	v.SetDefault("announce.bot_token", "")
	v.SetDefault("announce.api_base", "https://api.telegram.org/bot")
	v.SetDefault("announce.timeout", 15*time.Second)

	v.SetDefault("backfill.item_delay", 100*time.Millisecond)
	v.SetDefault("backfill.progress_interval", 50)
	v.SetDefault("backfill.proposal_ttl", 10*time.Minute)

	v.SetDefault("features.maintenance_mode", false)
	v.SetDefault("features.auto_announce", true)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
