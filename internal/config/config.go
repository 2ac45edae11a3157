package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Ingest IngestConfig `yaml:"ingest" mapstructure:"ingest"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// IngestConfig describes the layout of registry exports.
type IngestConfig struct {
	Delimiter   string `yaml:"delimiter" mapstructure:"delimiter"`
	Quote       string `yaml:"quote" mapstructure:"quote"`
	LazyQuotes  bool   `yaml:"lazy_quotes" mapstructure:"lazy_quotes"` // tolerate stray quotes inside fields
	Encoding    string `yaml:"encoding" mapstructure:"encoding"`
	Sheet       string `yaml:"sheet" mapstructure:"sheet"` // xlsx worksheet; empty = first sheet
	PlateField  string `yaml:"plate_field" mapstructure:"plate_field"`
	YearField   string `yaml:"year_field" mapstructure:"year_field"`
	SkipInvalid bool   `yaml:"skip_invalid" mapstructure:"skip_invalid"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// DelimiterRune returns the configured delimiter as a rune.
func (c IngestConfig) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

// QuoteRune returns the configured quote character as a rune.
func (c IngestConfig) QuoteRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Quote)
	return r
}

// ServerConfig configures the query API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RateLimit      float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PLATES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "plates.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("ingest.delimiter", "|")
	v.SetDefault("ingest.quote", `"`)
	v.SetDefault("ingest.lazy_quotes", true)
	v.SetDefault("ingest.encoding", "windows-1252")
	v.SetDefault("ingest.sheet", "")
	v.SetDefault("ingest.plate_field", "mispar_rechev")
	v.SetDefault("ingest.year_field", "shnat_yitzur")
	v.SetDefault("ingest.skip_invalid", false)
	v.SetDefault("ingest.batch_size", 5000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 50)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Known modes are
// "ingest", "query" and "serve". All problems are reported together.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for sqlite")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	switch mode {
	case "ingest":
		if utf8.RuneCountInString(c.Ingest.Delimiter) != 1 {
			problems = append(problems, "ingest.delimiter must be a single character")
		}
		if utf8.RuneCountInString(c.Ingest.Quote) != 1 {
			problems = append(problems, "ingest.quote must be a single character")
		}
		if c.Ingest.Delimiter != "" && c.Ingest.Delimiter == c.Ingest.Quote {
			problems = append(problems, "ingest.delimiter and ingest.quote must differ")
		}
		if c.Ingest.PlateField == "" {
			problems = append(problems, "ingest.plate_field is required")
		}
		if c.Ingest.YearField == "" {
			problems = append(problems, "ingest.year_field is required")
		}
		if c.Ingest.BatchSize < 1 {
			problems = append(problems, "ingest.batch_size must be > 0")
		}
	case "query":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
		if c.Server.RateLimit <= 0 {
			problems = append(problems, "server.rate_limit must be > 0")
		}
		if c.Server.RateBurst < 1 {
			problems = append(problems, "server.rate_burst must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
