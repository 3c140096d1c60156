package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/ntripbrowser/internal/render"
)

// Config holds the full application configuration.
type Config struct {
	Caster CasterConfig `yaml:"caster" mapstructure:"caster"`
	Scan   ScanConfig   `yaml:"scan" mapstructure:"scan"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// CasterConfig configures sourcetable retrieval.
type CasterConfig struct {
	Port         int    `yaml:"port" mapstructure:"port"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	NtripVersion string `yaml:"ntrip_version" mapstructure:"ntrip_version"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// ScanConfig configures multi-caster scans.
type ScanConfig struct {
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerHost float64 `yaml:"rate_per_host" mapstructure:"rate_per_host"`
}

// OutputConfig configures how tables are printed.
type OutputConfig struct {
	Format  string `yaml:"format" mapstructure:"format"`
	Pager   string `yaml:"pager" mapstructure:"pager"`
	NoPager bool   `yaml:"no_pager" mapstructure:"no_pager"`
}

// StoreConfig configures the snapshot database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	// BreakerThreshold is the number of consecutive failures after which a
	// caster is skipped for BreakerCooldownSecs. Zero disables breaking.
	BreakerThreshold    int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
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
	v.SetConfigName("ntripbrowser")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "ntripbrowser"))
	}

	// Environment
	v.SetEnvPrefix("NTRIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("caster.port", 2101)
	v.SetDefault("caster.timeout_secs", 10)
	v.SetDefault("caster.user_agent", "NTRIP ntripbrowser/1.0")
	v.SetDefault("caster.ntrip_version", "2.0")
	v.SetDefault("caster.max_body_bytes", 8<<20)
	v.SetDefault("scan.concurrency", 4)
	v.SetDefault("scan.rate_per_host", 2.0)
	v.SetDefault("output.format", string(render.FormatTable))
	v.SetDefault("output.pager", "")
	v.SetDefault("output.no_pager", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ntripbrowser.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.breaker_threshold", 5)
	v.SetDefault("server.breaker_cooldown_secs", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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

// Validate checks the settings a command depends on. mode is one of
// "browse", "scan", "history" or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	checkCaster := func() {
		if c.Caster.Port < 0 || c.Caster.Port > 65535 {
			errs = append(errs, "caster.port must be between 0 and 65535")
		}
		if c.Caster.TimeoutSecs <= 0 {
			errs = append(errs, "caster.timeout_secs must be > 0")
		}
		if c.Caster.NtripVersion != "1.0" && c.Caster.NtripVersion != "2.0" {
			errs = append(errs, "caster.ntrip_version must be 1.0 or 2.0")
		}
		if c.Caster.MaxBodyBytes <= 0 {
			errs = append(errs, "caster.max_body_bytes must be > 0")
		}
		if _, err := render.ParseFormat(c.Output.Format); err != nil {
			errs = append(errs, "output.format must be one of "+strings.Join(render.FormatNames(), ", "))
		}
	}
	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	switch mode {
	case "browse":
		checkCaster()
	case "scan":
		checkCaster()
		if c.Scan.Concurrency < 1 || c.Scan.Concurrency > 64 {
			errs = append(errs, "scan.concurrency must be between 1 and 64")
		}
		if c.Scan.RatePerHost < 0 {
			errs = append(errs, "scan.rate_per_host must be >= 0")
		}
	case "history":
		checkStore()
	case "serve":
		checkCaster()
		checkStore()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.BreakerThreshold < 0 {
			errs = append(errs, "server.breaker_threshold must be >= 0")
		}
		if c.Server.BreakerThreshold > 0 && c.Server.BreakerCooldownSecs <= 0 {
			errs = append(errs, "server.breaker_cooldown_secs must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
