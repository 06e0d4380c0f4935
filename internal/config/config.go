package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	OwnerName     string          `yaml:"owner_name" mapstructure:"owner_name"`
	DefaultRegion string          `yaml:"default_region" mapstructure:"default_region"`
	Workspace     WorkspaceConfig `yaml:"workspace" mapstructure:"workspace"`
	Pipeline      PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Store         StoreConfig     `yaml:"store" mapstructure:"store"`
	Server        ServerConfig    `yaml:"server" mapstructure:"server"`
	Log           LogConfig       `yaml:"log" mapstructure:"log"`

	// LoadErr is set when a config file was found but could not be read.
	// Defaults are used in that case.
	LoadErr error `yaml:"-" mapstructure:"-"`
}

// WorkspaceConfig locates the folders the CLI and server work in.
type WorkspaceConfig struct {
	InputDir  string `yaml:"input_dir" mapstructure:"input_dir"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
	WorkDir   string `yaml:"work_dir" mapstructure:"work_dir"`
	VarDir    string `yaml:"var_dir" mapstructure:"var_dir"`
}

// PipelineConfig configures normalisation behavior.
type PipelineConfig struct {
	InferRegion    bool   `yaml:"infer_region" mapstructure:"infer_region"`
	KeepUnknown    bool   `yaml:"keep_unknown" mapstructure:"keep_unknown"`
	AutoCategories bool   `yaml:"auto_categories" mapstructure:"auto_categories"`
	CleanAddresses bool   `yaml:"clean_addresses" mapstructure:"clean_addresses"`
	VCardVersion   string `yaml:"vcard_version" mapstructure:"vcard_version"`
	RulesFile      string `yaml:"rules_file" mapstructure:"rules_file"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the review server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. A config file that
// exists but cannot be parsed is recorded in LoadErr and ignored.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("local")

	// Environment
	v.SetEnvPrefix("VCARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("owner_name", "Owner")
	v.SetDefault("default_region", "GB")
	v.SetDefault("workspace.input_dir", "cards-in")
	v.SetDefault("workspace.output_dir", "cards-out")
	v.SetDefault("workspace.work_dir", "cards-wip")
	v.SetDefault("workspace.var_dir", "var")
	v.SetDefault("pipeline.infer_region", true)
	v.SetDefault("pipeline.keep_unknown", false)
	v.SetDefault("pipeline.auto_categories", true)
	v.SetDefault("pipeline.clean_addresses", true)
	v.SetDefault("pipeline.vcard_version", "4.0")
	v.SetDefault("pipeline.rules_file", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "var/runs.db")
	v.SetDefault("server.port", 8421)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	var loadErr error
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			loadErr = eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		if loadErr == nil {
			return nil, eris.Wrap(err, "config: unmarshal")
		}
		// A half-read file can leave values viper cannot decode.
		cfg = Defaults()
	}
	cfg.LoadErr = loadErr

	return &cfg, nil
}

// Defaults returns the built-in configuration without consulting files or
// the environment.
func Defaults() Config {
	return Config{
		OwnerName:     "Owner",
		DefaultRegion: "GB",
		Workspace: WorkspaceConfig{
			InputDir:  "cards-in",
			OutputDir: "cards-out",
			WorkDir:   "cards-wip",
			VarDir:    "var",
		},
		Pipeline: PipelineConfig{
			InferRegion:    true,
			AutoCategories: true,
			CleanAddresses: true,
			VCardVersion:   "4.0",
		},
		Store:  StoreConfig{Driver: "sqlite", DatabaseURL: "var/runs.db"},
		Server: ServerConfig{Port: 8421, AllowedOrigins: []string{"*"}},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// Validate checks the settings a given command depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "merge", "ingest":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "runs":
		if c.Store.Driver == "none" {
			errs = append(errs, "store.driver is none; run history is disabled")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(c.DefaultRegion) != 2 {
		errs = append(errs, "default_region must be a 2-letter region code")
	}
	switch c.Pipeline.VCardVersion {
	case "3.0", "4.0":
	default:
		errs = append(errs, "pipeline.vcard_version must be 3.0 or 4.0")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		errs = append(errs, "store.driver must be sqlite, postgres or none")
	}
	if c.Store.Driver != "none" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
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
