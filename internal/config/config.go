// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	DB        DBConfig        `yaml:"db" mapstructure:"db"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Load      LoadConfig      `yaml:"load" mapstructure:"load"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DBConfig holds Postgres connection settings. Host/port/name/user/password
// map to the DB_HOST, DB_PORT, DB_NAME, DB_USER and DB_PASSWORD environment
// variables.
type DBConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Name     string `yaml:"name" mapstructure:"name"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	SSLMode  string `yaml:"sslmode" mapstructure:"sslmode"`
}

// DSN builds a pgx connection string from the individual settings.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// EmbeddingConfig configures the remote embedding service. An empty APIKey
// disables embedding generation entirely.
type EmbeddingConfig struct {
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Model       string  `yaml:"model" mapstructure:"model"`
	BatchSize   int     `yaml:"batch_size" mapstructure:"batch_size"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	MaxTextLen  int     `yaml:"max_text_len" mapstructure:"max_text_len"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Dimensions  int     `yaml:"dimensions" mapstructure:"dimensions"`
}

// Enabled reports whether embedding generation is configured.
func (c EmbeddingConfig) Enabled() bool {
	return c.APIKey != ""
}

// SourcesConfig lists the input spreadsheet paths per entity. Nomencladores
// and acuerdos accept multiple feeds; feeds are merged in listed order and
// duplicates resolved by the entity's keep policy.
type SourcesConfig struct {
	Prestadores   string   `yaml:"prestadores" mapstructure:"prestadores"`
	Nomencladores []string `yaml:"nomencladores" mapstructure:"nomencladores"`
	Acuerdos      []string `yaml:"acuerdos" mapstructure:"acuerdos"`
}

// LoadConfig tunes the ingestion pipeline.
type LoadConfig struct {
	WriteBatchSize int `yaml:"write_batch_size" mapstructure:"write_batch_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// Optional .env in the working directory, matching the deployed service.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MEDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The store and embedding credentials keep their historical unprefixed
	// names so existing deployments keep working.
	_ = v.BindEnv("db.host", "DB_HOST")
	_ = v.BindEnv("db.port", "DB_PORT")
	_ = v.BindEnv("db.name", "DB_NAME")
	_ = v.BindEnv("db.user", "DB_USER")
	_ = v.BindEnv("db.password", "DB_PASSWORD")
	_ = v.BindEnv("embedding.api_key", "EMBEDDING_API_KEY")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "medical_ocr")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 50)
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.max_text_len", 8000)
	v.SetDefault("embedding.rate_per_sec", 2.0)
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("sources.prestadores", "./data/PRESTADORES_PRINCIPALES.xlsx")
	v.SetDefault("sources.nomencladores", []string{"./data/NOMENCLADORES_GENERALES.xlsx"})
	v.SetDefault("sources.acuerdos", []string{"./data/ACUERDO_PRESTADORES.xlsx"})
	v.SetDefault("load.write_batch_size", 1000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks that the store credentials are present. Called before any
// load starts so a misconfigured run fails up front.
func (c *Config) Validate() error {
	if c.DB.User == "" || c.DB.Password == "" {
		return eris.New("config: store credentials missing (set DB_USER and DB_PASSWORD)")
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
