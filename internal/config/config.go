package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"
	DriverSQLite   = "sqlite"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Profile       Profile             `yaml:"-"`
	Service       ServiceConfig       `yaml:"service"`
	HTTP          HTTPConfig          `yaml:"http"`
	Database      DatabaseConfig      `yaml:"database"`
	ObjectStore   ObjectStoreConfig   `yaml:"object_store"`
	Prompt        PromptConfig        `yaml:"prompt"`
	AI            AIConfig            `yaml:"ai"`
	Speech        SpeechConfig        `yaml:"speech"`
	Chart         ChartConfig         `yaml:"chart"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServiceConfig struct {
	Name string `yaml:"name"`
}

type HTTPConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxUploadMB  int           `yaml:"max_upload_mb"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// Datasets maps DuckDB view names to parquet objects, e.g.
	// "orders=lake/orders/a.parquet|lake/orders/b.parquet,regions=lake/regions.parquet".
	Datasets string `yaml:"datasets"`
}

type ObjectStoreConfig struct {
	Endpoint         string `yaml:"endpoint"`
	Region           string `yaml:"region"`
	Bucket           string `yaml:"bucket"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	UseSSL           bool   `yaml:"use_ssl"`
	Prefix           string `yaml:"prefix"`
	AutoCreateBucket bool   `yaml:"auto_create_bucket"`
}

type PromptConfig struct {
	TemplatePath string `yaml:"template_path"`
}

type AIConfig struct {
	Provider       string        `yaml:"provider"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type SpeechConfig struct {
	Enabled         bool          `yaml:"enabled"`
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	DefaultLanguage string        `yaml:"default_language"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
	CaptureTimeout  time.Duration `yaml:"capture_timeout"`
	SampleRate      int           `yaml:"sample_rate"`
}

type ChartConfig struct {
	CategoryThreshold int  `yaml:"category_threshold"`
	PieOnEmpty        bool `yaml:"pie_on_empty"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

type ObservabilityConfig struct {
	LogLevel slog.Level `yaml:"-"`
	LogJSON  bool       `yaml:"log_json"`
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("SQLASSIST_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SQLASSIST_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if path, ok := lookup("SQLASSIST_CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		if err := applyFile(strings.TrimSpace(path), lookup, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyString(lookup, "SQLASSIST_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLASSIST_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLASSIST_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLASSIST_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLASSIST_HTTP_MAX_UPLOAD_MB", &cfg.HTTP.MaxUploadMB); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_DB_DRIVER", &cfg.Database.Driver); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_DB_DSN", &cfg.Database.DSN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLASSIST_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLASSIST_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLASSIST_DB_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLASSIST_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_DB_DATASETS", &cfg.Database.Datasets); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLASSIST_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLASSIST_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_PROMPT_TEMPLATE_PATH", &cfg.Prompt.TemplatePath); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_AI_PROVIDER", &cfg.AI.Provider); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_AI_BASE_URL", &cfg.AI.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_AI_API_KEY", &cfg.AI.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_AI_MODEL", &cfg.AI.Model); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "SQLASSIST_AI_TEMPERATURE", &cfg.AI.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLASSIST_AI_MAX_TOKENS", &cfg.AI.MaxTokens); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLASSIST_AI_TIMEOUT", &cfg.AI.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLASSIST_AI_MAX_ATTEMPTS", &cfg.AI.MaxAttempts); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLASSIST_AI_INITIAL_BACKOFF", &cfg.AI.InitialBackoff); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLASSIST_AI_MAX_BACKOFF", &cfg.AI.MaxBackoff); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLASSIST_SPEECH_ENABLED", &cfg.Speech.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_SPEECH_BASE_URL", &cfg.Speech.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_SPEECH_API_KEY", &cfg.Speech.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_SPEECH_MODEL", &cfg.Speech.Model); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_SPEECH_DEFAULT_LANGUAGE", &cfg.Speech.DefaultLanguage); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLASSIST_SPEECH_TIMEOUT", &cfg.Speech.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLASSIST_SPEECH_MAX_ATTEMPTS", &cfg.Speech.MaxAttempts); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLASSIST_SPEECH_CAPTURE_TIMEOUT", &cfg.Speech.CaptureTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLASSIST_SPEECH_SAMPLE_RATE", &cfg.Speech.SampleRate); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLASSIST_CHART_CATEGORY_THRESHOLD", &cfg.Chart.CategoryThreshold); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLASSIST_CHART_PIE_ON_EMPTY", &cfg.Chart.PieOnEmpty); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLASSIST_ARCHIVE_ENABLED", &cfg.Archive.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_ARCHIVE_PREFIX", &cfg.Archive.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLASSIST_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "SQLASSIST_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch cfg.Database.Driver {
	case DriverPostgres, DriverDuckDB, DriverSQLite:
	default:
		return fmt.Errorf("invalid database driver: %q", cfg.Database.Driver)
	}
	if cfg.Database.Datasets != "" && cfg.Database.Driver != DriverDuckDB {
		return fmt.Errorf("datasets require the %s driver", DriverDuckDB)
	}
	switch cfg.AI.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("invalid ai provider: %q", cfg.AI.Provider)
	}
	if cfg.AI.MaxAttempts < 1 {
		return fmt.Errorf("ai max attempts must be >= 1")
	}
	if cfg.Speech.MaxAttempts < 1 {
		return fmt.Errorf("speech max attempts must be >= 1")
	}
	if cfg.Chart.CategoryThreshold < 1 {
		return fmt.Errorf("chart category threshold must be >= 1")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "sqlassist-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxUploadMB:  16,
		},
		Database: DatabaseConfig{
			Driver:          DriverDuckDB,
			DSN:             "sqlassist.duckdb",
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "sqlassist",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		AI: AIConfig{
			Provider:       ProviderOpenAI,
			BaseURL:        "",
			Model:          "gpt-5",
			Temperature:    0.1,
			MaxTokens:      1024,
			Timeout:        30 * time.Second,
			MaxAttempts:    3,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
		Speech: SpeechConfig{
			Enabled:         false,
			BaseURL:         "https://api.openai.com/v1",
			Model:           "whisper-1",
			DefaultLanguage: "en-US",
			Timeout:         30 * time.Second,
			MaxAttempts:     3,
			CaptureTimeout:  6 * time.Second,
			SampleRate:      16000,
		},
		Chart: ChartConfig{
			CategoryThreshold: 10,
			PieOnEmpty:        false,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Prefix:  "interactions",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Database.DSN = ""
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level, err := parseLogLevel(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = level
	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", raw)
	}
}
