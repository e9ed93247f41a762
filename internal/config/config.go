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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Inference  InferenceConfig  `yaml:"inference" mapstructure:"inference"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Mapping    MappingConfig    `yaml:"mapping" mapstructure:"mapping"`
	Dedup      DedupConfig      `yaml:"dedup" mapstructure:"dedup"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Confidence ConfidenceConfig `yaml:"confidence" mapstructure:"confidence"`
	Learn      LearnConfig      `yaml:"learn" mapstructure:"learn"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// InferenceConfig holds external inference service settings.
type InferenceConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// OCRConfig configures PDF/image text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"` // "local" or "inference"
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// MappingConfig configures the field mapping cascade.
type MappingConfig struct {
	AliasPath       string   `yaml:"alias_path" mapstructure:"alias_path"`
	FuzzyThreshold  float64  `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	ListDelimiters  []string `yaml:"list_delimiters" mapstructure:"list_delimiters"`
	DateFormats     []string `yaml:"date_formats" mapstructure:"date_formats"`
	EnableInference bool     `yaml:"enable_inference" mapstructure:"enable_inference"`
}

// DedupConfig configures duplicate detection and merging.
type DedupConfig struct {
	AutoMergeThreshold   float64 `yaml:"auto_merge_threshold" mapstructure:"auto_merge_threshold"`
	ArbitrationThreshold float64 `yaml:"arbitration_threshold" mapstructure:"arbitration_threshold"`
	MergeStrategy        string  `yaml:"merge_strategy" mapstructure:"merge_strategy"`
}

// SessionConfig configures the HITL review workflow.
type SessionConfig struct {
	BatchSize         int     `yaml:"batch_size" mapstructure:"batch_size"`
	SamplingThreshold int     `yaml:"sampling_threshold" mapstructure:"sampling_threshold"`
	SampleSize        int     `yaml:"sample_size" mapstructure:"sample_size"`
	TTLHours          int     `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	ReviewThreshold   float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
}

// ConfidenceConfig tunes progressive confidence adjustment.
type ConfidenceConfig struct {
	LearningRate float64 `yaml:"learning_rate" mapstructure:"learning_rate"`
	DecayRate    float64 `yaml:"decay_rate" mapstructure:"decay_rate"`
	Min          float64 `yaml:"min" mapstructure:"min"`
	Max          float64 `yaml:"max" mapstructure:"max"`
}

// LearnConfig configures template/pattern learning.
type LearnConfig struct {
	MatchThreshold    float64 `yaml:"match_threshold" mapstructure:"match_threshold"`
	MinPatternSupport int     `yaml:"min_pattern_support" mapstructure:"min_pattern_support"`
}

// PipelineConfig configures batch processing.
type PipelineConfig struct {
	MaxConcurrentDocs int `yaml:"max_concurrent_docs" mapstructure:"max_concurrent_docs"`
	SampleRows        int `yaml:"sample_rows" mapstructure:"sample_rows"`
	MaxPages          int `yaml:"max_pages" mapstructure:"max_pages"`
	RetryMaxAttempts  int `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryBackoffMs    int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RetryMaxBackoffMs int `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "catalog.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("inference.model", "claude-haiku-4-5-20251001")
	v.SetDefault("inference.timeout_secs", 20)
	v.SetDefault("inference.requests_per_sec", 5.0)
	v.SetDefault("inference.max_retries", 2)
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("mapping.fuzzy_threshold", 0.6)
	v.SetDefault("mapping.enable_inference", true)
	v.SetDefault("mapping.list_delimiters", []string{",", ";", "|", "/"})
	v.SetDefault("mapping.date_formats", []string{
		"2006-01-02", "02.01.2006", "01/02/2006", "2006-01-02T15:04:05Z07:00",
		"Jan 2, 2006", "2 Jan 2006",
	})
	v.SetDefault("dedup.auto_merge_threshold", 0.85)
	v.SetDefault("dedup.arbitration_threshold", 0.70)
	v.SetDefault("dedup.merge_strategy", "keep_most_complete")
	v.SetDefault("session.batch_size", 10)
	v.SetDefault("session.sampling_threshold", 50)
	v.SetDefault("session.sample_size", 20)
	v.SetDefault("session.ttl_hours", 72)
	v.SetDefault("session.review_threshold", 0.8)
	v.SetDefault("confidence.learning_rate", 0.05)
	v.SetDefault("confidence.decay_rate", 0.10)
	v.SetDefault("confidence.min", 0.1)
	v.SetDefault("confidence.max", 0.99)
	v.SetDefault("learn.match_threshold", 0.7)
	v.SetDefault("learn.min_pattern_support", 3)
	v.SetDefault("pipeline.max_concurrent_docs", 4)
	v.SetDefault("pipeline.sample_rows", 50)
	v.SetDefault("pipeline.max_pages", 50)
	v.SetDefault("pipeline.retry_max_attempts", 3)
	v.SetDefault("pipeline.retry_backoff_ms", 500)
	v.SetDefault("pipeline.retry_max_backoff_ms", 30000)

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
