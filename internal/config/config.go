// Package config loads and validates the engine's YAML configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Dedup         DedupConfig         `yaml:"dedup"`
	Quality       QualityConfig       `yaml:"quality"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Response      ResponseConfig      `yaml:"response"`
	Auth          AuthConfig          `yaml:"auth"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig configures the HTTP API surface.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// StorageConfig selects and configures the concrete store.
type StorageConfig struct {
	// Backend selects the store: "local", "cloud", or "hybrid".
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	Dimension int    `yaml:"dimension"`

	Cloud  CloudConfig  `yaml:"cloud"`
	Hybrid HybridConfig `yaml:"hybrid"`
}

// CloudConfig configures the cloud vector store transport.
type CloudConfig struct {
	BaseURL   string `yaml:"base_url"`
	Token     string `yaml:"token"`
	AccountID string `yaml:"account_id"`
	IndexID   string `yaml:"index_id"`
}

// HybridConfig configures the hybrid backend's sync behavior.
type HybridConfig struct {
	Sync SyncConfig `yaml:"sync"`
}

// SyncConfig controls the hybrid backend's sync worker and drift
// detection.
type SyncConfig struct {
	BatchSize              int           `yaml:"batch_size"`
	TombstoneRetentionDays int           `yaml:"tombstone_retention_days"`
	MaxAttempts            int           `yaml:"max_attempts"`
	Interval               time.Duration `yaml:"interval"`
	DriftInterval          time.Duration `yaml:"drift_interval"`
}

// DedupConfig controls duplicate detection beyond exact-hash matching.
type DedupConfig struct {
	Semantic SemanticDedupConfig `yaml:"semantic"`
}

// SemanticDedupConfig controls near-duplicate rejection on store.
// Enabled defaults to true; set it explicitly false to disable.
type SemanticDedupConfig struct {
	Enabled     *bool   `yaml:"enabled"`
	WindowHours int     `yaml:"window_hours"`
	Threshold   float32 `yaml:"threshold"`
}

// IsEnabled reports whether semantic dedup is active, honoring the
// true-by-default convention.
func (c SemanticDedupConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// QualityConfig controls the composite quality scorer.
type QualityConfig struct {
	Boost BoostConfig `yaml:"boost"`
}

// BoostConfig controls the model/implicit score blend.
type BoostConfig struct {
	Enabled bool    `yaml:"enabled"`
	Weight  float64 `yaml:"weight"`
}

// ConsolidationConfig controls the dream-inspired consolidation
// pipeline.
type ConsolidationConfig struct {
	Schedule               ConsolidationScheduleConfig `yaml:"schedule"`
	Forgetting             ForgettingConfig            `yaml:"forgetting"`
	ArchivePath            string                      `yaml:"archive_path"`
	ArchiveS3              ArchiveS3Config             `yaml:"archive_s3"`
	CreativeAssociationCap int                         `yaml:"creative_association_cap"`
	SimilarityFloor        float32                     `yaml:"similarity_floor"`
	SimilarityCeil         float32                     `yaml:"similarity_ceil"`
	DBSCANMinClusterSize   int                         `yaml:"dbscan_min_cluster_size"`
	DBSCANEpsilon          float32                     `yaml:"dbscan_epsilon"`
	CompressionMaxChars    int                         `yaml:"compression_max_chars"`
}

// ConsolidationScheduleConfig maps each horizon to a cron expression.
// An omitted horizon runs manually only.
type ConsolidationScheduleConfig struct {
	Daily     string `yaml:"daily"`
	Weekly    string `yaml:"weekly"`
	Monthly   string `yaml:"monthly"`
	Quarterly string `yaml:"quarterly"`
	Yearly    string `yaml:"yearly"`
}

// ForgettingConfig controls the controlled-forgetting stage's
// eligibility thresholds.
type ForgettingConfig struct {
	RelevanceThreshold  float64 `yaml:"relevance_threshold"`
	AccessThresholdDays int     `yaml:"access_threshold_days"`
}

// ArchiveS3Config optionally mirrors archived records to S3.
type ArchiveS3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "openai", "ollama", "hash"
	Model    string `yaml:"model"`
	Device   string `yaml:"device"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// ResponseConfig controls default response-size limiting.
type ResponseConfig struct {
	MaxChars int `yaml:"max_chars"`
}

// AuthConfig configures the HTTP API's bearer-token validation.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, expands, parses and validates the configuration file at
// path, applying defaults to anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config: expected a single YAML document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "cortex.db"
	}
	if cfg.Storage.Dimension == 0 {
		cfg.Storage.Dimension = 1536
	}
	if cfg.Storage.Hybrid.Sync.BatchSize == 0 {
		cfg.Storage.Hybrid.Sync.BatchSize = 50
	}
	if cfg.Storage.Hybrid.Sync.TombstoneRetentionDays == 0 {
		cfg.Storage.Hybrid.Sync.TombstoneRetentionDays = 30
	}
	if cfg.Storage.Hybrid.Sync.MaxAttempts == 0 {
		cfg.Storage.Hybrid.Sync.MaxAttempts = 8
	}
	if cfg.Storage.Hybrid.Sync.Interval == 0 {
		cfg.Storage.Hybrid.Sync.Interval = 5 * time.Second
	}
	if cfg.Storage.Hybrid.Sync.DriftInterval == 0 {
		cfg.Storage.Hybrid.Sync.DriftInterval = 10 * time.Minute
	}

	if cfg.Dedup.Semantic.WindowHours == 0 {
		cfg.Dedup.Semantic.WindowHours = 24
	}
	if cfg.Dedup.Semantic.Threshold == 0 {
		cfg.Dedup.Semantic.Threshold = 0.85
	}

	if cfg.Quality.Boost.Weight == 0 {
		cfg.Quality.Boost.Weight = 0.3
	}

	if cfg.Consolidation.Forgetting.RelevanceThreshold == 0 {
		cfg.Consolidation.Forgetting.RelevanceThreshold = 0.1
	}
	if cfg.Consolidation.Forgetting.AccessThresholdDays == 0 {
		cfg.Consolidation.Forgetting.AccessThresholdDays = 90
	}
	if cfg.Consolidation.CreativeAssociationCap == 0 {
		cfg.Consolidation.CreativeAssociationCap = 100
	}
	if cfg.Consolidation.SimilarityFloor == 0 {
		cfg.Consolidation.SimilarityFloor = 0.3
	}
	if cfg.Consolidation.SimilarityCeil == 0 {
		cfg.Consolidation.SimilarityCeil = 0.7
	}
	if cfg.Consolidation.DBSCANMinClusterSize == 0 {
		cfg.Consolidation.DBSCANMinClusterSize = 5
	}
	if cfg.Consolidation.DBSCANEpsilon == 0 {
		cfg.Consolidation.DBSCANEpsilon = 0.15
	}
	if cfg.Consolidation.CompressionMaxChars == 0 {
		cfg.Consolidation.CompressionMaxChars = 500
	}
	if cfg.Consolidation.ArchiveS3.Region == "" {
		cfg.Consolidation.ArchiveS3.Region = "us-east-1"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hash"
	}

	if cfg.Response.MaxChars == 0 {
		cfg.Response.MaxChars = 8000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("CORTEX_HTTP_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("CORTEX_METRICS_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.MetricsPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("CORTEX_JWT_SECRET")); value != "" {
		cfg.Auth.JWTSecret = value
	}
	if value := strings.TrimSpace(os.Getenv("CORTEX_CLOUD_TOKEN")); value != "" {
		cfg.Storage.Cloud.Token = value
	}
	if value := strings.TrimSpace(os.Getenv("CORTEX_EMBEDDING_API_KEY")); value != "" {
		cfg.Embedding.APIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID")); value != "" {
		cfg.Consolidation.ArchiveS3.AccessKeyID = value
	}
	if value := strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY")); value != "" {
		cfg.Consolidation.ArchiveS3.SecretAccessKey = value
	}
}

// ValidationError reports every configuration problem found at once,
// rather than failing on the first.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config: validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	var issues []string

	switch cfg.Storage.Backend {
	case "local", "cloud", "hybrid":
	default:
		issues = append(issues, fmt.Sprintf("storage.backend must be \"local\", \"cloud\", or \"hybrid\" (got %q)", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend != "local" && strings.TrimSpace(cfg.Storage.Cloud.BaseURL) == "" {
		issues = append(issues, "storage.cloud.base_url is required when storage.backend is \"cloud\" or \"hybrid\"")
	}
	if cfg.Storage.Dimension <= 0 {
		issues = append(issues, "storage.dimension must be > 0")
	}
	if cfg.Storage.Hybrid.Sync.BatchSize <= 0 {
		issues = append(issues, "storage.hybrid.sync.batch_size must be > 0")
	}
	if cfg.Storage.Hybrid.Sync.TombstoneRetentionDays < 0 {
		issues = append(issues, "storage.hybrid.sync.tombstone_retention_days must be >= 0")
	}

	if cfg.Dedup.Semantic.Threshold < 0 || cfg.Dedup.Semantic.Threshold > 1 {
		issues = append(issues, "dedup.semantic.threshold must be between 0 and 1")
	}

	if cfg.Quality.Boost.Weight < 0 || cfg.Quality.Boost.Weight > 1 {
		issues = append(issues, "quality.boost.weight must be between 0 and 1")
	}

	for horizon, expr := range map[string]string{
		"daily":     cfg.Consolidation.Schedule.Daily,
		"weekly":    cfg.Consolidation.Schedule.Weekly,
		"monthly":   cfg.Consolidation.Schedule.Monthly,
		"quarterly": cfg.Consolidation.Schedule.Quarterly,
		"yearly":    cfg.Consolidation.Schedule.Yearly,
	} {
		if strings.TrimSpace(expr) == "" {
			continue
		}
		if _, err := cronParser.Parse(expr); err != nil {
			issues = append(issues, fmt.Sprintf("consolidation.schedule.%s is not a valid cron expression: %v", horizon, err))
		}
	}
	if cfg.Consolidation.Forgetting.RelevanceThreshold < 0 {
		issues = append(issues, "consolidation.forgetting.relevance_threshold must be >= 0")
	}
	if cfg.Consolidation.Forgetting.AccessThresholdDays < 0 {
		issues = append(issues, "consolidation.forgetting.access_threshold_days must be >= 0")
	}
	if cfg.Consolidation.ArchiveS3.Enabled && strings.TrimSpace(cfg.Consolidation.ArchiveS3.Bucket) == "" {
		issues = append(issues, "consolidation.archive_s3.bucket is required when archive_s3 is enabled")
	}

	switch cfg.Embedding.Provider {
	case "openai", "ollama", "hash":
	default:
		issues = append(issues, fmt.Sprintf("embedding.provider must be \"openai\", \"ollama\", or \"hash\" (got %q)", cfg.Embedding.Provider))
	}

	if cfg.Response.MaxChars <= 0 {
		issues = append(issues, "response.max_chars must be > 0")
	}

	if jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret); jwtSecret != "" && len(jwtSecret) < 32 {
		issues = append(issues, "auth.jwt_secret must be at least 32 characters for security")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
