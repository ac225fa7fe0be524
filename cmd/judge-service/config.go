package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/Majnu04/doflow-sub001/internal/common/cache"
	"github.com/Majnu04/doflow-sub001/internal/common/db"
	"github.com/Majnu04/doflow-sub001/internal/common/http/middleware"
	"github.com/Majnu04/doflow-sub001/internal/common/mq"
	"github.com/Majnu04/doflow-sub001/internal/common/storage"
	"github.com/Majnu04/doflow-sub001/internal/judge/harness"
	"github.com/Majnu04/doflow-sub001/internal/judge/pool"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/engine"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/profile"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/runner"
	"github.com/Majnu04/doflow-sub001/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultWorkRoot        = "/var/lib/judge/work"
	defaultStatusTopic     = "judge.submission.final"
	defaultRunLimitWindow  = time.Minute
	defaultContainerDir    = "/work"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// KafkaConfig holds Kafka producer settings. An empty broker list disables events.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientID"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	RequiredAcks int           `yaml:"requiredAcks"`
	Compression  string        `yaml:"compression"`
}

// AuthConfig holds bearer token settings. When disabled the X-User-Id header is trusted.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
	Issuer  string `yaml:"issuer"`
}

// WorkerConfig holds execution slot settings.
type WorkerConfig struct {
	PoolSize          int           `yaml:"poolSize"`
	MaxQueueWait      time.Duration `yaml:"maxQueueWait"`
	ReservedForSubmit int           `yaml:"reservedForSubmit"`
}

// RunLimitConfig holds the per-user limit on ungraded runs. Max 0 disables it.
type RunLimitConfig struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// JudgeConfig holds judging settings.
type JudgeConfig struct {
	WorkRoot         string         `yaml:"workRoot"`
	SubmissionBudget time.Duration  `yaml:"submissionBudget"`
	Parallelism      int            `yaml:"parallelism"`
	MaxCodeBytes     int            `yaml:"maxCodeBytes"`
	MaxTestCases     int            `yaml:"maxTestCases"`
	MaxInputBytes    int            `yaml:"maxInputBytes"`
	CompileLogBytes  int            `yaml:"compileLogBytes"`
	RunLimit         RunLimitConfig `yaml:"runLimit"`
}

// SandboxConfig holds sandbox engine settings.
type SandboxConfig struct {
	CgroupRoot           string `yaml:"cgroupRoot"`
	SeccompDir           string `yaml:"seccompDir"`
	HelperPath           string `yaml:"helperPath"`
	StdoutStderrMaxBytes int64  `yaml:"stdoutStderrMaxBytes"`
	EnableSeccomp        bool   `yaml:"enableSeccomp"`
	EnableCgroup         bool   `yaml:"enableCgroup"`
	EnableNamespaces     bool   `yaml:"enableNamespaces"`
}

// LanguageConfig holds language overrides and task profiles.
type LanguageConfig struct {
	Languages []profile.LanguageSpec `yaml:"languages"`
	Profiles  []profile.TaskProfile  `yaml:"profiles"`
}

// StatusConfig holds status snapshot and event settings.
type StatusConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	Timeout    time.Duration `yaml:"timeout"`
	FinalTopic string        `yaml:"finalTopic"`
}

// ArchiveConfig holds audit archive settings.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logger   logger.Config       `yaml:"logger"`
	Database db.MySQLConfig      `yaml:"database"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	MinIO    storage.MinIOConfig `yaml:"minio"`
	Kafka    KafkaConfig         `yaml:"kafka"`
	Auth     AuthConfig          `yaml:"auth"`
	Worker   WorkerConfig        `yaml:"worker"`
	Judge    JudgeConfig         `yaml:"judge"`
	Sandbox  SandboxConfig       `yaml:"sandbox"`
	Language LanguageConfig      `yaml:"language"`
	Status   StatusConfig        `yaml:"status"`
	Archive  ArchiveConfig       `yaml:"archive"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Auth.Enabled && cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth secret is required when auth is enabled")
	}
	if cfg.Archive.Enabled && cfg.MinIO.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required when archive is enabled")
	}
	applyRedisDefaults(&cfg.Redis)
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = runtime.NumCPU()
	}
	if cfg.Judge.WorkRoot == "" {
		cfg.Judge.WorkRoot = defaultWorkRoot
	}
	if cfg.Judge.RunLimit.Max > 0 && cfg.Judge.RunLimit.Window == 0 {
		cfg.Judge.RunLimit.Window = defaultRunLimitWindow
	}
	// A write timeout shorter than the budget would cut off slow submissions.
	if cfg.Judge.SubmissionBudget > 0 && cfg.Server.WriteTimeout < cfg.Judge.SubmissionBudget+5*time.Second {
		cfg.Server.WriteTimeout = cfg.Judge.SubmissionBudget + 5*time.Second
	}
	if cfg.Status.FinalTopic == "" {
		cfg.Status.FinalTopic = defaultStatusTopic
	}
	if cfg.Archive.Bucket == "" {
		cfg.Archive.Bucket = cfg.MinIO.Bucket
	}
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		Compression:  parseCompression(k.Compression),
		DialTimeout:  k.DialTimeout,
		WriteTimeout: k.WriteTimeout,
	}
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

func (s SandboxConfig) toEngineConfig() engine.Config {
	return engine.Config{
		CgroupRoot:           s.CgroupRoot,
		SeccompDir:           s.SeccompDir,
		HelperPath:           s.HelperPath,
		StdoutStderrMaxBytes: s.StdoutStderrMaxBytes,
		EnableSeccomp:        s.EnableSeccomp,
		EnableCgroup:         s.EnableCgroup,
		EnableNamespaces:     s.EnableNamespaces,
	}
}

// toRunnerConfig mounts the workspace at /work only when the sandbox gets its own mount
// namespace and root filesystem; otherwise host paths are used directly.
func (c *AppConfig) toRunnerConfig() runner.Config {
	cfg := runner.Config{
		WorkRoot:           c.Judge.WorkRoot,
		CompileLogMaxBytes: c.Judge.CompileLogBytes,
	}
	if c.Sandbox.EnableNamespaces && hasRootFS(c.Language.Profiles) {
		cfg.ContainerWorkDir = defaultContainerDir
	}
	return cfg
}

func hasRootFS(profiles []profile.TaskProfile) bool {
	for _, p := range profiles {
		if p.RootFS == "" {
			return false
		}
	}
	return len(profiles) > 0
}

func (w WorkerConfig) toPoolConfig() pool.Config {
	return pool.Config{
		Size:              w.PoolSize,
		MaxQueueWait:      w.MaxQueueWait,
		ReservedForSubmit: w.ReservedForSubmit,
	}
}

func (j JudgeConfig) toHarnessConfig() harness.Config {
	return harness.Config{
		Parallelism: j.Parallelism,
		Budget:      j.SubmissionBudget,
	}
}

func (a AuthConfig) toMiddlewareConfig() middleware.AuthConfig {
	return middleware.AuthConfig{
		Enabled: a.Enabled,
		Secret:  a.Secret,
		Issuer:  a.Issuer,
	}
}
