package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	QueueDriverPostgres = "postgres"
	QueueDriverRedis    = "redis"

	StorageDriverS3    = "s3"
	StorageDriverMinio = "minio"
)

type Config struct {
	Server   ServerConfig  `mapstructure:"server"`
	Queue    QueueConfig   `mapstructure:"queue"`
	Postgres DBConfig      `mapstructure:"postgres"`
	Redis    RedisConfig   `mapstructure:"redis"`
	Storage  StorageConfig `mapstructure:"storage"`
	Worker   WorkerConfig  `mapstructure:"worker"`
	Fetch    FetchConfig   `mapstructure:"fetch"`
	Media    MediaConfig   `mapstructure:"media"`
	Statuses StatusConfig  `mapstructure:"statuses"`
	Logger   Logger        `mapstructure:"logger"`
}

type ServerConfig struct {
	AppVersion string `mapstructure:"app_version"`
	Port       string `mapstructure:"port"`
	Mode       string `mapstructure:"mode"`
	Enabled    bool   `mapstructure:"enabled"`
}

type QueueConfig struct {
	Driver        string `mapstructure:"driver" validate:"oneof=postgres redis"`
	Table         string `mapstructure:"table" validate:"required"`
	ClaimFunction string `mapstructure:"claim_function" validate:"required"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PgDriver string `mapstructure:"pg_driver"`
}

type RedisConfig struct {
	RedisAddr     string `mapstructure:"addr"`
	RedisPassword string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	MinIdleConns  int    `mapstructure:"min_idle_conns"`
	PoolSize      int    `mapstructure:"pool_size"`
	PoolTimeout   int    `mapstructure:"pool_timeout"`
	TLS           bool   `mapstructure:"tls"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

type StorageConfig struct {
	Driver        string `mapstructure:"driver" validate:"oneof=s3 minio"`
	Endpoint      string `mapstructure:"endpoint"`
	Region        string `mapstructure:"region"`
	AccessKey     string `mapstructure:"access_key" validate:"required"`
	SecretKey     string `mapstructure:"secret_key" validate:"required"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	Bucket        string `mapstructure:"bucket" validate:"required"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type WorkerConfig struct {
	ID                  string        `mapstructure:"id"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	IdleHeartbeat       time.Duration `mapstructure:"idle_heartbeat"`
	MaxBackoff          time.Duration `mapstructure:"max_backoff"`
	MaxJobRuntime       time.Duration `mapstructure:"max_job_runtime"`
	MinProgressInterval time.Duration `mapstructure:"min_progress_interval"`
	WorkspaceRoot       string        `mapstructure:"workspace_root"`
	ReconcileWorkspaces bool          `mapstructure:"reconcile_workspaces"`
	MaxCPUUsage         float64       `mapstructure:"max_cpu_usage" validate:"gte=0,lte=100"`
}

type FetchConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries" validate:"gte=0"`
}

type MediaConfig struct {
	FFmpegBin string `mapstructure:"ffmpeg_bin" validate:"required"`
	FontDir   string `mapstructure:"font_dir"`
	FontName  string `mapstructure:"font_name"`
}

type StatusConfig struct {
	Queued     string `mapstructure:"queued" validate:"required"`
	Processing string `mapstructure:"processing" validate:"required"`
	Completed  string `mapstructure:"completed" validate:"required"`
	Failed     string `mapstructure:"failed" validate:"required"`
}

type Logger struct {
	Development       bool   `mapstructure:"development"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	Encoding          string `mapstructure:"encoding"`
	Level             string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.app_version", "1.0.0")
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "production")
	v.SetDefault("server.enabled", true)

	v.SetDefault("queue.driver", QueueDriverPostgres)
	v.SetDefault("queue.table", "render_jobs")
	v.SetDefault("queue.claim_function", "claim_render_job")

	v.SetDefault("postgres.host", "")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.name", "")
	v.SetDefault("postgres.ssl_mode", "require")
	v.SetDefault("postgres.pg_driver", "pgx")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.pool_timeout", 30)
	v.SetDefault("redis.tls", false)
	v.SetDefault("redis.key_prefix", "render_jobs")

	v.SetDefault("storage.driver", StorageDriverS3)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "renders")
	v.SetDefault("storage.public_base_url", "")

	v.SetDefault("worker.id", "")
	v.SetDefault("worker.poll_interval", "2s")
	v.SetDefault("worker.idle_heartbeat", "30s")
	v.SetDefault("worker.max_backoff", "30s")
	v.SetDefault("worker.max_job_runtime", "25m")
	v.SetDefault("worker.min_progress_interval", "1500ms")
	v.SetDefault("worker.workspace_root", "")
	v.SetDefault("worker.reconcile_workspaces", false)
	v.SetDefault("worker.max_cpu_usage", 0)

	v.SetDefault("fetch.timeout", "45s")
	v.SetDefault("fetch.retries", 2)

	v.SetDefault("media.ffmpeg_bin", "ffmpeg")
	v.SetDefault("media.font_dir", "/app/fonts")
	v.SetDefault("media.font_name", "Noto Sans Georgian")

	v.SetDefault("statuses.queued", "queued")
	v.SetDefault("statuses.processing", "processing")
	v.SetDefault("statuses.completed", "completed")
	v.SetDefault("statuses.failed", "failed")

	v.SetDefault("logger.development", false)
	v.SetDefault("logger.disable_caller", false)
	v.SetDefault("logger.disable_stacktrace", true)
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("logger.level", "info")
}

// LoadConfig reads the optional config file and binds every known key to its
// environment variable (worker.poll_interval -> WORKER_POLL_INTERVAL).
func LoadConfig(filename string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if filename == "" {
		return v, nil
	}
	v.SetConfigFile(filename)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFound) || errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		return nil, err
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	c.applyFloors()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyFloors clamps timing knobs to the smallest values the worker accepts.
func (c *Config) applyFloors() {
	c.Worker.PollInterval = maxDuration(c.Worker.PollInterval, 250*time.Millisecond)
	c.Worker.IdleHeartbeat = maxDuration(c.Worker.IdleHeartbeat, 5*time.Second)
	c.Worker.MaxBackoff = maxDuration(c.Worker.MaxBackoff, 3*time.Second)
	c.Worker.MaxJobRuntime = maxDuration(c.Worker.MaxJobRuntime, 30*time.Second)
	c.Worker.MinProgressInterval = maxDuration(c.Worker.MinProgressInterval, 250*time.Millisecond)
	c.Fetch.Timeout = maxDuration(c.Fetch.Timeout, 2*time.Second)
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Queue.Driver {
	case QueueDriverPostgres:
		if c.Postgres.Host == "" || c.Postgres.User == "" || c.Postgres.Name == "" {
			return errors.New("invalid config: postgres.host, postgres.user and postgres.name are required for the postgres queue")
		}
	case QueueDriverRedis:
		if c.Redis.RedisAddr == "" {
			return errors.New("invalid config: redis.addr is required for the redis queue")
		}
	}
	if c.Storage.Driver == StorageDriverMinio && c.Storage.Endpoint == "" {
		return errors.New("invalid config: storage.endpoint is required for minio")
	}
	return nil
}

func maxDuration(d, floor time.Duration) time.Duration {
	if d < floor {
		return floor
	}
	return d
}
