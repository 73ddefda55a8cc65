package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every knob of the worker. All values come from the
// environment; see the envconfig tags for names and defaults.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"production"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogSource   bool   `envconfig:"LOG_SOURCE" default:"false"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"comfybridge"`

	// Engine
	ComfyURL          string        `envconfig:"COMFY_URL" default:"http://127.0.0.1:8188"`
	ComfyWSURL        string        `envconfig:"COMFY_WS_URL"`
	EngineHTTPTimeout time.Duration `envconfig:"ENGINE_HTTP_TIMEOUT" default:"30s"`
	ReadyMaxAttempts  int           `envconfig:"READY_MAX_ATTEMPTS" default:"180"`
	ReadyInterval     time.Duration `envconfig:"READY_INTERVAL" default:"1s"`
	CompletionTimeout time.Duration `envconfig:"COMPLETION_TIMEOUT" default:"0"`

	// Job filesystem
	WorkRoot        string        `envconfig:"WORK_ROOT" default:"/tmp"`
	KeepWorkDir     bool          `envconfig:"KEEP_WORKDIR" default:"false"`
	FetchTimeout    time.Duration `envconfig:"FETCH_TIMEOUT" default:"2m"`
	DefaultWorkflow string        `envconfig:"DEFAULT_WORKFLOW" default:"singlespeaker"`

	// Workflow templates: "dir" or "postgres"
	WorkflowSource string `envconfig:"WORKFLOW_SOURCE" default:"dir"`
	WorkflowDir    string `envconfig:"WORKFLOW_DIR" default:"/workflows"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`

	// Durable store: "localfs", "gdrive" or "s3"
	StorageProvider    string `envconfig:"STORAGE_PROVIDER" default:"localfs"`
	VolumeRoot         string `envconfig:"VOLUME_ROOT" default:"/runpod-volume"`
	GDriveClientID     string `envconfig:"GDRIVE_CLIENT_ID"`
	GDriveClientSecret string `envconfig:"GDRIVE_CLIENT_SECRET"`
	GDriveRefreshToken string `envconfig:"GDRIVE_REFRESH_TOKEN"`
	GDriveFolderID     string `envconfig:"GDRIVE_FOLDER_ID"`
	S3Endpoint         string `envconfig:"S3_ENDPOINT"`
	S3AccessKey        string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey        string `envconfig:"S3_SECRET_KEY"`
	S3Bucket           string `envconfig:"S3_BUCKET"`
	S3Region           string `envconfig:"S3_REGION"`
	S3UseSSL           bool   `envconfig:"S3_USE_SSL" default:"true"`

	// Invocation surfaces
	HTTPAddr           string        `envconfig:"HTTP_ADDR" default:"0.0.0.0:8000"`
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS"`
	RedisAddr          string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword      string        `envconfig:"REDIS_PASSWORD"`
	RedisDB            int           `envconfig:"REDIS_DB" default:"0"`
	QueueName          string        `envconfig:"JOB_QUEUE_NAME" default:"comfybridge:jobs"`
	ResultPrefix       string        `envconfig:"JOB_RESULT_PREFIX" default:"comfybridge:result:"`
	ResultTTL          time.Duration `envconfig:"JOB_RESULT_TTL" default:"24h"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// Load reads a .env file in development, then the environment, and
// validates the result.
func Load() (*Config, error) {
	if isDev(os.Getenv("ENVIRONMENT")) {
		if err := godotenv.Load(); err == nil {
			log.Println("loaded .env file")
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	var problems []string

	if _, err := url.ParseRequestURI(c.ComfyURL); err != nil {
		problems = append(problems, "COMFY_URL must be a valid URL")
	}
	if c.ReadyMaxAttempts < 1 {
		problems = append(problems, "READY_MAX_ATTEMPTS must be at least 1")
	}
	if c.CompletionTimeout < 0 {
		problems = append(problems, "COMPLETION_TIMEOUT must not be negative")
	}

	switch c.WorkflowSource {
	case "dir":
	case "postgres":
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required when WORKFLOW_SOURCE=postgres")
		}
	default:
		problems = append(problems, "WORKFLOW_SOURCE must be dir or postgres")
	}

	switch c.StorageProvider {
	case "localfs":
	case "gdrive":
		if c.GDriveClientID == "" || c.GDriveClientSecret == "" || c.GDriveRefreshToken == "" {
			problems = append(problems, "GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN are required for gdrive")
		}
	case "s3":
		if c.S3Endpoint == "" || c.S3Bucket == "" {
			problems = append(problems, "S3_ENDPOINT and S3_BUCKET are required for s3")
		}
	default:
		problems = append(problems, "STORAGE_PROVIDER must be localfs, gdrive or s3")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// WebSocketURL returns COMFY_WS_URL, or derives ws(s)://host/ws from COMFY_URL.
func (c *Config) WebSocketURL() string {
	if c.ComfyWSURL != "" {
		return c.ComfyWSURL
	}
	u, err := url.Parse(c.ComfyURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

func isDev(env string) bool {
	env = strings.ToLower(env)
	return env == "development" || env == "dev"
}
