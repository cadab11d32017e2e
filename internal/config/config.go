// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv  string `env:"APP_ENV" envDefault:"dev"`
	Port    int    `env:"PORT" envDefault:"8000"`
	AppName string `env:"APP_NAME" envDefault:"cqs"`

	DatabaseURL       string `env:"DATABASE_URL,required"`
	WorkflowRunnerURL string `env:"WORKFLOW_RUNNER_URL" envDefault:"https://translator-workflow-runner.renci.org"`
	// ResponseURL is the public base used to build response_url in status replies.
	ResponseURL string `env:"RESPONSE_URL" envDefault:"http://localhost:8000"`

	BiolinkVersion string `env:"BIOLINK_VERSION" envDefault:"4.2.1"`
	TRAPIVersion   string `env:"TRAPI_VERSION" envDefault:"1.5.0"`
	Maturity       string `env:"MATURITY" envDefault:"development"`
	Location       string `env:"LOCATION" envDefault:"RENCI"`

	// TemplateDir is the root of the canned-template store.
	TemplateDir string `env:"TEMPLATE_DIR" envDefault:"templates"`
	// WFROutputDir, when set, receives pre-/post-rewrite response snapshots.
	WFROutputDir string `env:"WFR_OUTPUT_DIR"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"cqs"`

	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"960s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	// Background processor cadence. Defaults follow the deployed service:
	// reaper first fires 5s after boot then every 600s under a 30s ceiling;
	// the worker first fires 15s after boot then every 30s under 450s.
	ReaperStartDelay  time.Duration `env:"REAPER_START_DELAY" envDefault:"5s"`
	ReaperInterval    time.Duration `env:"REAPER_INTERVAL" envDefault:"600s"`
	ReaperTickTimeout time.Duration `env:"REAPER_TICK_TIMEOUT" envDefault:"30s"`
	JobMaxAge         time.Duration `env:"JOB_MAX_AGE" envDefault:"3600s"`
	WorkerStartDelay  time.Duration `env:"WORKER_START_DELAY" envDefault:"15s"`
	WorkerInterval    time.Duration `env:"WORKER_INTERVAL" envDefault:"30s"`
	WorkerTickTimeout time.Duration `env:"WORKER_TICK_TIMEOUT" envDefault:"450s"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }
