package config

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every externally configurable value the client depends on.
// The backend base URL and the external site base URL are the two the core
// contract requires; the rest tune the ambient runtime.
type Config struct {
	APIBaseURL  string
	SiteBaseURL string
	AuthBaseURL string

	SessionStorePath string
	SessionStoreDSN  string

	HTTPTimeout time.Duration

	Environment string
	LogLevel    string

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
}

func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{
		APIBaseURL:  getEnv("DOCSIER_API_BASE_URL", "http://localhost:8000"),
		SiteBaseURL: getEnv("DOCSIER_SITE_BASE_URL", ""),
		AuthBaseURL: getEnv("DOCSIER_AUTH_BASE_URL", ""),

		SessionStorePath: getEnv("DOCSIER_SESSION_STORE_PATH", defaultSessionStorePath()),
		SessionStoreDSN:  getEnv("DOCSIER_SESSION_STORE_DSN", ""),

		HTTPTimeout: getDurationEnv("DOCSIER_HTTP_TIMEOUT", 30*time.Second),

		Environment: getEnv("DOCSIER_ENV", "development"),
		LogLevel:    getEnv("DOCSIER_LOG_LEVEL", "info"),

		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "docsier-client"),
		OTELEnvironment:           getEnv("OTEL_ENVIRONMENT", "development"),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  getBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:        getBoolEnv("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:        getBoolEnv("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:           getBoolEnv("OTEL_LOGS_ENABLED", false),
		OTELMetricsExportInterval: getDurationEnv("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second),
	}

	if err := cfg.validate(); err != nil {
		recordConfigValidationEvent(ctx, cfg.Environment, "failure", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(ctx, cfg.Environment, "success", "none")
	return cfg, nil
}

func (c *Config) validate() error {
	if err := validateBaseURL("DOCSIER_API_BASE_URL", c.APIBaseURL, true); err != nil {
		return err
	}
	if err := validateBaseURL("DOCSIER_SITE_BASE_URL", c.SiteBaseURL, false); err != nil {
		return err
	}
	if err := validateBaseURL("DOCSIER_AUTH_BASE_URL", c.AuthBaseURL, false); err != nil {
		return err
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("validate config: DOCSIER_HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	return nil
}

func validateBaseURL(name, value string, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("validate config: %s is required", name)
		}
		return nil
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("validate config: %s must be an absolute URL, got %q", name, value)
	}
	return nil
}

func defaultSessionStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "docsier-session.db"
	}
	return dir + "/docsier/session.db"
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// A missing file is a no-op; variables already set in the environment win;
// surrounding quotes are stripped; lines without '=' or starting with '#'
// are skipped.
func LoadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open env file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read env file: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return parsed
}
