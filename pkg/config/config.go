package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"

	configFileENV     = "CONFIG_FILE"
	defaultConfigFile = "/config/cosmo.yaml"
)

// Config is loaded once at startup by New and passed down to everything that
// needs it. Nothing else in the codebase reads environment variables.
type Config struct {
	Environment string `koanf:"environment"`
	Hostname    string `koanf:"-"`

	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path" required:"true"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries"`
	DatabaseSlowQuery         time.Duration `koanf:"database_slow_query"`

	FrontendURL       string `koanf:"frontend_url"`
	ServerHost        string `koanf:"server_host"`
	ServerPort        int    `koanf:"server_port"`
	JWTSecret         string `koanf:"jwt_secret" required:"true"`
	SessionCookieName string `koanf:"session_cookie_name"`

	// TokenEncryptionKey is a base64 encoded 32 byte key used to seal OAuth
	// tokens at rest.
	TokenEncryptionKey string `koanf:"token_encryption_key" required:"true"`

	QuickbooksClientID       string        `koanf:"quickbooks_client_id" required:"true"`
	QuickbooksClientSecret   string        `koanf:"quickbooks_client_secret" required:"true"`
	QuickbooksRedirectURI    string        `koanf:"quickbooks_redirect_uri" required:"true"`
	QuickbooksEnvironment    string        `koanf:"quickbooks_environment"`
	QuickbooksMinorVersion   int           `koanf:"quickbooks_minor_version"`
	QuickbooksRequestTimeout time.Duration `koanf:"quickbooks_request_timeout"`
	QuickbooksMaxRetries     int           `koanf:"quickbooks_max_retries"`

	BackendURL        string        `koanf:"backend_url"`
	BackendAPIToken   string        `koanf:"backend_api_token"`
	BackendTimeout    time.Duration `koanf:"backend_timeout"`
	BackendRetryDelay time.Duration `koanf:"backend_retry_delay"`

	AnalysisPollInterval time.Duration `koanf:"analysis_poll_interval"`
	AnalysisTimeout      time.Duration `koanf:"analysis_timeout"`

	SchedulerInterval time.Duration `koanf:"scheduler_interval"`
	WorkerProcesses   int           `koanf:"worker_processes"`
	// JobRetention is how long finished jobs and their logs are kept. Zero
	// keeps them forever.
	JobRetention time.Duration `koanf:"job_retention"`
}

// ConfigurationError is returned when a required value is absent. It names
// both the environment variable and the config file key.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid config %s (%s): %s", strings.ToUpper(e.Key), e.Key, e.Reason)
	}
	return fmt.Sprintf("missing required config: %s (%s)", strings.ToUpper(e.Key), e.Key)
}

func defaults() *Config {
	return &Config{
		Environment:               "development",
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseMaxRetries:        5,
		DatabaseSlowQuery:         500 * time.Millisecond,
		FrontendURL:               "http://localhost:3000",
		ServerHost:                "0.0.0.0",
		ServerPort:                3689,
		SessionCookieName:         "cosmo_session",
		QuickbooksEnvironment:     EnvironmentSandbox,
		QuickbooksMinorVersion:    75,
		QuickbooksRequestTimeout:  30 * time.Second,
		QuickbooksMaxRetries:      2,
		BackendURL:                "http://localhost:8000",
		BackendTimeout:            30 * time.Second,
		BackendRetryDelay:         time.Second,
		AnalysisPollInterval:      3 * time.Second,
		AnalysisTimeout:           5 * time.Minute,
		SchedulerInterval:         time.Minute,
		WorkerProcesses:           2,
		JobRetention:              30 * 24 * time.Hour,
	}
}

// New loads defaults, then the optional YAML file named by CONFIG_FILE, then
// environment variables, each layer overriding the previous one.
func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	path := os.Getenv(configFileENV)
	if path == "" {
		path = defaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "loading config file %s", path)
		}
	}

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := defaults()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.WithStack(err)
	}
	cfg.Hostname = hostname

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewForTest returns a fully populated config that never touches the
// filesystem or the environment.
func NewForTest() *Config {
	cfg := defaults()
	cfg.Environment = "test"
	cfg.DatabaseFilePath = ":memory:"
	cfg.ServerHost = "127.0.0.1"
	cfg.JWTSecret = "test-jwt-secret"
	cfg.TokenEncryptionKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
	cfg.QuickbooksClientID = "test-client-id"
	cfg.QuickbooksClientSecret = "test-client-secret"
	cfg.QuickbooksRedirectURI = "http://localhost:3689/integrations/quickbooks/callback"
	cfg.AnalysisPollInterval = 10 * time.Millisecond
	cfg.AnalysisTimeout = time.Second
	return cfg
}

func (cfg *Config) validate() error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("required") != "true" {
			continue
		}
		if v.Field(i).IsZero() {
			key := field.Tag.Get("koanf")
			if key == "" {
				key = toSnakeCase(field.Name)
			}
			return errors.WithStack(&ConfigurationError{Key: key})
		}
	}

	switch cfg.QuickbooksEnvironment {
	case EnvironmentSandbox, EnvironmentProduction:
	default:
		return errors.WithStack(&ConfigurationError{
			Key:    "quickbooks_environment",
			Reason: fmt.Sprintf("must be %q or %q", EnvironmentSandbox, EnvironmentProduction),
		})
	}

	return nil
}

func toSnakeCase(s string) string {
	return strcase.ToSnake(s)
}
