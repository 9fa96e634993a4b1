package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Retry        RetryConfig
	Discovery    DiscoveryConfig
	Sidecar      SidecarConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations the binaries cannot start with.
func (c *Config) Validate() error {
	var problems []string
	switch c.DB.Driver {
	case "", "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("%s %q is not supported", EnvDBDriver, c.DB.Driver))
	}
	if !c.Discovery.Enabled && !c.Sidecar.Enabled {
		problems = append(problems, "at least one of service discovery or the sidecar must be enabled")
	}
	if c.Retry.MaxRetries < 0 {
		problems = append(problems, EnvRetryMaxRetries+" must not be negative")
	}
	if c.Outbox.BatchSize < 0 {
		problems = append(problems, EnvOutboxBatchSize+" must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"SAGA_APP_ENV" required:"true"`
	Port         string `envconfig:"SAGA_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SAGA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SAGA_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"SAGA_LOG_FORMAT" default:"json"`
	// MetricsAddr serves /metrics from the worker and outbox publisher when set.
	MetricsAddr  string `envconfig:"SAGA_METRICS_ADDR"`

	CORSAllowedOrigins []string `envconfig:"SAGA_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SAGA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SAGA_DB_DSN"`
	Driver string `envconfig:"SAGA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SAGA_DB_HOST"`
	LegacyPort     int    `envconfig:"SAGA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SAGA_DB_USER"`
	LegacyPassword string `envconfig:"SAGA_DB_PASSWORD"`
	LegacyName     string `envconfig:"SAGA_DB_NAME"`
	LegacySSLMode  string `envconfig:"SAGA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SAGA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SAGA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SAGA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SAGA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SAGA_REDIS_URL"`
	Address      string        `envconfig:"SAGA_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"SAGA_REDIS_PASSWORD"`
	DB           int           `envconfig:"SAGA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SAGA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SAGA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SAGA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SAGA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SAGA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SAGA_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	InboundIdempotencyTTL time.Duration `envconfig:"SAGA_EVENTING_IDEMPOTENCY_TTL" default:"168h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SAGA_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"SAGA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SAGA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	StatusTopic             string `envconfig:"SAGA_PUBSUB_STATUS_TOPIC" default:"saga-status"`
	InitTopic               string `envconfig:"SAGA_PUBSUB_INIT_TOPIC" default:"saga-init"`
	BuyInInitTopic          string `envconfig:"SAGA_PUBSUB_BUYIN_INIT_TOPIC" default:"saga-buyin-init"`
	CashOutInitTopic        string `envconfig:"SAGA_PUBSUB_CASHOUT_INIT_TOPIC" default:"saga-cashout-init"`
	StatusSubscription      string `envconfig:"SAGA_PUBSUB_STATUS_SUBSCRIPTION" default:"saga-status-coordinator"`
	InitSubscription        string `envconfig:"SAGA_PUBSUB_INIT_SUBSCRIPTION" default:"saga-init-coordinator"`
	BuyInInitSubscription   string `envconfig:"SAGA_PUBSUB_BUYIN_INIT_SUBSCRIPTION" default:"saga-buyin-init-coordinator"`
	CashOutInitSubscription string `envconfig:"SAGA_PUBSUB_CASHOUT_INIT_SUBSCRIPTION" default:"saga-cashout-init-coordinator"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"SAGA_OUTBOX_PUBLISH_BATCH_SIZE" default:"10"`
	PollIntervalMS int           `envconfig:"SAGA_OUTBOX_PUBLISH_POLL_MS" default:"1000"`
	PublishTimeout time.Duration `envconfig:"SAGA_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
}

type RetryConfig struct {
	MaxRetries               int           `envconfig:"SAGA_RETRY_MAX_RETRIES" default:"3"`
	InitialDelayMilliseconds int           `envconfig:"SAGA_RETRY_INITIAL_DELAY_MS" default:"1000"`
	AttemptTimeout           time.Duration `envconfig:"SAGA_RETRY_ATTEMPT_TIMEOUT" default:"10s"`
}

// InitialDelay returns the first backoff delay as a duration.
func (r RetryConfig) InitialDelay() time.Duration {
	if r.InitialDelayMilliseconds <= 0 {
		return 0
	}
	return time.Duration(r.InitialDelayMilliseconds) * time.Millisecond
}

type DiscoveryConfig struct {
	Enabled       bool   `envconfig:"SAGA_DISCOVERY_ENABLED" default:"true"`
	ConsulAddress string `envconfig:"SAGA_CONSUL_ADDR" default:"127.0.0.1:8500"`
	Datacenter    string `envconfig:"SAGA_CONSUL_DATACENTER"`
	Token         string `envconfig:"SAGA_CONSUL_TOKEN"`
	Tag           string `envconfig:"SAGA_CONSUL_SERVICE_TAG"`
	ServiceScheme string `envconfig:"SAGA_DISCOVERY_SERVICE_SCHEME" default:"http"`
}

type SidecarConfig struct {
	Enabled     bool          `envconfig:"SAGA_SIDECAR_ENABLED" default:"true"`
	GRPCAddress string        `envconfig:"SAGA_DAPR_GRPC_ADDR" default:"127.0.0.1:50001"`
	StartupWait time.Duration `envconfig:"SAGA_SIDECAR_STARTUP_WAIT" default:"0s"`
}

// ensureDSN assembles a postgres URL from the discrete SAGA_DB_* variables
// when SAGA_DB_DSN is unset.
func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.LegacyHost, EnvDBUser: db.LegacyUser, EnvDBName: db.LegacyName} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(db.LegacyUser, db.LegacyPassword),
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   db.LegacyName,
	}
	if db.LegacyPassword == "" {
		u.User = url.User(db.LegacyUser)
	}
	if db.LegacySSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	db.DSN = u.String()
	return nil
}
