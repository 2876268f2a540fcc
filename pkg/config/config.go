package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Payments     PaymentsConfig
	Fees         FeesConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Notify       NotifyConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DRINKRUN_APP_ENV" required:"true"`
	Port         string `envconfig:"DRINKRUN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DRINKRUN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DRINKRUN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"DRINKRUN_DB_DSN"`
	Driver string `envconfig:"DRINKRUN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DRINKRUN_DB_HOST"`
	LegacyPort     int    `envconfig:"DRINKRUN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DRINKRUN_DB_USER"`
	LegacyPassword string `envconfig:"DRINKRUN_DB_PASSWORD"`
	LegacyName     string `envconfig:"DRINKRUN_DB_NAME"`
	LegacySSLMode  string `envconfig:"DRINKRUN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DRINKRUN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DRINKRUN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DRINKRUN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DRINKRUN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DRINKRUN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DRINKRUN_REDIS_ADDR"`
	Password     string        `envconfig:"DRINKRUN_REDIS_PASSWORD"`
	DB           int           `envconfig:"DRINKRUN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DRINKRUN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DRINKRUN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DRINKRUN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DRINKRUN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DRINKRUN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PaymentsConfig wires the push-payment gateway and the fallback poller.
type PaymentsConfig struct {
	GatewayBaseURL string        `envconfig:"DRINKRUN_PAYMENTS_GATEWAY_URL" required:"true"`
	GatewayAPIKey  string        `envconfig:"DRINKRUN_PAYMENTS_GATEWAY_API_KEY" required:"true"`
	GatewayTimeout time.Duration `envconfig:"DRINKRUN_PAYMENTS_GATEWAY_TIMEOUT" default:"10s"`
	PollInterval   time.Duration `envconfig:"DRINKRUN_PAYMENTS_POLL_INTERVAL" default:"5s"`
	PollTimeout    time.Duration `envconfig:"DRINKRUN_PAYMENTS_POLL_TIMEOUT" default:"5m"`
}

// FeesConfig carries the fallback fee amounts used when the settings store
// has no row yet (fresh install, test mode).
type FeesConfig struct {
	DeliveryFee        string `envconfig:"DRINKRUN_FEES_DELIVERY" default:"200"`
	DeliveryFeeAlcohol string `envconfig:"DRINKRUN_FEES_DELIVERY_ALCOHOL" default:"300"`
	TestDeliveryFee    string `envconfig:"DRINKRUN_FEES_DELIVERY_TEST" default:"1"`
	DriverDeliveryPay  string `envconfig:"DRINKRUN_FEES_DRIVER_DELIVERY_PAY" default:"100"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"DRINKRUN_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"DRINKRUN_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"DRINKRUN_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"DRINKRUN_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription       string `envconfig:"DRINKRUN_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	NotificationTopic        string `envconfig:"DRINKRUN_PUBSUB_NOTIFICATION_TOPIC" default:"dr-notification-events"`
	NotificationSubscription string `envconfig:"DRINKRUN_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"DRINKRUN_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"DRINKRUN_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"DRINKRUN_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"DRINKRUN_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"DRINKRUN_CRON_LOCK_TTL" default:"5m"`
}

// NotifyConfig points at the SMS dispatcher. Failures are logged, never
// propagated.
type NotifyConfig struct {
	BaseURL  string        `envconfig:"DRINKRUN_NOTIFY_URL"`
	APIKey   string        `envconfig:"DRINKRUN_NOTIFY_API_KEY"`
	SenderID string        `envconfig:"DRINKRUN_NOTIFY_SENDER_ID" default:"DRINKRUN"`
	Timeout  time.Duration `envconfig:"DRINKRUN_NOTIFY_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DRINKRUN_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DRINKRUN_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
