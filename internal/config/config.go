package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	sslModeDisable = "disable"
	sslModeRequire = "require"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type (
	Config struct {
		Host     string `mapstructure:"HOST"`
		Port     string `mapstructure:"PORT"`
		GRPCPort string `mapstructure:"GRPC_PORT"`
		LogLevel string `mapstructure:"LOG_LEVEL"`

		DBDriver   string `mapstructure:"DB_DRIVER"`
		DBHost     string `mapstructure:"DB_HOST"`
		DBPort     string `mapstructure:"DB_PORT"`
		DBUser     string `mapstructure:"DB_USER"`
		DBPassword string `mapstructure:"DB_PASSWORD"`
		DBName     string `mapstructure:"DB_NAME"`
		DBSSLMode  string `mapstructure:"DB_SSL_MODE"`
		DBPath     string `mapstructure:"DB_PATH"`

		SessionTTL time.Duration `mapstructure:"SESSION_TTL"`
		BcryptCost int           `mapstructure:"BCRYPT_COST"`

		S3Bucket    string `mapstructure:"S3_BUCKET"`
		S3Region    string `mapstructure:"S3_REGION"`
		S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
		S3AccessKey string `mapstructure:"S3_ACCESS_KEY"`
		S3SecretKey string `mapstructure:"S3_SECRET_KEY"`
		S3PublicURL string `mapstructure:"S3_PUBLIC_URL"`

		TwilioAccountSID string `mapstructure:"TWILIO_ACCOUNT_SID"`
		TwilioAuthToken  string `mapstructure:"TWILIO_AUTH_TOKEN"`
		TwilioFrom       string `mapstructure:"TWILIO_FROM"`
		TwilioBaseURL    string `mapstructure:"TWILIO_BASE_URL"`

		ReminderBody        string        `mapstructure:"REMINDER_BODY"`
		ReminderMediaURL    string        `mapstructure:"REMINDER_MEDIA_URL"`
		ReminderWindow      time.Duration `mapstructure:"REMINDER_WINDOW"`
		ReminderTolerance   time.Duration `mapstructure:"REMINDER_TOLERANCE"`
		DispatchTimeout     time.Duration `mapstructure:"DISPATCH_TIMEOUT"`
		DispatchConcurrency int           `mapstructure:"DISPATCH_CONCURRENCY"`

		IDTokenSecret   string `mapstructure:"ID_TOKEN_SECRET"`
		IDTokenAudience string `mapstructure:"ID_TOKEN_AUDIENCE"`
	}
)

var defaults = map[string]interface{}{
	"HOST":      "0.0.0.0",
	"PORT":      "1323",
	"GRPC_PORT": "9000",
	"LOG_LEVEL": "info",

	"DB_DRIVER":   DriverPostgres,
	"DB_HOST":     "0.0.0.0",
	"DB_PORT":     "5432",
	"DB_USER":     "user",
	"DB_PASSWORD": "password",
	"DB_NAME":     "db",
	"DB_SSL_MODE": sslModeDisable,
	"DB_PATH":     "buckethaca.db",

	"SESSION_TTL": "24h",
	"BCRYPT_COST": 12,

	"S3_BUCKET":     "buckethaca",
	"S3_REGION":     "us-east-1",
	"S3_ENDPOINT":   "",
	"S3_ACCESS_KEY": "",
	"S3_SECRET_KEY": "",
	"S3_PUBLIC_URL": "",

	"TWILIO_ACCOUNT_SID": "",
	"TWILIO_AUTH_TOKEN":  "",
	"TWILIO_FROM":        "",
	"TWILIO_BASE_URL":    "https://api.twilio.com",

	"REMINDER_BODY":        "Hello there! You have an upcoming event! Please visit the Buckethaca app for more info :)",
	"REMINDER_MEDIA_URL":   "",
	"REMINDER_WINDOW":      "24h",
	"REMINDER_TOLERANCE":   "30s",
	"DISPATCH_TIMEOUT":     "10s",
	"DISPATCH_CONCURRENCY": 4,

	"ID_TOKEN_SECRET":   "",
	"ID_TOKEN_AUDIENCE": "",
}

func NewConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BUCKETHACA")

	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if err := validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

func validate(cfg *Config) error {
	if cfg.DBDriver != DriverPostgres && cfg.DBDriver != DriverSQLite {
		return errors.New(fmt.Sprintf("DB driver is invalid: %s", cfg.DBDriver))
	}
	if cfg.SessionTTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if cfg.ReminderWindow <= 0 || cfg.ReminderTolerance < 0 {
		return errors.New("reminder window must be positive and tolerance non-negative")
	}
	if cfg.DispatchConcurrency < 1 {
		return errors.New("dispatch concurrency must be at least 1")
	}

	validSSLValues := []string{sslModeDisable, sslModeRequire}
	for _, validValue := range validSSLValues {
		if cfg.DBSSLMode == validValue {
			return nil
		}
	}
	return errors.New(fmt.Sprintf("DB SSL mode is invalid: %s", cfg.DBSSLMode))
}
