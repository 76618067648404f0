package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`
	Port        string `mapstructure:"port"`
	MetricsAddr string `mapstructure:"metrics_addr"` // worker only; the API serves /metrics itself
	JWTSecret   string `mapstructure:"jwt_secret"`

	Push                       PushConfig                `mapstructure:"push"`
	NotificationGatewayDetails NotificationGatewayConfig `mapstructure:"notification_gateway"`
	Email                      EmailConfig               `mapstructure:"email"`
	Escalation                 EscalationConfig          `mapstructure:"escalation"`
}

type PushConfig struct {
	Provider                string `mapstructure:"provider"` // log | fcm | relay
	FirebaseCredentialsFile string `mapstructure:"firebase_credentials_file"`
}

type NotificationGatewayConfig struct {
	URL        string `mapstructure:"url"`
	InstanceID string `mapstructure:"instance_id"`
	APIToken   string `mapstructure:"api_token"`
}

type EmailConfig struct {
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	FromEmail      string `mapstructure:"from_email"`
	AppName        string `mapstructure:"app_name"`
}

// Enabled reports whether escalation emails can be sent.
func (c EmailConfig) Enabled() bool {
	return c.SendGridAPIKey != "" && c.FromEmail != ""
}

type EscalationConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	CatchUp   bool          `mapstructure:"catch_up"`
	BatchSize int           `mapstructure:"batch_size"`
	LockKey   string        `mapstructure:"lock_key"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
}

// App holds the global config instance
var App Config

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) error {
	// Auto-load .env file if present (Local Development Convenience)
	if err := godotenv.Load(); err == nil {
		log.Println("✅ Loaded .env file")
	}

	v := viper.New()

	// Set default values
	v.SetDefault("port", "8080")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("push.provider", "log")
	v.SetDefault("email.app_name", "TravelHub CRM")
	v.SetDefault("escalation.interval", "5m")
	v.SetDefault("escalation.catch_up", false)
	v.SetDefault("escalation.batch_size", 500)
	v.SetDefault("escalation.lock_key", "crm:escalation:cycle")
	v.SetDefault("escalation.lock_ttl", "10m")

	// Config file settings
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("dev.config") // Look for dev.config.yaml
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("crm")

	// Bind standard environment variables (Docker/deploy compatibility)
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("metrics_addr", "METRICS_ADDR")
	_ = v.BindEnv("jwt_secret", "JWT_SECRET")

	// Bind push Env Vars
	_ = v.BindEnv("push.provider", "PUSH_PROVIDER")
	_ = v.BindEnv("push.firebase_credentials_file", "FIREBASE_CREDENTIALS_FILE")

	// Bind Notification Gateway Env Vars
	_ = v.BindEnv("notification_gateway.url", "CRM_CLOUD_URL")
	_ = v.BindEnv("notification_gateway.api_token", "CRM_CLOUD_TOKEN")
	_ = v.BindEnv("notification_gateway.instance_id", "CRM_INSTANCE_ID")

	// Bind email Env Vars
	_ = v.BindEnv("email.sendgrid_api_key", "SENDGRID_API_KEY")
	_ = v.BindEnv("email.from_email", "SENDGRID_FROM_EMAIL")

	// Bind escalation Env Vars
	_ = v.BindEnv("escalation.interval", "ESCALATION_INTERVAL")
	_ = v.BindEnv("escalation.catch_up", "ESCALATION_CATCH_UP")
	_ = v.BindEnv("escalation.batch_size", "ESCALATION_BATCH_SIZE")
	_ = v.BindEnv("escalation.lock_ttl", "ESCALATION_LOCK_TTL")

	v.AutomaticEnv()

	// 1. Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("ℹ️  No config file found, using defaults and environment variables")
		} else {
			return err
		}
	} else {
		log.Printf("✅ Loaded config from: %s", v.ConfigFileUsed())
	}

	// 2. Unmarshal into struct
	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return err
	}
	App = cfg

	return nil
}
