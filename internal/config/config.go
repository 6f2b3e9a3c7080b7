package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	NewRelic   NewRelicConfig
	Log        LogConfig
	Auth       AuthConfig
	Store      StoreConfig
	Kafka      KafkaConfig
	Maps       MapsConfig
	Scheduler  SchedulerConfig
	Dispatch   DispatchConfig
	Pricing    PricingConfig
	Ride       RideConfig
	Settlement SettlementConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	AutoMigrate bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level string
}

// AuthConfig holds the identity gate configuration.
type AuthConfig struct {
	JWTSecret string
}

// StoreConfig selects the ride/wallet store backend: "postgres" or "memory".
type StoreConfig struct {
	Driver string
}

// KafkaConfig holds the ride event stream configuration.
type KafkaConfig struct {
	Enabled  bool
	Brokers  []string
	Topic    string
	ClientID string
}

// MapsConfig holds the route estimation configuration.
type MapsConfig struct {
	APIKey  string
	Timeout time.Duration
}

// SchedulerConfig holds the scheduled ride worker configuration.
type SchedulerConfig struct {
	Enabled     bool
	Concurrency int
}

// DispatchConfig holds the driver selection policy knobs.
type DispatchConfig struct {
	RadiusKm         float64
	CandidateLimit   int
	TargetLimit      int
	TieEpsilon       float64
	PremierMinRating float64
	CampaignRadiusKm float64
	SurgeRadiusKm    float64
	PresenceCacheTTL time.Duration
}

// PricingConfig holds fare and settlement rates.
type PricingConfig struct {
	Timezone       string
	CommissionRate float64
	BrandSubsidy   float64
	LoyaltyRate    float64
}

// RideConfig holds ride mutation settings.
type RideConfig struct {
	MaxRetries  int
	BookLockTTL time.Duration
}

// SettlementConfig selects the ledger strategy: "auto", "transactional" or "best_effort".
type SettlementConfig struct {
	Mode string
}

// Load loads configuration from environment variables and an optional config file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return &Config{
		Server: ServerConfig{
			Port:         v.GetString("server.port"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
		},
		Database: DatabaseConfig{
			Host:        v.GetString("db.host"),
			Port:        v.GetString("db.port"),
			User:        v.GetString("db.user"),
			Password:    v.GetString("db.password"),
			DBName:      v.GetString("db.name"),
			SSLMode:     v.GetString("db.sslmode"),
			AutoMigrate: v.GetBool("db.auto_migrate"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		NewRelic: NewRelicConfig{
			AppName:    v.GetString("new_relic.app_name"),
			LicenseKey: v.GetString("new_relic.license_key"),
			Enabled:    v.GetBool("new_relic.enabled"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
		},
		Store: StoreConfig{
			Driver: v.GetString("store.driver"),
		},
		Kafka: KafkaConfig{
			Enabled:  v.GetBool("kafka.enabled"),
			Brokers:  splitList(v.GetString("kafka.brokers")),
			Topic:    v.GetString("kafka.topic"),
			ClientID: v.GetString("kafka.client_id"),
		},
		Maps: MapsConfig{
			APIKey:  v.GetString("maps.api_key"),
			Timeout: v.GetDuration("maps.timeout"),
		},
		Scheduler: SchedulerConfig{
			Enabled:     v.GetBool("scheduler.enabled"),
			Concurrency: v.GetInt("scheduler.concurrency"),
		},
		Dispatch: DispatchConfig{
			RadiusKm:         v.GetFloat64("dispatch.radius_km"),
			CandidateLimit:   v.GetInt("dispatch.candidate_limit"),
			TargetLimit:      v.GetInt("dispatch.target_limit"),
			TieEpsilon:       v.GetFloat64("dispatch.tie_epsilon"),
			PremierMinRating: v.GetFloat64("dispatch.premier_min_rating"),
			CampaignRadiusKm: v.GetFloat64("dispatch.campaign_radius_km"),
			SurgeRadiusKm:    v.GetFloat64("dispatch.surge_radius_km"),
			PresenceCacheTTL: v.GetDuration("dispatch.presence_cache_ttl"),
		},
		Pricing: PricingConfig{
			Timezone:       v.GetString("pricing.timezone"),
			CommissionRate: v.GetFloat64("pricing.commission_rate"),
			BrandSubsidy:   v.GetFloat64("pricing.brand_subsidy"),
			LoyaltyRate:    v.GetFloat64("pricing.loyalty_rate"),
		},
		Ride: RideConfig{
			MaxRetries:  v.GetInt("ride.max_retries"),
			BookLockTTL: v.GetDuration("ride.book_lock_ttl"),
		},
		Settlement: SettlementConfig{
			Mode: v.GetString("settlement.mode"),
		},
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "ridedeck")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.auto_migrate", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("new_relic.app_name", "ridedeck-engine")
	v.SetDefault("new_relic.license_key", "")
	v.SetDefault("new_relic.enabled", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("store.driver", "postgres")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "ride-events")
	v.SetDefault("kafka.client_id", "ridedeck-engine")

	v.SetDefault("maps.api_key", "")
	v.SetDefault("maps.timeout", 2*time.Second)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.concurrency", 5)

	v.SetDefault("dispatch.radius_km", 5.0)
	v.SetDefault("dispatch.candidate_limit", 30)
	v.SetDefault("dispatch.target_limit", 15)
	v.SetDefault("dispatch.tie_epsilon", 0.005)
	v.SetDefault("dispatch.premier_min_rating", 4.7)
	v.SetDefault("dispatch.campaign_radius_km", 0.5)
	v.SetDefault("dispatch.surge_radius_km", 5.0)
	v.SetDefault("dispatch.presence_cache_ttl", 30*time.Second)

	v.SetDefault("pricing.timezone", "Asia/Kolkata")
	v.SetDefault("pricing.commission_rate", 0.20)
	v.SetDefault("pricing.brand_subsidy", 20.0)
	v.SetDefault("pricing.loyalty_rate", 0.10)

	v.SetDefault("ride.max_retries", 3)
	v.SetDefault("ride.book_lock_ttl", 5*time.Second)

	v.SetDefault("settlement.mode", "auto")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
