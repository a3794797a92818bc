// Package config loads the service configuration via spf13/viper: nested
// mapstructure sections, environment override with a service prefix, and a
// sync.Once singleton load with defaults.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config is the obcore process configuration.
type Config struct {
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Database struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		User            string        `mapstructure:"user"`
		Password        string        `mapstructure:"password"`
		Name            string        `mapstructure:"name"`
		SSLMode         string        `mapstructure:"sslmode"`
		MaxOpenConns    int           `mapstructure:"max_open_conns"`
		MaxIdleConns    int           `mapstructure:"max_idle_conns"`
		ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	} `mapstructure:"database"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		PoolSize int    `mapstructure:"pool_size"`
	} `mapstructure:"redis"`

	NATS struct {
		URL              string `mapstructure:"url"`
		OutboundSubject  string `mapstructure:"outbound_subject"`
		InboundSubject   string `mapstructure:"inbound_subject"`
	} `mapstructure:"nats"`

	WebSocket struct {
		Host           string `mapstructure:"host"`
		Port           int    `mapstructure:"port"`
		Path           string `mapstructure:"path"`
		MaxConnections int    `mapstructure:"max_connections"`
	} `mapstructure:"websocket"`

	// Matching holds every tunable the matching engine and its QCSM and
	// alerting logic read.
	Matching struct {
		CommissionRate            float64       `mapstructure:"commission_rate"`
		MaxOrdersPerUser          int           `mapstructure:"max_orders_per_user"`
		OrderExpiryHours          int           `mapstructure:"order_expiry_hours"`
		MatchingInterval          time.Duration `mapstructure:"matching_interval"`
		QCSMDeadline              time.Duration `mapstructure:"qcsm_deadline"`
		NegotiationDeadline       time.Duration `mapstructure:"negotiation_deadline"`
		SpreadAlertCap            float64       `mapstructure:"spread_alert_cap"`
		PerUserOrderBookMirrorTTL time.Duration `mapstructure:"per_user_order_book_mirror_ttl"`
		WorkerPoolSize            int           `mapstructure:"worker_pool_size"`
	} `mapstructure:"matching"`

	Monitoring struct {
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"monitoring"`
}

var (
	config *Config
	once   sync.Once
)

// Load loads the configuration from the given file path (may be empty to
// rely on defaults + environment only).
func Load(configPath string) (*Config, error) {
	var err error

	once.Do(func() {
		config = &Config{}
		setDefaults()

		v := viper.New()
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if configPath != "" {
			v.AddConfigPath(configPath)
		} else {
			v.AddConfigPath(".")
			v.AddConfigPath("./config")
			v.AddConfigPath("/etc/obcore")
		}

		v.AutomaticEnv()
		v.SetEnvPrefix("OBCORE")

		if readErr := v.ReadInConfig(); readErr != nil {
			if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
				err = fmt.Errorf("read config file: %w", readErr)
				return
			}
		}

		if unmarshalErr := v.Unmarshal(config); unmarshalErr != nil {
			err = fmt.Errorf("unmarshal config: %w", unmarshalErr)
			return
		}
	})

	return config, err
}

func setDefaults() {
	config.Server.Host = "0.0.0.0"
	config.Server.Port = 8080

	config.Database.Host = "localhost"
	config.Database.Port = 5432
	config.Database.User = "postgres"
	config.Database.Name = "obcore"
	config.Database.SSLMode = "disable"
	config.Database.MaxOpenConns = 25
	config.Database.MaxIdleConns = 10
	config.Database.ConnMaxLifetime = time.Hour

	config.Redis.Addr = "localhost:6379"
	config.Redis.DB = 0
	config.Redis.PoolSize = 20

	config.NATS.URL = "nats://localhost:4222"
	config.NATS.OutboundSubject = "msg.out"
	config.NATS.InboundSubject = "msg.in"

	config.WebSocket.Host = "0.0.0.0"
	config.WebSocket.Port = 8081
	config.WebSocket.Path = "/ws"
	config.WebSocket.MaxConnections = 10000

	config.Matching.CommissionRate = 0.001
	config.Matching.MaxOrdersPerUser = 50
	config.Matching.OrderExpiryHours = 24
	config.Matching.MatchingInterval = 5 * time.Second
	config.Matching.QCSMDeadline = 60 * time.Second
	config.Matching.NegotiationDeadline = 30 * time.Second
	config.Matching.SpreadAlertCap = 0.20
	config.Matching.PerUserOrderBookMirrorTTL = 30 * time.Second
	config.Matching.WorkerPoolSize = 32

	config.Monitoring.LogLevel = "info"
}
