package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string
	MaxDBConns  int32

	BrokerKind         string
	AMQPURL            string
	KafkaBrokers       []string
	KafkaConsumerGroup string

	OrdersQueue      string
	PaymentsQueue    string
	ShippingQueue    string
	PumpDestinations []string

	MaxInFlight          int
	DestinationRetention time.Duration
	MaxDeliveryAttempts  int
	DedupTTL             time.Duration
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL        string   `yaml:"postgres_url"`
		RedisURL           string   `yaml:"redis_url"`
		BrokerKind         string   `yaml:"broker_kind"`
		AMQPURL            string   `yaml:"amqp_url"`
		KafkaBrokers       []string `yaml:"kafka_brokers"`
		KafkaConsumerGroup string   `yaml:"kafka_consumer_group"`
	} `yaml:"dependencies"`
	Queues struct {
		Orders   string `yaml:"orders"`
		Payments string `yaml:"payments"`
		Shipping string `yaml:"shipping"`
	} `yaml:"queues"`
	Pump struct {
		Destinations []string `yaml:"destinations"`
		MaxInFlight  int      `yaml:"max_in_flight"`
	} `yaml:"pump"`
}

func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:            "M15-Order-Saga-Service",
		HTTPPort:             8080,
		GRPCPort:             9090,
		MaxDBConns:           20,
		BrokerKind:           "rabbitmq",
		KafkaConsumerGroup:   "m15-order-saga-service",
		OrdersQueue:          "orders",
		PaymentsQueue:        "payments",
		ShippingQueue:        "shipping",
		MaxInFlight:          8,
		DestinationRetention: 14 * 24 * time.Hour,
		MaxDeliveryAttempts:  10,
		DedupTTL:             7 * 24 * time.Hour,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		cfg.DatabaseURL = f.Dependencies.PostgresURL
		cfg.RedisURL = f.Dependencies.RedisURL
		if f.Dependencies.BrokerKind != "" {
			cfg.BrokerKind = f.Dependencies.BrokerKind
		}
		cfg.AMQPURL = f.Dependencies.AMQPURL
		if len(f.Dependencies.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
		}
		if f.Dependencies.KafkaConsumerGroup != "" {
			cfg.KafkaConsumerGroup = f.Dependencies.KafkaConsumerGroup
		}
		if f.Queues.Orders != "" {
			cfg.OrdersQueue = f.Queues.Orders
		}
		if f.Queues.Payments != "" {
			cfg.PaymentsQueue = f.Queues.Payments
		}
		if f.Queues.Shipping != "" {
			cfg.ShippingQueue = f.Queues.Shipping
		}
		if len(f.Pump.Destinations) > 0 {
			cfg.PumpDestinations = trimNonEmpty(f.Pump.Destinations)
		}
		if f.Pump.MaxInFlight > 0 {
			cfg.MaxInFlight = f.Pump.MaxInFlight
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.BrokerKind = strings.ToLower(envOrDefault("BROKER_KIND", cfg.BrokerKind))
	cfg.AMQPURL = envOrDefault("AMQP_URL", cfg.AMQPURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaConsumerGroup = envOrDefault("KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)
	cfg.OrdersQueue = envOrDefault("QUEUE_ORDERS", cfg.OrdersQueue)
	cfg.PaymentsQueue = envOrDefault("QUEUE_PAYMENTS", cfg.PaymentsQueue)
	cfg.ShippingQueue = envOrDefault("QUEUE_SHIPPING", cfg.ShippingQueue)
	cfg.PumpDestinations = envCSV("PUMP_DESTINATIONS", cfg.PumpDestinations)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.MaxInFlight = envInt("PUMP_MAX_IN_FLIGHT", cfg.MaxInFlight)
	cfg.DestinationRetention = time.Duration(envInt("DESTINATION_RETENTION_DAYS", int(cfg.DestinationRetention.Hours()/24))) * 24 * time.Hour
	cfg.MaxDeliveryAttempts = envInt("MAX_DELIVERY_ATTEMPTS", cfg.MaxDeliveryAttempts)
	cfg.DedupTTL = time.Duration(envInt("DEDUP_TTL_HOURS", int(cfg.DedupTTL.Hours()))) * time.Hour

	if len(cfg.PumpDestinations) == 0 {
		cfg.PumpDestinations = []string{cfg.OrdersQueue}
	}
	switch cfg.BrokerKind {
	case "rabbitmq", "kafka", "none":
	default:
		return Config{}, fmt.Errorf("unsupported broker kind %q", cfg.BrokerKind)
	}
	if cfg.BrokerKind == "rabbitmq" && cfg.AMQPURL == "" {
		cfg.BrokerKind = "none"
	}
	if cfg.BrokerKind == "kafka" && len(cfg.KafkaBrokers) == 0 {
		cfg.BrokerKind = "none"
	}
	return cfg, nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return trimNonEmpty(strings.Split(raw, ","))
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
