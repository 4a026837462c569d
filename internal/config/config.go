package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port           string `envconfig:"PORT" default:"8080"`
	RunLocal       bool   `envconfig:"RUN_LOCAL" default:"false"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	StoreDriver    string `envconfig:"STORE_DRIVER" default:"postgres"`
	DatabaseURL    string `envconfig:"DATABASE_URL" default:""`
	MigrateOnStart bool   `envconfig:"MIGRATE_ON_START" default:"false"`
	JWTSecret      string `envconfig:"JWT_SECRET" default:""`
	Currency       string `envconfig:"CURRENCY" default:"INR"`

	RazorpayKeyID         string `envconfig:"RAZORPAY_KEY_ID" default:""`
	RazorpayKeySecret     string `envconfig:"RAZORPAY_KEY_SECRET" default:""`
	RazorpayWebhookSecret string `envconfig:"RAZORPAY_WEBHOOK_SECRET" default:""`

	StripeSecretKey      string `envconfig:"STRIPE_SECRET_KEY" default:""`
	StripePublishableKey string `envconfig:"STRIPE_PUBLISHABLE_KEY" default:""`
	StripeWebhookSecret  string `envconfig:"STRIPE_WEBHOOK_SECRET" default:""`

	GatewayTimeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`

	IdempotencyTable string        `envconfig:"IDEMPOTENCY_TABLE" default:""`
	IdempotencyTTL   time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	EventsSink     string `envconfig:"EVENTS_SINK" default:"none"`
	OrdersQueueURL string `envconfig:"ORDERS_QUEUE_URL" default:""`
	KafkaBrokers   string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic     string `envconfig:"KAFKA_TOPIC" default:"order-events"`

	AWSRegion           string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSEndpointOverride string `envconfig:"AWS_ENDPOINT_OVERRIDE" default:""`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.EventsSink {
	case "none":
	case "sqs":
		if c.OrdersQueueURL == "" {
			return fmt.Errorf("ORDERS_QUEUE_URL is required when EVENTS_SINK=sqs")
		}
	case "kafka":
		if len(c.Brokers()) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when EVENTS_SINK=kafka")
		}
	default:
		return fmt.Errorf("unknown EVENTS_SINK %q", c.EventsSink)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	return nil
}

// Brokers splits KAFKA_BROKERS on commas.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Worker is the configuration of the event consumer.
type Worker struct {
	RunLocal         bool          `envconfig:"RUN_LOCAL" default:"false"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
	IdempotencyTable string        `envconfig:"IDEMPOTENCY_TABLE" default:""`
	DedupeTTL        time.Duration `envconfig:"EVENT_DEDUPE_TTL" default:"48h"`
	MetricsNamespace string        `envconfig:"METRICS_NAMESPACE" default:"Checkout"`
	LocalEventBody   string        `envconfig:"LOCAL_SQS_BODY" default:""`

	AWSRegion           string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSEndpointOverride string `envconfig:"AWS_ENDPOINT_OVERRIDE" default:""`
}

func LoadWorker() (*Worker, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	var cfg Worker
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTable == "" {
		return nil, fmt.Errorf("IDEMPOTENCY_TABLE is required")
	}
	if cfg.DedupeTTL <= 0 {
		return nil, fmt.Errorf("EVENT_DEDUPE_TTL must be positive")
	}
	return &cfg, nil
}
