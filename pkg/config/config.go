package config

import (
	"github.com/kelseyhightower/envconfig"
)

type App struct {
	Env string `envconfig:"ENV" default:"dev"`

	// DB
	PGTrainingDSN string `envconfig:"PG_TRAINING_DSN" required:"true"`

	// Payment gateway
	StripeSecretKey string `envconfig:"STRIPE_SECRET_KEY" required:"true"`

	// JWT
	JWTSecret    string `envconfig:"JWT_SECRET" required:"true"`
	JWTExpireMin int    `envconfig:"JWT_EXPIRE_MIN" default:"60"`

	// Network
	APIHTTPAddr string `envconfig:"API_HTTP_ADDR" default:":8080"`

	// RabbitMQ notification side-channel
	RabbitURL      string `envconfig:"RABBIT_URL" required:"true"`
	EventsExchange string `envconfig:"EVENTS_EXCHANGE" default:"training.exchange"`
	NotifyQueue    string `envconfig:"NOTIFY_QUEUE" default:"training.notify.q"`
}

func Load() (App, error) {
	var c App
	err := envconfig.Process("", &c)
	return c, err
}
