package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-checkout-orderflow/internal/auth"
	"github.com/imrishuroy/go-checkout-orderflow/internal/aws"
	"github.com/imrishuroy/go-checkout-orderflow/internal/cart"
	"github.com/imrishuroy/go-checkout-orderflow/internal/config"
	"github.com/imrishuroy/go-checkout-orderflow/internal/events"
	"github.com/imrishuroy/go-checkout-orderflow/internal/handlers"
	"github.com/imrishuroy/go-checkout-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-checkout-orderflow/internal/orders"
	"github.com/imrishuroy/go-checkout-orderflow/internal/payments"
	"github.com/imrishuroy/go-checkout-orderflow/internal/store"
	"github.com/imrishuroy/go-checkout-orderflow/internal/store/memory"
	"github.com/imrishuroy/go-checkout-orderflow/internal/store/postgres"
)

// app holds every long-lived dependency of the API process.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *sql.DB
	store     store.Store
	publisher events.Publisher
	idem      handlers.IdempotencyStore
	authn     *auth.Authenticator
	cart      *cart.Service
	orders    *orders.Service
	reconcile *payments.Reconciler
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	switch cfg.StoreDriver {
	case "memory":
		m := memory.New()
		memory.SeedDemo(m)
		a.store = m
	default:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.db = db
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(db); err != nil {
				return nil, err
			}
		}
		s, err := postgres.New(db)
		if err != nil {
			return nil, err
		}
		a.store = s
	}

	var clients *aws.AWSClients
	if cfg.IdempotencyTable != "" || cfg.EventsSink == "sqs" {
		var err error
		clients, err = aws.NewAWSClients(ctx, cfg.AWSRegion, cfg.AWSEndpointOverride)
		if err != nil {
			return nil, fmt.Errorf("failed to init aws clients: %w", err)
		}
	}
	if cfg.IdempotencyTable != "" {
		a.idem = idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
	}

	switch cfg.EventsSink {
	case "sqs":
		a.publisher = events.NewSQSPublisher(aws.NewPublisher(clients.SQS, cfg.OrdersQueueURL))
	case "kafka":
		p, err := events.NewKafkaPublisher(cfg.Brokers(), cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		a.publisher = p
	default:
		a.publisher = events.Nop{}
	}
	publish := events.PublishHook(a.publisher)

	a.authn = auth.NewAuthenticator(cfg.JWTSecret, auth.StoreUsers{Store: a.store})
	a.cart = cart.NewService(a.store, logger)
	a.orders = orders.NewService(a.store, a.gateways(), orders.Config{
		Currency:       cfg.Currency,
		GatewayTimeout: cfg.GatewayTimeout,
	}, logger, publish)
	a.reconcile = payments.NewReconciler(a.store, payments.ReconcilerConfig{
		RazorpayWebhookSecret: cfg.RazorpayWebhookSecret,
		StripeWebhookSecret:   cfg.StripeWebhookSecret,
		Currency:              cfg.Currency,
	}, logger, publish)

	logger.Info("service configuration",
		zap.String("store", cfg.StoreDriver),
		zap.String("events_sink", cfg.EventsSink),
		zap.Bool("idempotency", a.idem != nil),
		zap.Bool("run_local", cfg.RunLocal))

	if cfg.RunLocal && cfg.StoreDriver == "memory" {
		if tok, err := a.authn.Issue(1, 24*time.Hour); err == nil {
			logger.Info("demo user token", zap.String("token", tok))
		}
	}
	return a, nil
}

// gateways builds the gateway for each configured online method. Local runs without Razorpay
// keys get a static gateway; its webhooks are signed with RAZORPAY_WEBHOOK_SECRET.
func (a *app) gateways() map[store.PaymentMethod]payments.Gateway {
	cfg := a.cfg
	gws := map[store.PaymentMethod]payments.Gateway{}
	switch {
	case cfg.RazorpayKeyID != "" && cfg.RazorpayKeySecret != "":
		gws[store.PaymentMethodRazorpay] = payments.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	case cfg.RunLocal:
		gws[store.PaymentMethodRazorpay] = payments.NewStatic("razorpay", "rzp_local")
	}
	if cfg.StripeSecretKey != "" {
		gws[store.PaymentMethodStripe] = payments.NewStripe(cfg.StripeSecretKey, cfg.StripePublishableKey)
	}
	return gws
}

func (a *app) registerRoutes(r *gin.Engine) {
	handlers.RegisterRoutes(r, handlers.HandlerConfig{
		Cart:        a.cart,
		Orders:      a.orders,
		Reconciler:  a.reconcile,
		Idempotency: a.idem,
		Auth:        a.authn.Middleware(),
		Logger:      a.logger,
	})
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("closing publisher", zap.Error(err))
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
