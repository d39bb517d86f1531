package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"matchpass/internal/api/handlers"
	"matchpass/internal/auth"
	"matchpass/internal/billing"
	"matchpass/internal/config"
	"matchpass/internal/core"
	"matchpass/internal/db"
	"matchpass/internal/external"
	"matchpass/internal/ledger"
	"matchpass/internal/queue"
	"matchpass/internal/telemetry"
	"matchpass/internal/types"
)

const stripeHTTPTimeout = 20 * time.Second

// fulfiller is satisfied by *billing.FulfillmentService: the internal routes
// and the webhook share one instance.
type fulfiller interface {
	handlers.PaymentFulfiller
	handlers.PaymentEventHandler
}

// apiDeps is everything buildServer mounts. Tests fill it with fakes.
type apiDeps struct {
	Clock types.Clock

	Credits   handlers.CreditService
	Usage     handlers.UsageReporter
	Unlocks   handlers.UnlockReader
	Promo     handlers.PromoRedeemer
	Checkout  handlers.CheckoutCreator
	Fulfiller fulfiller
	Publisher handlers.PaymentEventPublisher // nil applies webhook events inline

	Authenticator core.Authenticator
	Tokens        handlers.TokenIssuer
	ServiceKeys   core.ServiceKeyVerifier
	Metrics       *telemetry.PrometheusMetrics
	Probes        []core.HealthProbe

	close func()
}

// wire builds the production dependency graph on top of a pgx pool.
func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*apiDeps, error) {
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.Database.EnsureSchema {
		if err := db.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensuring schema: %w", err)
		}
	}

	awsCfg, err := config.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		pool.Close()
		return nil, err
	}

	clock := types.RealClock{}
	prom := telemetry.NewPrometheusMetrics()
	metrics := telemetry.Fanout{prom}
	if cfg.Observability.EnableMetrics {
		metrics = append(metrics, telemetry.NewCloudWatchLedgerMetrics(
			cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger))
	}

	catalog := billing.NewStaticCatalog(cfg.Ledger.UnlockDuration)
	fulfillment := billing.NewFulfillmentService(billing.FulfillmentServiceConfig{
		Store:   db.NewFulfillmentStore(pool),
		Catalog: catalog,
		Policy:  billing.RenewalPolicy(cfg.Ledger.RenewalPolicy),
		Clock:   clock,
		Metrics: metrics,
		Logger:  logger,
	})

	stripeClient := external.NewStripeClient(&http.Client{Timeout: stripeHTTPTimeout}, external.StripeClientConfig{
		SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
		Logger:    logger,
	})

	tokens := auth.NewTokenService(db.NewAccountTokenRepository(pool), clock, logger)

	deps := &apiDeps{
		Clock: clock,
		Credits: ledger.NewCreditService(ledger.CreditServiceConfig{
			Store:   db.NewCreditStore(pool),
			Clock:   clock,
			Metrics: metrics,
			Logger:  logger,
		}),
		Usage:   ledger.NewAbuseGuard(db.NewConsumptionRepository(pool), cfg.Ledger.DailyFreeCap, clock),
		Unlocks: ledger.NewUnlockService(db.NewGrantRepository(pool), clock, logger),
		Promo: billing.NewPromoService(billing.PromoServiceConfig{
			Store:        db.NewPromoStore(pool),
			BuiltinCode:  cfg.Ledger.PromoCode,
			EligibleRole: types.Role(cfg.Ledger.PromoRole),
			Clock:        clock,
			Metrics:      metrics,
			Logger:       logger,
		}),
		Checkout:      billing.NewCheckoutService(stripeClient, catalog, cfg.Server.AppURL),
		Fulfiller:     fulfillment,
		Authenticator: tokens,
		Tokens:        tokens,
		ServiceKeys:   auth.NewServiceKeyVerifier(cfg.Security.ServiceKeyHash),
		Metrics:       prom,
		Probes:        []core.HealthProbe{db.NewPoolProbe(pool)},
		close:         pool.Close,
	}

	if cfg.AWS.PaymentEventQueue != "" {
		deps.Publisher = queue.NewPaymentEventPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)
	} else {
		logger.Info("no payment event queue configured; webhook events apply inline")
	}

	return deps, nil
}

// buildServer mounts every route group on a fresh core.Server.
func buildServer(cfg *config.Config, logger *slog.Logger, deps *apiDeps) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}

	srv.Authenticator = deps.Authenticator
	srv.ServiceKeys = deps.ServiceKeys
	srv.HealthProbes = deps.Probes
	if deps.Metrics != nil {
		srv.Metrics = deps.Metrics
		srv.MetricsHandler = deps.Metrics.Handler()
	}
	if deps.close != nil {
		srv.OnShutdown = append(srv.OnShutdown, deps.close)
	}

	ledgerHandler := handlers.NewLedgerHandler(deps.Credits, deps.Usage, deps.Unlocks, deps.Clock, srv.Validator, logger)
	purchaseHandler := handlers.NewPurchaseHandler(deps.Promo, deps.Checkout, srv.Validator, logger)
	paymentsHandler := handlers.NewPaymentsHandler(deps.Fulfiller, srv.Validator, logger)
	tokensHandler := handlers.NewTokensHandler(deps.Tokens, srv.Validator, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(
		&external.StripeVerifier{},
		deps.Publisher,
		deps.Fulfiller,
		cfg.Billing.StripeWebhookSecret,
		logger,
	)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		ledgerHandler.RegisterRoutes,
		purchaseHandler.RegisterRoutes,
		paymentsHandler.RegisterRoutes,
		tokensHandler.RegisterRoutes,
	)
	srv.PublicRouteRegistrars = append(srv.PublicRouteRegistrars,
		webhookHandler.RegisterRoutes,
	)

	srv.MountRoutes()
	return srv, nil
}
