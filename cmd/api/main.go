// Command api serves the MatchPass ledger: consumption, unlocks, promo
// redemption, checkout and the Stripe webhook.
//
// With APP_ENV=local it listens on PORT. Under AWS Lambda the same chi router
// is fronted by the API Gateway proxy adapter.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"golang.org/x/sync/errgroup"

	"matchpass/internal/config"
	"matchpass/internal/core"
)

const drainTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "matchpass-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel).With("service", cfg.Service, "env", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := wire(ctx, cfg, logger)
	if err != nil {
		return err
	}
	srv, err := buildServer(cfg, logger, deps)
	if err != nil {
		deps.close()
		return fmt.Errorf("build server: %w", err)
	}

	logger.Info("ledger api ready", "version", cfg.Build.Version, "commit", cfg.Build.Commit)
	if isLambdaEnvironment() {
		// The execution environment is frozen, not stopped, so the pool
		// stays open until Lambda reclaims it.
		lambda.Start(chiadapter.New(srv.Router()).ProxyWithContext)
		return nil
	}
	return serve(ctx, srv, ":"+cfg.Server.Port, logger)
}

func isLambdaEnvironment() bool {
	for _, k := range []string{"AWS_LAMBDA_RUNTIME_API", "_LAMBDA_SERVER_PORT"} {
		if _, ok := os.LookupEnv(k); ok {
			return true
		}
	}
	return false
}

// serve runs the listener until ctx is cancelled, then drains in-flight
// requests before releasing the server's resources.
func serve(ctx context.Context, srv *core.Server, addr string, logger *slog.Logger) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", addr)
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("draining connections")
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		return errors.Join(hs.Shutdown(drainCtx), srv.Shutdown(drainCtx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

// newLogger builds the JSON logger. Unknown levels fall back to info.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
