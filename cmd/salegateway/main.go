package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tokensale/observability/logging"
	saleotel "tokensale/observability/otel"
	"tokensale/services/salegateway"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./salegateway.yaml", "Path to the gateway configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SALE_ENV"))
	logger := logging.Setup("salegateway", env)

	cfg, err := salegateway.LoadConfig(*configFile)
	if err != nil {
		logger.Error("failed to load config", "path", *configFile, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := saleotel.Init(ctx, saleotel.Config{
			ServiceName: "salegateway",
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     saleotel.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", "error", err)
			}
		}()
	}

	store, err := salegateway.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	receipts, err := salegateway.OpenReceiptStore(cfg.ReceiptsPath)
	if err != nil {
		logger.Error("failed to open receipt store", "path", cfg.ReceiptsPath, "error", err)
		os.Exit(1)
	}
	defer receipts.Close()

	authSecret := cfg.AuthSecret()
	if authSecret == "" {
		logger.Error("JWT signing secret missing", "env", cfg.Auth.SecretEnv)
		os.Exit(1)
	}
	webhookSecret := cfg.WebhookSecret()
	if webhookSecret == "" {
		logger.Error("webhook secret missing", "env", cfg.WebhookSecretEnv)
		os.Exit(1)
	}

	node := salegateway.NewRPCNodeClient(cfg.NodeURL, cfg.NodeToken(), cfg.OperatorAddress)
	auth := salegateway.NewAuthenticator([]byte(authSecret), cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.ClockSkew.Duration)

	srv := salegateway.NewServer(store, receipts, node, auth, logger, salegateway.ServerOptions{
		WebhookSecret: []byte(webhookSecret),
		InvoiceTTL:    cfg.InvoiceTTL.Duration,
		ReconDir:      cfg.ReconDir,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving fiat gateway", "addr", cfg.ListenAddress, "node", cfg.NodeURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gateway shutdown failed", "error", err)
	}
	logger.Info("gateway stopped")
}
