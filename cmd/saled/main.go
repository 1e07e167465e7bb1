package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tokensale/config"
	"tokensale/core/ledger"
	"tokensale/core/pricing"
	"tokensale/core/state"
	"tokensale/observability"
	"tokensale/observability/logging"
	saleotel "tokensale/observability/otel"
	"tokensale/rpc"
	"tokensale/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SALE_ENV"))
	logger := logging.Setup("saled", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", "path", *configFile, "error", err)
		os.Exit(1)
	}
	if cfg.Environment != "" {
		env = cfg.Environment
	}
	if cfg.Log.File != "" {
		logger = logging.SetupWithRotation("saled", env, logging.Rotation{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLP.Enabled {
		shutdown, err := saleotel.Init(ctx, saleotel.Config{
			ServiceName: "saled",
			Environment: env,
			Endpoint:    cfg.OTLP.Endpoint,
			Insecure:    cfg.OTLP.Insecure,
			Headers:     saleotel.ParseHeaders(cfg.OTLP.Headers),
			Metrics:     cfg.OTLP.Metrics,
			Traces:      cfg.OTLP.Traces,
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

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	led := ledger.New(state.NewManager(db))
	led.SetMetrics(observability.Ledger())

	if cfg.PriceFeed.Enabled {
		feed, err := buildPriceFeed(cfg.PriceFeed)
		if err != nil {
			logger.Error("failed to build price feed", "error", err)
			os.Exit(1)
		}
		led.SetPriceFeed(feed)
		logger.Info("price feed wired",
			"url", cfg.PriceFeed.URL,
			"maxQuoteAgeSeconds", cfg.PriceFeed.MaxQuoteAgeSeconds,
			"maxDeviationBps", cfg.PriceFeed.MaxDeviationBps)
	}

	// Feed committed ledger events into the event metrics.
	_, updates, cancelEvents := led.SubscribeEvents(led.EventSeq(), cfg.RPC.EventBuffer)
	defer cancelEvents()
	go func() {
		for entry := range updates {
			if entry.Event != nil {
				observability.Events().RecordEvent(entry.Event.Type)
			}
		}
	}()

	authToken := cfg.AuthToken()
	if authToken == "" && !cfg.RPC.AllowInsecureAuth {
		logger.Error("RPC auth token missing", "env", cfg.RPC.AuthTokenEnv)
		os.Exit(1)
	}

	rpcServer := rpc.NewServer(led, logger, rpc.Options{
		AuthToken:          authToken,
		AllowInsecureAuth:  cfg.RPC.AllowInsecureAuth,
		TrustProxyHeaders:  cfg.RPC.TrustProxyHeaders,
		TrustedProxies:     cfg.RPC.TrustedProxies,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		EventBuffer:        cfg.RPC.EventBuffer,
		DefaultSlotSeconds: cfg.Sale.AntiBotSlotSeconds,
	})

	rpcHTTP := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           rpcServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsHTTP := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("serving JSON-RPC", "addr", cfg.ListenAddress)
		if err := rpcHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("rpc server: %w", err)
		}
	}()
	go func() {
		logger.Info("serving metrics", "addr", cfg.MetricsAddress)
		if err := metricsHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
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
	if err := rpcHTTP.Shutdown(shutdownCtx); err != nil {
		logger.Error("rpc shutdown failed", "error", err)
	}
	if err := metricsHTTP.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", "error", err)
	}
	logger.Info("daemon stopped")
}

func buildPriceFeed(cfg config.PriceFeed) (*pricing.Feed, error) {
	var source pricing.Source
	if url := strings.TrimSpace(cfg.URL); url != "" {
		httpSource, err := pricing.NewHTTPSource(url)
		if err != nil {
			return nil, err
		}
		source = httpSource
	} else {
		price, ok := new(big.Int).SetString(strings.TrimSpace(cfg.StaticPrice), 10)
		if !ok || price.Sign() <= 0 {
			return nil, fmt.Errorf("invalid static price %q", cfg.StaticPrice)
		}
		staticSource, err := pricing.NewStaticSource(price)
		if err != nil {
			return nil, err
		}
		source = staticSource
	}
	return pricing.NewFeed(source, pricing.GuardConfig{
		MaxQuoteAge:     time.Duration(cfg.MaxQuoteAgeSeconds) * time.Second,
		MaxDeviationBps: cfg.MaxDeviationBps,
	})
}
