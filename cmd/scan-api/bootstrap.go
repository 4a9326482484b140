package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ScanBox/config"
	scansapi "github.com/BearBump/ScanBox/internal/api/scans_api"
	"github.com/BearBump/ScanBox/internal/broker/kafka"
	"github.com/BearBump/ScanBox/internal/cache/rediscache"
	"github.com/BearBump/ScanBox/internal/carrier"
	"github.com/BearBump/ScanBox/internal/services/scans"
	"github.com/BearBump/ScanBox/internal/storage/memscans"
	"github.com/BearBump/ScanBox/internal/storage/pgscans"
)

type scanAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   scanAPIOpts
	api    *scansapi.ScansAPI
	db     pinger

	closers []func()
}

type repository interface {
	scans.Repository
	Close()
}

func mustBootstrapScanAPI() *scanAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("config parse error, %v", err))
	}

	app, err := bootstrapScanAPI(cfg, swaggerPath)
	if err != nil {
		panic(err)
	}
	return app
}

func bootstrapScanAPI(cfg *config.Config, swaggerPath string) (*scanAPIApp, error) {
	httpAddr := cfg.ScanBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	if cfg.ScanBox.APIToken == "" {
		return nil, fmt.Errorf("scanbox.api_token is required")
	}
	topic := cfg.Kafka.ScanEventsTopicName
	if topic == "" {
		topic = "scan.events"
	}
	cacheTTL := time.Duration(cfg.ScanBox.RecordCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	classifier, err := carrier.NewClassifier(cfg.CarrierRules())
	if err != nil {
		return nil, fmt.Errorf("carrier table: %w", err)
	}
	if unrouted := classifier.Unrouted(); len(unrouted) > 0 {
		// фронтенд знает этих перевозчиков, но сохранение их не примет
		slog.Warn("carriers without a classification rule", "carriers", unrouted, "rules", classifier.Rules())
	}

	app := &scanAPIApp{
		opts: scanAPIOpts{
			httpAddr:    httpAddr,
			swaggerPath: swaggerPath,
		},
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, repo.Close)
	if p, ok := repo.(pinger); ok {
		app.db = p
	}

	var svc *scans.Service
	var rl *rediscache.RateLimiter
	if cfg.Redis.Host != "" {
		rc := rediscache.New(cfg.RedisAddr())
		rl = rc.Limiter()
		app.closers = append(app.closers, func() { _ = rc.Close() })
		svc = scans.New(repo, classifier, rc, cacheTTL)
	} else {
		svc = scans.New(repo, classifier, nil, 0)
	}

	if cfg.Kafka.Host != "" {
		producer := kafka.NewProducer(cfg.KafkaBrokers())
		app.closers = append(app.closers, func() { _ = producer.Close() })
		svc.WithPublisher(producer, topic)
	}

	app.api = scansapi.New(svc, cfg.ScanBox.APIToken)
	if rl != nil {
		app.api.WithSubmitRateLimit(rl, int64(cfg.ScanBox.SubmitRateLimitPerMinute)).
			WithTrustedStationHeader(cfg.ScanBox.TrustStationHeader)
	}

	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return app, nil
}

func openRepository(cfg *config.Config) (repository, error) {
	switch cfg.ScanBox.StorageDriver {
	case "memory":
		slog.Warn("using in-memory storage, records are lost on restart")
		return memscans.New(), nil
	case "", "postgres":
		st, err := openPostgresWithRetry(cfg.PostgresDSN(), 60*time.Second)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.ScanBox.StorageDriver)
	}
}

func openPostgresWithRetry(connString string, wait time.Duration) (*pgscans.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgscans.New(connString)
		if err == nil {
			return st, nil
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	return nil, fmt.Errorf("postgres is not ready after %s: %w", wait, lastErr)
}

func (a *scanAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *scanAPIApp) Run() error {
	return runScanAPI(a.ctx, a.opts, a.api, a.db)
}
