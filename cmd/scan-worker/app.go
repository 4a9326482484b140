package main

import (
	"context"
	"log/slog"

	"github.com/BearBump/ScanBox/config"
	"github.com/BearBump/ScanBox/internal/broker/kafka"
	"github.com/BearBump/ScanBox/internal/services/audit"
	"golang.org/x/sync/errgroup"
)

type eventSource interface {
	Consume(ctx context.Context, handler kafka.Handler) error
	Close() error
}

type workerFactories struct {
	newConsumer func(cfg *config.Config, topic, group string) eventSource
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newConsumer: func(cfg *config.Config, topic, group string) eventSource {
			return kafka.NewConsumer(cfg.KafkaBrokers(), topic, group)
		},
	}
}

type workerSettings struct {
	topic    string
	group    string
	httpAddr string
}

func settingsFromConfig(cfg *config.Config) workerSettings {
	s := workerSettings{
		topic:    cfg.Kafka.ScanEventsTopicName,
		group:    cfg.ScanBox.KafkaConsumerGroup,
		httpAddr: cfg.ScanBox.WorkerHTTPAddr,
	}
	if s.topic == "" {
		s.topic = "scan.events"
	}
	if s.group == "" {
		s.group = "scan-worker"
	}
	if s.httpAddr == "" {
		s.httpAddr = ":8082"
	}
	return s
}

// RunScanWorker читает scan.events и отдаёт счётчики аудита по HTTP до отмены ctx.
func RunScanWorker(ctx context.Context, cfg *config.Config, f workerFactories, onListen func(httpAddr string)) error {
	s := settingsFromConfig(cfg)

	consumer := f.newConsumer(cfg, s.topic, s.group)
	defer func() { _ = consumer.Close() }()

	auditor := audit.New(slog.Default())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("consuming scan events", "topic", s.topic, "group", s.group)
		return consumer.Consume(gctx, auditor.Handle)
	})
	g.Go(func() error {
		return runWorkerHTTPServer(gctx, workerHTTPOpts{
			httpAddr: s.httpAddr,
			onListen: onListen,
			auditor:  auditor,
			topic:    s.topic,
			group:    s.group,
		})
	})
	return g.Wait()
}
