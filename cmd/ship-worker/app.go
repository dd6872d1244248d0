package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shipdispatch/config"
	"shipdispatch/internal/broker/kafka"
	"shipdispatch/internal/notify"
	"shipdispatch/internal/services/dispatch"
	"shipdispatch/internal/services/tracking"
	"shipdispatch/internal/services/transit"
	"shipdispatch/internal/storage/pgship"
)

// workerStorage is everything the worker needs from the database;
// *pgship.Storage satisfies the whole set.
type workerStorage interface {
	dispatch.ShipmentRepository
	dispatch.CourierRegistry
	dispatch.OfficeRegistry
	dispatch.Queue
	transit.JobClaimer
	transit.JobStore
	transit.OfficeStore
	tracking.Repository
}

type workerFactories struct {
	newStorage  func(cfg *config.Config) (st workerStorage, closeFn func(), err error)
	newProducer func(cfg *config.Config) dispatch.Publisher
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStorage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgship.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) dispatch.Publisher {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
	}
}

func RunShipWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	hopDelay := time.Duration(cfg.Dispatch.TransitHopDelaySeconds) * time.Second
	if hopDelay <= 0 {
		hopDelay = 30 * time.Second
	}
	pollInterval := time.Duration(cfg.Dispatch.TransitPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.Dispatch.TransitBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.Dispatch.TransitConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	retryInterval := time.Duration(cfg.Dispatch.RetryIntervalSeconds) * time.Second
	if retryInterval <= 0 {
		retryInterval = 5 * time.Minute
	}

	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	ledger := tracking.New(st, nil)

	disp := dispatch.New(st, st, st, st, ledger, producer, notify.LogSink{}, dispatch.Config{
		SearchRadiusKm:        cfg.Dispatch.SearchRadiusKm,
		SearchRadiusCeilingKm: cfg.Dispatch.SearchRadiusCeilingKm,
		CandidateLimit:        cfg.Dispatch.CandidateLimit,
		MaxOrderDifference:    cfg.Dispatch.MaxOrderDifference,
		RetryInterval:         retryInterval,
		MaxRetries:            cfg.Dispatch.MaxAssignmentRetries,
		AssignedTopic:         cfg.Kafka.ShipmentAssignedTopic,
		RejectionTopic:        cfg.Kafka.ShipperRejectionTopic,
		AlertTopic:            cfg.Kafka.AdminAlertTopic,
	})

	planner := transit.NewPlanner(st, transit.PlannerConfig{HopDelay: hopDelay})
	disp.SetScheduler(transit.NewService(planner, st))

	runner := transit.NewRunner(st, st, st, ledger, disp).
		WithSettings(pollInterval, batchSize, concurrency, 0)

	retry := dispatch.NewRetryProcessor(disp, batchSize)
	if err := retry.Start(ctx, retryInterval); err != nil {
		return err
	}
	defer retry.Stop()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr: cfg.Dispatch.WorkerHTTPAddr,
			runner:   runner,
			retry:    retry,
			cfg:      cfg,
		})
	}()

	slog.Info("ship worker started",
		"hop_delay", hopDelay.String(),
		"poll_interval", pollInterval.String(),
		"retry_interval", retryInterval.String())

	runErr := runner.Run(ctx)

	select {
	case err := <-httpErr:
		if err != nil && err != context.Canceled {
			slog.Error("worker http server", "error", err.Error())
		}
	case <-time.After(3 * time.Second):
	}

	return runErr
}
