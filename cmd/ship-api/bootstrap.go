package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shipdispatch/config"
	"shipdispatch/internal/api/dispatchapi"
	"shipdispatch/internal/broker/kafka"
	"shipdispatch/internal/cache/geocache"
	"shipdispatch/internal/notify"
	"shipdispatch/internal/services/dispatch"
	"shipdispatch/internal/services/geotrack"
	"shipdispatch/internal/services/proximity"
	"shipdispatch/internal/services/tracking"
	"shipdispatch/internal/services/transit"
	"shipdispatch/internal/storage/pgship"
)

type shipAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     shipAPIOpts
	api      *dispatchapi.API
	geo      *geotrack.Service
	disp     *dispatch.Service
	prox     *proximity.Monitor
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapShipAPI() *shipAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.Dispatch.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.Dispatch.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "ship-api"
	}
	locationTopic := cfg.Kafka.CourierLocationTopic
	if locationTopic == "" {
		locationTopic = "courier.location"
	}
	posTTL := time.Duration(cfg.Dispatch.PositionTTLSeconds) * time.Second
	if posTTL <= 0 {
		posTTL = 5 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	gc := geocache.New(redisAddr, posTTL)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, locationTopic, consumerGroup)

	ledger := tracking.New(st, nil)
	geoSvc := geotrack.New(gc, st, nil)

	nearbyTopic := cfg.Kafka.CourierNearbyTopic
	if nearbyTopic == "" {
		nearbyTopic = "courier.nearby"
	}
	prox := proximity.New(st, gc, producer, nearbyTopic,
		cfg.Dispatch.ProximityThresholdMeters,
		time.Duration(cfg.Dispatch.ProximityFlagTTLSeconds)*time.Second, nil)

	disp := dispatch.New(st, st, st, st, ledger, producer, notify.LogSink{}, dispatch.Config{
		SearchRadiusKm:        cfg.Dispatch.SearchRadiusKm,
		SearchRadiusCeilingKm: cfg.Dispatch.SearchRadiusCeilingKm,
		CandidateLimit:        cfg.Dispatch.CandidateLimit,
		MaxOrderDifference:    cfg.Dispatch.MaxOrderDifference,
		RetryInterval:         time.Duration(cfg.Dispatch.RetryIntervalSeconds) * time.Second,
		MaxRetries:            cfg.Dispatch.MaxAssignmentRetries,
		AssignedTopic:         cfg.Kafka.ShipmentAssignedTopic,
		RejectionTopic:        cfg.Kafka.ShipperRejectionTopic,
		AlertTopic:            cfg.Kafka.AdminAlertTopic,
	})

	hopDelay := time.Duration(cfg.Dispatch.TransitHopDelaySeconds) * time.Second
	planner := transit.NewPlanner(st, transit.PlannerConfig{HopDelay: hopDelay})
	disp.SetScheduler(transit.NewService(planner, st))

	api := dispatchapi.New(disp, geoSvc, ledger, st, prox)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &shipAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: shipAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   os.Getenv("swaggerPath"),
			topic:         locationTopic,
			consumerGroup: consumerGroup,
		},
		api:      api,
		geo:      geoSvc,
		disp:     disp,
		prox:     prox,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgship.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgship.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *shipAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *shipAPIApp) Run() error {
	return runShipAPI(a.ctx, a.opts, a.api, a.geo, a.disp, a.prox, a.consumer)
}
