package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	"shipdispatch/internal/api/dispatchapi"
	"shipdispatch/internal/broker/messages"
	"shipdispatch/internal/models"
)

type shipAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type geoUpdater interface {
	UpdatePosition(ctx context.Context, pos models.Position) error
	SetOffline(ctx context.Context, courierID uint64) error
}

type offlineHandler interface {
	HandleCourierOffline(ctx context.Context, courierID uint64) error
}

type proximityChecker interface {
	Check(ctx context.Context, courierID, shipmentID uint64, lat, lng float64)
}

func runShipAPI(ctx context.Context, opts shipAPIOpts, api *dispatchapi.API, geo geoUpdater, disp offlineHandler, prox proximityChecker, consumer kafkaConsumer) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8080"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()
	r.Mount("/", api.Routes())

	if opts.swaggerPath != "" {
		if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
			return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
		}
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, opts.swaggerPath)
		})
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/swagger.json")))
	}

	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		_ = consumer.Consume(ctx, func(_ []byte, value []byte) error {
			return applyLocationMessage(ctx, geo, disp, prox, value)
		})
	}()

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}

// applyLocationMessage mirrors POST /location for updates arriving over
// the bus: courier apps publish positions to the location topic.
func applyLocationMessage(ctx context.Context, geo geoUpdater, disp offlineHandler, prox proximityChecker, value []byte) error {
	var m messages.CourierLocation
	if err := json.Unmarshal(value, &m); err != nil {
		return err
	}

	if m.Online != nil && !*m.Online {
		if err := geo.SetOffline(ctx, m.CourierID); err != nil {
			return err
		}
		return disp.HandleCourierOffline(ctx, m.CourierID)
	}

	err := geo.UpdatePosition(ctx, models.Position{
		CourierID: m.CourierID,
		Lat:       m.Lat,
		Lng:       m.Lng,
		Accuracy:  m.Accuracy,
		Speed:     m.Speed,
		Heading:   m.Heading,
		Timestamp: m.At,
	})
	if err != nil {
		return err
	}

	if prox != nil && m.ShipmentID != 0 {
		prox.Check(ctx, m.CourierID, m.ShipmentID, m.Lat, m.Lng)
	}
	return nil
}
