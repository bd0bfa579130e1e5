// README: Demo courier agent. Connects the client library to a running
// server: announces availability, streams status events, and accepts the
// nearest open order.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"bento/internal/client"
	"bento/internal/geo"
	"bento/internal/modules/order"
	"bento/internal/types"
)

func main() {
	apiURL := envOr("BENTO_API_URL", "http://localhost:8080")
	wsURL := envOr("BENTO_WS_URL", "ws://localhost:8080/ws")
	token := os.Getenv("BENTO_TOKEN")
	if token == "" {
		log.Fatal("BENTO_TOKEN is required")
	}
	courierID := types.ID(envOr("BENTO_COURIER_ID", token))
	pos := geo.Coordinate{
		Lng:        envFloat("BENTO_LNG", 121.5654),
		Lat:        envFloat("BENTO_LAT", 25.0330),
		Provenance: geo.ProvenanceDevice,
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewAPI(apiURL, token, client.WithUnauthorizedHandler(func() {
		logger.Error("credentials rejected, stopping")
		stop()
	}))

	var geocoder geo.Geocoder
	if key := os.Getenv("BENTO_MAPS_API_KEY"); key != "" {
		g, err := geo.NewGoogleGeocoder(key)
		if err != nil {
			logger.Warn("geocoder init failed", zap.Error(err))
		} else {
			geocoder = g
		}
	}
	resolver := geo.NewResolver(geocoder, nil, pos, logger)
	proj := client.NewProjection()
	stream := client.NewWSStream(wsURL+"?token="+token, logger)
	consumer := client.NewConsumer(proj, api, stream, "courier", logger)
	rec := client.NewReconciler(proj, api)

	go stream.Run(ctx)
	go consumer.Run(ctx)

	if err := api.UpdateLocation(ctx, pos); err != nil {
		logger.Warn("location update failed", zap.Error(err))
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	var active types.ID

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if active != "" {
			if o, ok := proj.Order(active); ok && order.Terminal(o.Status) {
				logger.Info("order closed", zap.String("order_id", string(active)), zap.String("status", string(o.Status)))
				active = ""
			}
			continue
		}

		nearby, err := api.NearbyOrders(ctx, pos)
		if err != nil {
			logger.Warn("nearby orders failed", zap.Error(err))
			continue
		}
		if len(nearby) == 0 {
			continue
		}

		candidate := nearby[0].Order
		proj.ReplaceFromFetch(candidate, time.Now())
		err = rec.AcceptOrder(ctx, candidate.ID, courierID)
		switch {
		case err == nil:
			active = candidate.ID
			pickupAt := resolver.ResolvePickup(ctx, candidate.PickupLocation, geo.PickupContext{
				SellerAddress: candidate.PickupAddress,
			})
			logger.Info("accepted order",
				zap.String("order_id", string(candidate.ID)),
				zap.Float64("distance_km", geo.Distance(pos, pickupAt)),
				zap.String("pickup_source", string(pickupAt.Provenance)),
			)
		case errors.Is(err, order.ErrAlreadyAssigned):
			logger.Info("lost the race", zap.String("order_id", string(candidate.ID)))
		case errors.Is(err, client.ErrBusy):
			// A previous accept is still settling.
		default:
			logger.Warn("accept failed", zap.Error(err))
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
