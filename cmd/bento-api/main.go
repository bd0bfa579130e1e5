// README: Entry point; loads config, wires services, starts the HTTP
// server, websocket hub, and background samplers.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"bento/internal/config"
	"bento/internal/events"
	httptransport "bento/internal/http"
	"bento/internal/infra"
	"bento/internal/modules/courier"
	"bento/internal/modules/follow"
	"bento/internal/modules/order"
	"bento/internal/modules/pickup"
	"bento/internal/modules/pricing"
	"bento/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var verifier infra.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			logger.Fatal("firebase init", zap.Error(err))
		}
	} else {
		logger.Warn("BENTO_FIREBASE_PROJECT_ID unset, using insecure verifier")
		verifier = infra.InsecureVerifier{}
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("db init", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer func() { _ = redisClient.Close() }()

	orderStore := order.NewPgStore(dbPool)
	followStore := follow.NewPgStore(dbPool)
	pricingStore := pricing.NewStore(dbPool)
	for _, m := range []interface {
		Migrate(context.Context) error
	}{orderStore, followStore, pricingStore} {
		if err := m.Migrate(ctx); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	var broker events.Publisher
	if cfg.AMQP.URL != "" {
		rabbit, err := events.NewRabbitPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Fatal("rabbitmq init", zap.Error(err))
		}
		defer func() { _ = rabbit.Close() }()
		broker = rabbit
	}
	sink := events.NewFanout(hub, broker, logger)

	pricingSvc := pricing.NewService(pricingStore)
	pickupMgr := pickup.NewManager(
		pickup.NewRedisStore(redisClient),
		nil,
		time.Duration(cfg.Pickup.WindowSeconds)*time.Second,
		logger,
	)
	orderSvc := order.NewService(orderStore, pickupMgr, pricingSvc, sink, nil, logger)
	pickupMgr.SetDeliverer(orderSvc)

	courierSvc := courier.NewService(
		courier.NewRedisStore(redisClient),
		orderSvc,
		hub,
		courier.Config{
			SampleInterval: time.Duration(cfg.Courier.SampleSeconds) * time.Second,
			RadiusKm:       cfg.Courier.RadiusKm,
			MinResults:     cfg.Courier.MinResults,
		},
		logger,
	)
	orderSvc.SetDispatcher(courierSvc)

	followSvc := follow.NewService(followStore, logger)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Order:    orderSvc,
		Pickup:   pickupMgr,
		Courier:  courierSvc,
		Follow:   followSvc,
		Hub:      hub,
		Verifier: verifier,
		Log:      logger,
	})

	go courierSvc.RunSampler(ctx)

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("serve", zap.Error(err))
	}
}
