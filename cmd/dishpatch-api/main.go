// README: Entry point for the order API; wires store, publisher, sinks, and the HTTP server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"dishpatch/internal/config"
	"dishpatch/internal/events"
	httptransport "dishpatch/internal/http"
	"dishpatch/internal/infra"
	"dishpatch/internal/modules/order"
	"dishpatch/internal/rooms"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := infra.Migrate(cfg.DB.DSN, cfg.DB.MigrationsDir); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer dbPool.Close()

	// Event delivery is best-effort: with the broker down the API keeps
	// serving and clients reconcile through refetch.
	var brokerSink events.Sink
	broker, err := events.DialAMQPBroker(cfg.Rabbit.URL, cfg.Rabbit.Exchange, log)
	if err != nil {
		log.WithError(err).Warn("rabbitmq unavailable, running REST-only")
	} else {
		brokerSink = broker
		defer broker.Close()
	}

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()
	roomChannel := rooms.NewChannel(redisClient)

	publisher := events.NewPublisher(brokerSink, roomChannel, log)
	orderStore := order.NewPGStore(dbPool)
	orderSvc := order.NewService(orderStore, publisher)

	router := httptransport.NewRouter(orderSvc, log)
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", cfg.HTTP.Addr).Info("order api listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
