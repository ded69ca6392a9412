package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ecombase/checkout/internal/cache"
	"github.com/ecombase/checkout/internal/catalog"
	"github.com/ecombase/checkout/internal/config"
	"github.com/ecombase/checkout/internal/inventory"
	kafkax "github.com/ecombase/checkout/internal/kafka"
	"github.com/ecombase/checkout/internal/logx"
	"github.com/ecombase/checkout/internal/orders"
	"github.com/ecombase/checkout/internal/postgres"
	"github.com/ecombase/checkout/internal/redisx"
	"github.com/ecombase/checkout/internal/scheduler"
)

// The worker drains the reservation-expiry delay queue. It runs separately
// from the API so abandoned checkouts are released even while the API restarts.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName + "-worker")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer pool.Close()
	runner := &postgres.TxRunner{Pool: pool}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderEvents, 1024, log)
	prod.Start(ctx)

	orderRepo := &orders.Repo{}
	orderSvc := orders.NewService(
		orderRepo, &orders.UserRepo{}, &orders.AddressRepo{}, &orders.ShippingMethodRepo{},
		&orders.CouponRepo{}, &catalog.Repo{}, cache.New(rdb), cfg.Currency, log,
	)
	queue := scheduler.New(rdb, log)
	invMgr := inventory.NewManager(
		&inventory.Repo{}, orderRepo, orderSvc, runner, pool, queue, prod,
		cfg.ServiceName+"-worker", time.Duration(cfg.ReservationExpiry)*time.Minute, log,
	)

	go queue.Run(ctx, time.Duration(cfg.ExpiryPollInterval)*time.Second, invMgr.CheckExpired)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down worker...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	prod.Close()
	prod.WaitClosed()
}
