package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ecombase/checkout/internal/cache"
	"github.com/ecombase/checkout/internal/catalog"
	"github.com/ecombase/checkout/internal/checkout"
	"github.com/ecombase/checkout/internal/config"
	"github.com/ecombase/checkout/internal/httpx"
	"github.com/ecombase/checkout/internal/inventory"
	kafkax "github.com/ecombase/checkout/internal/kafka"
	"github.com/ecombase/checkout/internal/logx"
	"github.com/ecombase/checkout/internal/orders"
	"github.com/ecombase/checkout/internal/payments"
	"github.com/ecombase/checkout/internal/postgres"
	"github.com/ecombase/checkout/internal/redisx"
	"github.com/ecombase/checkout/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer pool.Close()
	runner := &postgres.TxRunner{Pool: pool}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	c := cache.New(rdb)

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderEvents, 1024, log)
	prod.Start(ctx)

	// Services
	orderRepo := &orders.Repo{}
	ledger := &catalog.Repo{}
	orderSvc := orders.NewService(
		orderRepo, &orders.UserRepo{}, &orders.AddressRepo{}, &orders.ShippingMethodRepo{},
		&orders.CouponRepo{}, ledger, c, cfg.Currency, log,
	)
	queue := scheduler.New(rdb, log)
	invMgr := inventory.NewManager(
		&inventory.Repo{}, orderRepo, orderSvc, runner, pool, queue, prod,
		cfg.ServiceName, time.Duration(cfg.ReservationExpiry)*time.Minute, log,
	)
	paySvc := payments.NewService(&payments.Repo{}, orderSvc, invMgr, runner, prod, cfg.ServiceName, log)
	orch := checkout.NewOrchestrator(
		runner, orderSvc, invMgr, paySvc, payments.NewMockGateway(), prod,
		cfg.ServiceName, cfg.GatewaySuccessURL, cfg.GatewayCancelURL, log,
	)

	// HTTP
	router := httpx.NewRouter()
	h := &httpx.CheckoutHandler{
		Orchestrator: orch,
		Payments:     paySvc,
		Orders:       orderRepo,
		DB:           pool,
		Cache:        c,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // close inbox -> flush & close writer
	cancel()          // stop producer loop
	prod.WaitClosed() // drain
}
