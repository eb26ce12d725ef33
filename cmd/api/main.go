package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/digikrishi/krishi-market/internal/config"
	"github.com/digikrishi/krishi-market/internal/esewa"
	"github.com/digikrishi/krishi-market/internal/httpx"
	kafkax "github.com/digikrishi/krishi-market/internal/kafka"
	"github.com/digikrishi/krishi-market/internal/logx"
	"github.com/digikrishi/krishi-market/internal/orders"
	"github.com/digikrishi/krishi-market/internal/postgres"
	"github.com/digikrishi/krishi-market/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logx.New("order-api", "info")
		bootLog.Fatal().Err(err).Msg("config")
	}
	log := logx.New(cfg.ServiceName, cfg.LogLevel)

	// prices go out as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresPool)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer, one for all order topics
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(ctx)

	gw := &esewa.Gateway{
		FormURL:      cfg.Esewa.FormURL,
		MerchantCode: cfg.Esewa.MerchantCode,
		ProductCode:  cfg.Esewa.ProductCode,
		SecretKey:    cfg.Esewa.SecretKey,
		SuccessURL:   cfg.Esewa.CallbackURL,
		FailureURL:   cfg.Esewa.CallbackURL,
		TaxRate:      decimal.NewFromFloat(cfg.Esewa.TaxRate),
	}
	repo := &orders.Repo{DB: db}
	svc := &orders.Service{
		Store:       repo,
		Gateway:     gw,
		Producer:    prod,
		Redis:       rdb,
		Log:         log,
		ServiceName: cfg.ServiceName,
	}
	rec := &orders.Reconciler{
		Store:       repo,
		Gateway:     gw,
		Status:      esewa.NewStatusClient(cfg.Esewa.StatusURL, cfg.Esewa.StatusTimeout),
		Producer:    prod,
		Redis:       rdb,
		Log:         log.With().Str("component", "reconciler").Logger(),
		ServiceName: cfg.ServiceName,
	}
	auth := &httpx.Auth{Secret: []byte(cfg.JWTSecret)}

	router := httpx.NewRouter(log)
	router.Route(httpx.APIPrefix, func(r chi.Router) {
		oh := &httpx.OrdersHandler{
			Service:         svc,
			Reconciler:      rec,
			Auth:            auth,
			Limiter:         httpx.NewIPRateLimiter(cfg.Callback.RatePerSecond, cfg.Callback.Burst),
			Log:             log,
			SuccessRedirect: cfg.Esewa.SuccessRedirect,
			FailureRedirect: cfg.Esewa.FailureRedirect,
		}
		oh.Register(r)
		ph := &httpx.ProductsHandler{Service: svc, Auth: auth, Log: log}
		ph.Register(r)
	})

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete; late events are dropped")
	}
	prod.Close()      // stop accepting, flush what is buffered
	prod.WaitClosed() // writer goroutine exits after the flush
	cancel()
}
