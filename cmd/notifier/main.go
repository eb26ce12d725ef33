package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/digikrishi/krishi-market/internal/config"
	kafkax "github.com/digikrishi/krishi-market/internal/kafka"
	"github.com/digikrishi/krishi-market/internal/logx"
	"github.com/digikrishi/krishi-market/internal/notifier"
	"github.com/digikrishi/krishi-market/internal/orders"
	"github.com/digikrishi/krishi-market/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.LoadBase()
	if err != nil {
		bootLog := logx.New("order-notifier", "info")
		bootLog.Fatal().Err(err).Msg("config")
	}
	log := logx.New(cfg.ServiceName+"-notifier", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notifier.Service{
		Redis: rdb,
		Sink:  notifier.LogSink{Log: log.With().Str("component", "notify").Logger()},
		Log:   log,
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.Notifier.Group, orders.Topics, cfg.Notifier.Workers, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info().Str("group", cfg.Notifier.Group).Strs("topics", orders.Topics).
			Int("workers", cfg.Notifier.Workers).Msg("notifier consumer started")
		if err := cons.Start(ctx, svc.Handle); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info().Msg("shutting down consumer")
	case <-ctx.Done():
	}
	cancel()
	<-done
}
