package main

import (
	"context"
	"time"

	"github.com/digikrishi/krishi-market/internal/config"
	"github.com/digikrishi/krishi-market/internal/logx"
	"github.com/digikrishi/krishi-market/internal/postgres"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.LoadBase()
	if err != nil {
		bootLog := logx.New("migrate", "info")
		bootLog.Fatal().Err(err).Msg("config")
	}
	log := logx.New(cfg.ServiceName+"-migrate", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, 1)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	applied, err := postgres.Migrate(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	if len(applied) == 0 {
		log.Info().Msg("schema up to date")
		return
	}
	log.Info().Strs("applied", applied).Msg("migrations applied")
}
