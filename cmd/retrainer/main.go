package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"analyser-ml/internal/config"
	"analyser-ml/internal/retrainer"
	"analyser-ml/internal/trainer"
)

func init() {
	if os.Getenv("RUNNING_IN_DOCKER") == "" {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Println("No .env file found (this is fine in Docker)")
		}
	}
}

func main() {
	cfg, err := config.SetupRetrainer()
	if err != nil {
		log.Panic(err)
	}
	defer cfg.Pg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := retrainer.New(cfg.Retrainer, cfg.Pg, func(ctx context.Context) (trainer.Result, error) {
		return trainer.Run(ctx, cfg.Pg, cfg.Trainer)
	})

	if err := r.Run(ctx); err != nil {
		log.Fatalf("Retrainer stopped with error: %v", err)
	}
}
