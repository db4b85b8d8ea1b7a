package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/you/hockey-training/internal/notify"
	"github.com/you/hockey-training/pkg/config"
	"github.com/you/hockey-training/pkg/mq"
)

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func main() {
	_ = godotenv.Load(".env")
	cfg := must(config.Load())

	cons := must(mq.NewConsumer(cfg.RabbitURL, cfg.EventsExchange, cfg.NotifyQueue, notify.Bindings))
	defer cons.Close()

	worker := notify.NewWorker(cons, notify.NewConsole())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	log.Println("[notify] consuming", cfg.NotifyQueue)
	if err := worker.Run(ctx); err != nil {
		log.Fatal(err)
	}
	log.Println("[notify] stopped")
}
