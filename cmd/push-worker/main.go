package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupchat/internal/config"
	"groupchat/internal/notify"
	"groupchat/internal/observability"
)

// push-worker consumes push jobs published by chat-server instances and
// hands them to the device sender.
func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting push worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, 60*time.Second)
	rmq, err := notify.NewRabbitMQWithRetry(connectCtx, cfg.RabbitMQURL, 8)
	connectCancel()
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rmq.Close()

	msgs, err := rmq.ConsumeJobs()
	if err != nil {
		slog.Error("failed to start consuming", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dispatcher := notify.NewDispatcher(notify.LogSender{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		dispatcher.Run(ctx, msgs)
	}()

	slog.Info("push worker is ready to process jobs")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		slog.Info("shutting down push worker")
	case <-done:
		slog.Warn("job channel closed")
	}

	cancel()
	<-done

	slog.Info("push worker stopped")
}
