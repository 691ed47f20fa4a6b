package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"groupchat/internal/auth"
	"groupchat/internal/broadcast"
	"groupchat/internal/config"
	"groupchat/internal/domain"
	"groupchat/internal/handler"
	"groupchat/internal/middleware"
	"groupchat/internal/notify"
	"groupchat/internal/observability"
	"groupchat/internal/repository/memory"
	"groupchat/internal/repository/postgres"
	"groupchat/internal/service"
	"groupchat/internal/websocket"
)

const (
	rabbitMQConnectAttempts = 8
	dbStatsInterval         = 15 * time.Second
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting chat server",
		slog.String("environment", cfg.Environment),
		slog.String("storage", cfg.StorageDriver))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store     domain.Store
		directory domain.UserDirectory
		db        *sql.DB
	)
	switch cfg.StorageDriver {
	case config.StorageMemory:
		mem := memory.NewStore()
		store, directory = mem, mem
		slog.Warn("using in-memory storage; data is lost on restart")
	default:
		var err error
		db, err = config.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer db.Close()

		migrateCtx, migrateCancel := context.WithTimeout(ctx, 30*time.Second)
		err = postgres.Migrate(migrateCtx, db)
		migrateCancel()
		if err != nil {
			slog.Error("failed to migrate database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("connected to postgresql")

		store = postgres.NewStore(db, cfg.DBTxTimeout)
		directory = postgres.NewUserDirectory(db)
		go recordDBStats(ctx, db)
	}

	var (
		rmq      *notify.RabbitMQ
		pusher   *notify.Notifier
		notifier service.Notifier
	)
	if cfg.PushEnabled {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		var err error
		rmq, err = notify.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL, rabbitMQConnectAttempts)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()

		pusher = notify.NewNotifier(rmq)
		notifier = pusher
		slog.Info("push notifications enabled")

		if cfg.PushWorkerEnabled {
			msgs, err := rmq.ConsumeJobs()
			if err != nil {
				slog.Error("failed to consume push jobs", slog.String("error", err.Error()))
				os.Exit(1)
			}
			go notify.NewDispatcher(notify.LogSender{}).Run(ctx, msgs)
			slog.Info("push dispatcher started")
		}
	}

	registry := websocket.NewRegistry(cfg.WSHeartbeatInterval)
	registryDone := make(chan struct{})
	go func() {
		defer close(registryDone)
		if err := registry.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("registry stopped", slog.String("error", err.Error()))
		}
	}()
	slog.Info("connection registry started")

	fanout := broadcast.NewFanout(registry)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)

	groupService := service.NewGroupService(store, fanout)
	inviteService := service.NewInviteService(store, fanout, notifier)
	joinRequestService := service.NewJoinRequestService(store, fanout, notifier)
	messageService := service.NewMessageService(store, directory, fanout, notifier)

	gateway := websocket.NewGateway(registry, verifier, groupService, messageService, websocket.GatewayConfig{
		AuthTimeout:  cfg.WSAuthTimeout,
		MessageRate:  rate.Limit(cfg.RateLimitRPS),
		MessageBurst: cfg.RateLimitBurst,
	})

	openAPI, err := middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig(cfg.OpenAPIValidation))
	if err != nil {
		slog.Error("failed to load openapi document", slog.String("error", err.Error()))
		os.Exit(1)
	}

	apiLimiter := middleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer apiLimiter.Stop()

	router := handler.NewRouter(handler.RouterConfig{
		Groups:         handler.NewGroupHandler(groupService),
		JoinRequests:   handler.NewJoinRequestHandler(joinRequestService),
		Invites:        handler.NewInviteHandler(inviteService),
		Messages:       handler.NewMessageHandler(messageService),
		WebSocket:      handler.NewWebSocketHandler(gateway, cfg.Origins()),
		Verifier:       verifier,
		AllowedOrigins: cfg.Origins(),
		APILimiter:     apiLimiter,
		OpenAPI:        openAPI,
		Ready:          handler.Ready(db, rmq),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("chat server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	// Hijacked websocket connections are not covered by Shutdown; stopping
	// the registry closes them.
	cancel()
	<-registryDone

	if pusher != nil {
		pusher.Wait()
	}

	slog.Info("server stopped gracefully")
}

// recordDBStats exports connection pool gauges until ctx is done.
func recordDBStats(ctx context.Context, db *sql.DB) {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.RecordDBStats(db.Stats())
		}
	}
}
