package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"family-chat/internal/auth"
	"family-chat/internal/config"
	"family-chat/internal/db"
	"family-chat/internal/fanout"
	grpcserver "family-chat/internal/grpc"
	"family-chat/internal/handlers"
	"family-chat/internal/logger"
	"family-chat/internal/middleware"
	"family-chat/internal/observability"
	"family-chat/internal/presence"
	"family-chat/internal/rabbitmq"
	"family-chat/internal/ratelimit"
	"family-chat/internal/realtime"
	"family-chat/internal/repositories"
	"family-chat/internal/telemetry"
	"family-chat/internal/tracing"
	"family-chat/internal/ws"
)

const serviceName = "family-chat"

type stores struct {
	members  repositories.MembershipRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	close    func(context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("chat service stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.OTLPEndpoint, serviceName, cfg.Environment, log)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.close(context.Background()) }()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer func() { _ = publisher.Close() }()
	log.Info("amqp publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)
	events := observability.NewEventPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, serviceName, cfg.Environment, log)

	hub := ws.NewHub(log)
	var broadcaster realtime.Broadcaster = hub
	errCh := make(chan error, 3)
	if cfg.RedisAddr != "" {
		rdb, err := fanout.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		relay := fanout.NewRelay(hub, rdb, cfg.RedisChannel, log)
		broadcaster = relay
		go func() {
			if err := relay.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	tracker := presence.NewTracker()
	eventHandlers := realtime.NewHandlers(realtime.Dependencies{
		Members:  st.members,
		Messages: st.messages,
		Users:    st.users,
		Limiter:  ratelimit.New(cfg.RateLimitMaxMessages, cfg.RateLimitWindow),
		Rooms:    realtime.NewRoomManager(broadcaster),
		Audit:    audit,
		Log:      log,
		Timeout:  cfg.HandlerTimeout,
	})
	connections := realtime.NewConnectionManager(tracker, st.members, broadcaster, log)
	wsServer := ws.NewServer(hub, eventHandlers, connections, events, ws.Options{
		SendBuffer:     cfg.WSSendBuffer,
		PingInterval:   cfg.WSPingInterval,
		AllowedOrigins: cfg.AllowedOrigins(),
	}, log)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	authMiddleware := middleware.AuthMiddleware(verifier)
	presenceHandler := handlers.NewPresenceHandler(tracker, st.members, log)

	if cfg.Environment != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.RequestID())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", handlers.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", authMiddleware, wsServer.Handle)
	router.GET("/presence/:user_id", authMiddleware, presenceHandler.GetPresence)
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	health := grpcserver.NewHealthServer(log)
	go func() {
		if err := health.Serve(ctx, cfg.GRPCAddr); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		stop()
		return err
	}

	health.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return stores{}, err
		}
		if err := repositories.EnsureMongoIndexes(ctx, database); err != nil {
			_ = client.Disconnect(ctx)
			return stores{}, err
		}
		log.Info("using mongo store", zap.String("database", cfg.MongoDatabase))
		return stores{
			members:  repositories.NewMongoMembershipRepo(database),
			messages: repositories.NewMongoMessageRepo(database),
			users:    repositories.NewMongoUserRepo(database),
			close:    client.Disconnect,
		}, nil
	default:
		database, err := db.Connect(ctx, cfg.DatabaseDSN, log)
		if err != nil {
			return stores{}, err
		}
		return stores{
			members:  repositories.NewMembershipRepo(database),
			messages: repositories.NewMessageRepo(database),
			users:    repositories.NewUserRepo(database),
			close:    func(context.Context) error { return database.Close() },
		}, nil
	}
}
