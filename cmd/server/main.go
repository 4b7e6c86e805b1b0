package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hongminglow/all-in-iam/internal/auth"
	"github.com/hongminglow/all-in-iam/internal/config"
	"github.com/hongminglow/all-in-iam/internal/events"
	"github.com/hongminglow/all-in-iam/internal/events/amqp"
	"github.com/hongminglow/all-in-iam/internal/events/asynqsink"
	"github.com/hongminglow/all-in-iam/internal/idgen"
	"github.com/hongminglow/all-in-iam/internal/logging"
	"github.com/hongminglow/all-in-iam/internal/observability"
	"github.com/hongminglow/all-in-iam/internal/server"
	"github.com/hongminglow/all-in-iam/internal/storage/sqlstore"
	"github.com/hongminglow/all-in-iam/internal/users"
)

func main() {
	loadLocalEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialect, err := sqlstore.DialectFor(cfg.DatabaseDriver)
	if err != nil {
		return err
	}
	conn, err := sqlstore.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer conn.Close()
	if err := sqlstore.Migrate(ctx, conn, dialect, logger); err != nil {
		return err
	}

	ids, err := idgen.New(cfg.NodeID)
	if err != nil {
		return err
	}

	var rdb redis.Cmdable
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable; response cache disabled", slog.String("addr", cfg.RedisAddr), slog.Any("error", err))
		} else {
			rdb = client
		}
	}

	metrics := observability.NewMetrics()
	if err := metrics.InstrumentDB(conn, dialect.Name()); err != nil {
		return fmt.Errorf("register db metrics: %w", err)
	}
	publisher, publisherCloser, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer publisherCloser.Close()

	db := sqlstore.New(conn, dialect,
		sqlstore.WithPublisher(metrics.InstrumentPublisher(publisher)),
		sqlstore.WithIDGenerator(ids),
		sqlstore.WithLogger(logger),
	)
	store := sqlstore.NewStore(db)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	authSvc := auth.NewService(store.Users(), tokens, logger, auth.WithHashCost(cfg.BcryptCost))
	userSvc := users.NewService(store, ids, users.WithHashCost(cfg.BcryptCost), users.WithLogger(logger))

	if err := users.NewSeeder(userSvc, cfg.SeedAdminEmail, cfg.SeedAdminPassword).EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("seed defaults: %w", err)
	}

	srv := server.New(cfg, server.Deps{
		Auth:    authSvc,
		Users:   userSvc,
		Metrics: metrics,
		Redis:   rdb,
		DB:      conn,
		Logger:  logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ALL-IN IAM listening", slog.String("addr", cfg.HTTPAddress()), slog.String("env", cfg.AppEnv))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown error", slog.Any("error", err))
			return err
		}
		logger.Info("server shut down")
		return nil
	})
	return g.Wait()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// newPublisher selects the event sink named by EVENT_SINK.
func newPublisher(cfg config.Config, logger *slog.Logger) (events.Publisher, io.Closer, error) {
	switch cfg.EventSink {
	case "amqp":
		p, err := amqp.Dial(cfg.AMQPURL, cfg.AMQPQueue, logger)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	case "asynq":
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		return asynqsink.New(client, cfg.AsynqQueue, logger), client, nil
	default:
		return events.NewLogPublisher(logger), closerFunc(func() error { return nil }), nil
	}
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; relying on existing environment")
	}
}
