package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agentdesk/actiongate/internal/approval"
	"github.com/agentdesk/actiongate/internal/audit"
	"github.com/agentdesk/actiongate/internal/auth"
	"github.com/agentdesk/actiongate/internal/config"
	"github.com/agentdesk/actiongate/internal/pending"
	"github.com/agentdesk/actiongate/internal/risk"
	"github.com/agentdesk/actiongate/internal/server"
	"github.com/agentdesk/actiongate/internal/stream"
	"github.com/agentdesk/actiongate/internal/validate"
)

func main() {
	// No .env file is the normal production case.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting actiongate server",
		zap.String("port", cfg.Port),
		zap.Duration("approval_timeout", cfg.ApprovalTimeout),
		zap.Duration("keepalive_interval", cfg.KeepAliveInterval),
	)

	// Pending store — Postgres, SQLite, then in-memory fallback.
	var store pending.Store
	switch {
	case cfg.PostgresDSN != "":
		db, err := openPostgres(cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		pgStore, err := pending.NewPostgresStore(db)
		if err != nil {
			logger.Fatal("failed to initialize postgres pending store", zap.Error(err))
		}
		store = pgStore
		logger.Info("postgres pending store connected")
	case cfg.SQLitePath != "":
		sqlStore, err := pending.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			logger.Fatal("failed to initialize sqlite pending store",
				zap.String("path", cfg.SQLitePath),
				zap.Error(err),
			)
		}
		store = sqlStore
		logger.Info("sqlite pending store opened", zap.String("path", cfg.SQLitePath))
	default:
		store = pending.NewMemoryStore()
		logger.Warn("no POSTGRES_DSN or SQLITE_PATH set, pending approvals will not survive restarts")
	}
	defer func() { _ = store.Close() }()

	// Audit — ClickHouse or LogWriter fallback
	var writer audit.DecisionWriter
	if cfg.ClickHouseDSN != "" {
		chWriter, err := audit.NewClickHouseWriter(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = audit.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse audit writer connected")
		}
	} else {
		writer = audit.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log audit writer")
	}
	defer writer.Close()

	// Auth — Postgres if DSN provided, otherwise static
	var authenticator auth.Authenticator
	if cfg.PostgresDSN != "" {
		db, err := openPostgres(cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres for auth", zap.Error(err))
		}
		authenticator = auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			DB:       db,
			CacheTTL: cfg.AuthCacheTTL,
			FailOpen: cfg.AuthFailOpen,
			Logger:   logger,
		})
		logger.Info("postgres authenticator connected")
	} else {
		authenticator = auth.NewStaticAuthenticator()
		logger.Info("using static authenticator (no POSTGRES_DSN)")
	}

	// Reap resolved records once they are old enough to be useless for
	// duplicate-resume detection.
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go runReaper(reaperCtx, store, cfg.ResolvedRetention, logger)

	validator, err := validate.NewActionValidator()
	if err != nil {
		logger.Fatal("failed to compile action schema", zap.Error(err))
	}

	broker := stream.NewBroker(logger)
	gate := approval.NewGate(approval.GateConfig{
		Classifier: risk.NewClassifier(cfg.Risk),
		Store:      store,
		Sink:       broker,
		Audit:      writer,
		Validator:  validator,
		Timeout:    cfg.ApprovalTimeout,
		Logger:     logger,
	})

	srv := server.NewServer(server.Config{
		Gate:          gate,
		Broker:        broker,
		Authenticator: authenticator,
		KeepAlive:     cfg.KeepAliveInterval,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: hook responses block for up to the approval
		// timeout and streams stay open indefinitely.
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("actiongate server listening", zap.String("addr", httpServer.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

// runReaper periodically deletes resolved approval records older than
// the retention window. Pending records are never touched.
func runReaper(ctx context.Context, store pending.Store, retention time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(retention / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.DeleteExpired(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Warn("reaping resolved approvals failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("reaped resolved approvals", zap.Int64("count", n))
			}
		}
	}
}

func openPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, err
	}
	return db, nil
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
