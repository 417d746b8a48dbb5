package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cnc-operator-console/internal/audit"
	"cnc-operator-console/internal/clock"
	"cnc-operator-console/internal/config"
	"cnc-operator-console/internal/database"
	"cnc-operator-console/internal/directory"
	"cnc-operator-console/internal/event"
	"cnc-operator-console/internal/guard"
	"cnc-operator-console/internal/handler"
	"cnc-operator-console/internal/lockout"
	"cnc-operator-console/internal/middleware"
	"cnc-operator-console/internal/router"
	"cnc-operator-console/internal/service"
	"cnc-operator-console/internal/session"
	"cnc-operator-console/internal/store"
	"cnc-operator-console/internal/token"
)

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	clk := clock.New()

	var db *database.DB
	if cfg.StoreBackend == "postgres" {
		slog.Info("connecting to PostgreSQL")
		db, err = database.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := db.EnsureSchema(context.Background()); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
	}

	sessionStore, err := newSessionStore(cfg, db)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	recorder, err := newAuditRecorder(cfg, db)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("failed to initialize audit recorder: %w", err)
	}

	accounts := directory.NewLoader(cfg.RosterFile).Load()
	slog.Info("operator roster loaded", "accounts", len(accounts))

	codec := token.NewCodec(cfg.JWTSecret)
	accessGuard := guard.New(guard.PermissiveMachinePolicy)

	authService := service.NewAuthService(accounts, service.Config{
		Codec:         codec,
		Store:         sessionStore,
		Audit:         recorder,
		Clock:         clk,
		AccessTTL:     cfg.JWTAccessTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
		MachinePolicy: guard.PermissiveMachinePolicy,
		ShiftPolicy:   service.PermissiveShiftPolicy,
		Revoker:       service.NewRevoker(cfg.RevocationURL),
		EmergencyCode: cfg.EmergencyCode,
	})

	bus := event.NewBus()
	controller := session.NewController(authService, clk, bus, session.Options{
		IdleTimeout:       cfg.SessionIdleTimeout,
		IdleCheckInterval: cfg.IdleCheckInterval,
		RefreshLead:       cfg.RefreshLead,
	})
	controller.Restore(context.Background())

	governor := lockout.NewGovernor(clk, cfg.LockoutMaxFailures, cfg.LockoutDuration)

	authMiddleware := middleware.NewAuthMiddleware(codec, accessGuard)
	authHandler := handler.NewAuthHandler(authService, controller, governor, bus)
	sessionHandler := handler.NewSessionHandler(controller)
	auditHandler := handler.NewAuditHandler(recorder)
	eventsHandler := handler.NewEventsHandler(bus)

	appRouter := router.New(cfg, authMiddleware, authHandler, sessionHandler, auditHandler, eventsHandler)

	// A server-level WriteTimeout would sever the SSE stream, so writes
	// are bounded per route: chi's Timeout for the JSON API and
	// StreamTimeout for /events.
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	cleanups := []func(){controller.Close}
	if db != nil {
		cleanups = append(cleanups, db.Close)
	}

	return &App{
		server:       server,
		db:           db,
		cleanupFuncs: cleanups,
	}, nil
}

func newSessionStore(cfg *config.Config, db *database.DB) (store.Store, error) {
	switch cfg.StoreBackend {
	case "file":
		return store.NewFile(cfg.StoreFile)
	case "postgres":
		return store.NewPostgres(db.Pool), nil
	default:
		return store.NewMemory(), nil
	}
}

// The audit trail follows the session store: postgres when the store is
// postgres, otherwise the JSON-lines file.
func newAuditRecorder(cfg *config.Config, db *database.DB) (audit.Recorder, error) {
	if cfg.StoreBackend == "postgres" {
		return audit.NewPostgresRecorder(db.Pool), nil
	}

	return audit.NewFileRecorder(cfg.AuditLogFile)
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
