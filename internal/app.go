package internal

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pixelfort/oauth-server/internal/auth"
	"github.com/pixelfort/oauth-server/internal/config"
	"github.com/pixelfort/oauth-server/internal/log"
	"github.com/pixelfort/oauth-server/internal/oauth"
	"github.com/pixelfort/oauth-server/internal/server"
	"github.com/pixelfort/oauth-server/internal/storage"
)

// App represents the complete OAuth server application
type App struct {
	config     config.Config
	httpServer *server.HTTPServer
	store      storage.Storage
}

// NewApp creates the OAuth server application with all dependencies built
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	log.LogInfoWithFields("app", "Building OAuth server", map[string]any{
		"baseURL": cfg.Server.BaseURL,
		"storage": string(cfg.Auth.Storage),
	})

	store, err := SetupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	signingKey := []byte(cfg.Auth.SigningKey)

	grants := oauth.NewGrantService(store, signingKey, cfg.Auth.CodeTTL, cfg.Auth.TokenTTL)
	users := auth.NewUserAuthenticator(store, signingKey, cfg.Auth.SessionTTL)
	clients := auth.NewClientAuthenticator(store)

	handlers := server.NewAuthHandlers(grants, users, clients, store, cfg.Auth)
	handler := server.ChainMiddleware(handlers.Routes(),
		server.NewRecoverMiddleware("http"),
		server.NewLoggerMiddleware("http"),
	)

	return &App{
		config:     cfg,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr),
		store:      store,
	}, nil
}

// SetupStorage creates storage based on configuration. The provision command
// uses it too, so both write to the same backend the server reads from.
func SetupStorage(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	if cfg.Auth.Storage == config.StorageFirestore {
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":  cfg.Auth.GCPProject,
			"database": cfg.Auth.FirestoreDatabase,
		})
		return storage.NewFirestoreStorage(ctx, cfg.Auth.GCPProject, cfg.Auth.FirestoreDatabase, cfg.Auth.CollectionPrefix)
	}

	log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
	return storage.NewMemoryStorage(), nil
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	log.LogInfoWithFields("app", "Starting OAuth server", map[string]any{
		"addr": a.config.Server.Addr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return a.httpServer.Stop(shutdownCtx)
	})

	err := g.Wait()

	if closeErr := a.store.Close(); closeErr != nil {
		log.LogError("Failed to close storage: %v", closeErr)
	}

	log.LogInfoWithFields("app", "Application shutdown complete", nil)
	return err
}
