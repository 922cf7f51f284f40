// Package registryservice assembles the token registry HTTP service.
package registryservice

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/magnolialogic/go-apns-server/internal/api"
	"github.com/magnolialogic/go-apns-server/pkg/registry"
	"github.com/magnolialogic/go-apns-server/registryservice/config"
)

type Wrapper struct {
	*microservice.BaseServer
	store  registry.Store
	logger *slog.Logger
}

// New assembles the service: base server, CORS middleware, and the /v1 routes.
func New(cfg *config.Config, store registry.Store, logger *slog.Logger) (*Wrapper, error) {
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)
	mux := baseServer.Mux()

	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	registryAPI := api.NewRegistryAPI(store, logger)
	registryAPI.Register(mux, corsMiddleware)

	// Preflight
	mux.Handle("OPTIONS /v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	return &Wrapper{
		BaseServer: baseServer,
		store:      store,
		logger:     logger,
	}, nil
}

func (w *Wrapper) Start(_ context.Context) error {
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.store.Close(); err != nil {
		w.logger.Error("Store shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
