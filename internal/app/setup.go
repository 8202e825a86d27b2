// Package app wires the grocery server together.
package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quickgrocery/grocery/internal/config"
	"github.com/quickgrocery/grocery/internal/service"
	"github.com/quickgrocery/grocery/internal/store"
	"github.com/quickgrocery/grocery/internal/transport/rest"
	"github.com/quickgrocery/grocery/pkg/auth"
	"github.com/quickgrocery/grocery/pkg/messaging"
	"github.com/quickgrocery/grocery/pkg/server"
	"github.com/quickgrocery/grocery/pkg/web"
)

type Dependencies struct {
	CartService    service.CartService
	OrderService   service.OrderService
	CatalogService service.CatalogService
	Verifier       auth.Verifier
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	MetricsPath    string
	Logger         *slog.Logger
}

// SetupDependencies builds the services on top of s. Order events go to publisher.
func SetupDependencies(s store.Store, publisher messaging.Publisher, verifier auth.Verifier, logger *slog.Logger) *Dependencies {
	return &Dependencies{
		CartService:    service.NewCartManager(s),
		OrderService:   service.NewOrderEngine(s, publisher, logger),
		CatalogService: service.NewCatalog(s),
		Verifier:       verifier,
		Logger:         logger,
	}
}

// SetupHttpHandler initializes the routes and middleware of the grocery API.
// Used by E2E tests to set up the HTTP server with the necessary routes and middleware.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	handler := rest.NewHandler(deps.CartService, deps.OrderService, deps.CatalogService, deps.Logger)
	handler.RegisterRoutes(mux, web.AuthMiddleware(deps.Verifier, deps.Logger))
	if deps.MetricsHandler != nil {
		mux.Method(http.MethodGet, deps.MetricsPath, deps.MetricsHandler)
	}
}

// SetupHttpServer creates the HTTP server of the grocery API.
func SetupHttpServer(deps *Dependencies, cfg *config.Config, serviceName string) *http.Server {
	return server.New(cfg.HTTPServer, serviceName, SetupHttpHandler(deps))
}
