// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/todolist-api/internal/config"
	"github.com/vyrodovalexey/todolist-api/internal/events"
	"github.com/vyrodovalexey/todolist-api/internal/handler"
	"github.com/vyrodovalexey/todolist-api/internal/middleware"
	"github.com/vyrodovalexey/todolist-api/internal/model"
	"github.com/vyrodovalexey/todolist-api/internal/store"
)

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
	config     *config.Config
	logger     *zap.Logger
	wsHandler  *handler.WebSocketHandler
}

// New creates a new Server instance. WebSocket clients subscribe to hub;
// committed changes are sent to publisher, which defaults to hub when nil.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	backend store.Backend[model.TodoItem],
	hub *events.Hub,
	publisher events.Publisher,
) *Server {
	router := mux.NewRouter()

	if publisher == nil {
		publisher = hub
	}

	s := &Server{
		router: router,
		config: cfg,
		logger: logger,
	}

	s.setupRouteMiddleware()
	s.setupRoutes(backend, hub, publisher)
	s.setupHandler()
	s.setupHTTPServer()

	return s
}

// setupRouteMiddleware configures middleware that needs the matched route.
func (s *Server) setupRouteMiddleware() {
	if s.config.MetricsEnabled {
		s.router.Use(mux.MiddlewareFunc(middleware.Metrics()))
	}

	s.router.Use(mux.MiddlewareFunc(middleware.Logging(s.logger)))
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes(backend store.Backend[model.TodoItem], hub *events.Hub, publisher events.Publisher) {
	todoHandler := handler.NewTodoHandler(backend, publisher, s.logger)
	todoHandler.RegisterRoutes(s.router)

	s.wsHandler = handler.NewWebSocketHandler(hub, s.logger)
	s.wsHandler.RegisterRoutes(s.router)

	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
}

// setupHandler wraps the router with middleware that must run before
// route matching: CORS preflights and case-insensitive API paths never
// match a route themselves.
func (s *Server) setupHandler() {
	allowedMethods := []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodDelete,
		http.MethodOptions,
	}
	allowedHeaders := []string{
		"Content-Type",
		middleware.RequestIDHeader,
	}

	chain := middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.RequestID(),
		middleware.CORS(s.config.CORSAllowedOrigins, allowedMethods, allowedHeaders),
		middleware.CanonicalPath(handler.TodoItemsPath),
	)

	s.handler = chain(s.router)
}

// setupHTTPServer configures the HTTP server.
func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		zap.String("address", s.config.Address()),
		zap.Bool("metrics_enabled", s.config.MetricsEnabled),
		zap.String("store_driver", s.config.StoreDriver),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// Hijacked WebSocket connections are not tracked by http.Server.
	if s.wsHandler != nil {
		s.wsHandler.CloseAllConnections()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Router returns the server's router for testing purposes.
func (s *Server) Router() *mux.Router {
	return s.router
}
