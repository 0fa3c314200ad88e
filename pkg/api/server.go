package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/cbodonnell/tabletop/pkg/api/handlers"
	"github.com/cbodonnell/tabletop/pkg/api/middleware"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIServer struct {
	server *http.Server
}

type NewAPIServerOptions struct {
	Addr  string
	Table handlers.Table
	// Gatherer is served at /metrics when set
	Gatherer prometheus.Gatherer
}

// NewAPIServer creates a new http.Server exposing the local participant's intents
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	return &APIServer{
		server: &http.Server{
			Addr:    opts.Addr,
			Handler: NewRouter(opts),
		},
	}
}

// NewRouter builds the API routes
func NewRouter(opts NewAPIServerOptions) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Logging, middleware.CORS)

	r.HandleFunc("/scene", handlers.HandleGetScene(opts.Table)).Methods(http.MethodGet)
	r.HandleFunc("/pieces", handlers.HandleAddPiece(opts.Table)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/pieces", handlers.HandleClearPieces(opts.Table)).Methods(http.MethodDelete)
	r.HandleFunc("/pieces/at", handlers.HandlePieceAt(opts.Table)).Methods(http.MethodGet)
	r.HandleFunc("/pieces/{id}", handlers.HandleUpdatePiece(opts.Table)).Methods(http.MethodPut, http.MethodOptions)
	r.HandleFunc("/pieces/{id}", handlers.HandleDeletePiece(opts.Table)).Methods(http.MethodDelete)
	r.HandleFunc("/pieces/{id}/position", handlers.HandleMovePiece(opts.Table)).Methods(http.MethodPut, http.MethodOptions)
	r.HandleFunc("/background", handlers.HandleChangeBackground(opts.Table)).Methods(http.MethodPut, http.MethodOptions)
	r.HandleFunc("/grid", handlers.HandleChangeGrid(opts.Table)).Methods(http.MethodPut, http.MethodOptions)

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return r
}

// Start starts the APIServer
func (s *APIServer) Start() {
	log.Info("API server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
