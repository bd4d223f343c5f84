// Package service exposes the query builder over HTTP: schema delivery,
// element persistence, filter versioning, and query preview execution.
package service

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	aql "github.com/alertql-engine/alertql"
	"github.com/alertql-engine/alertql/engine/models"
	"github.com/alertql-engine/alertql/engine/schema"
	"github.com/alertql-engine/alertql/engine/translator"
)

// RequestIDHeader carries the per-request identifier on requests and
// responses
const RequestIDHeader = "X-Request-ID"

// Backend is the persistence and execution surface the handlers talk to.
// *aql.Client satisfies it; tests substitute fakes.
type Backend interface {
	translator.VariableStore

	Schema(ctx context.Context, instrument string) (*schema.Envelope, error)

	Elements(ctx context.Context, kind string) ([]bson.M, error)
	Element(ctx context.Context, kind, name string) (bson.M, error)
	SaveElement(ctx context.Context, kind, name string, data bson.M) error

	CreateFilter(ctx context.Context, filter *models.Filter) (string, error)
	Filter(ctx context.Context, id string) (*models.Filter, error)
	AddFilterVersion(ctx context.Context, id string, version models.FilterVersion) (string, error)
	SetActiveVersion(ctx context.Context, id, fid string, active bool) error
	DeleteFilter(ctx context.Context, id string) error

	Run(ctx context.Context, req aql.QueryRequest) (*aql.QueryResult, error)
	Count(ctx context.Context, req aql.QueryRequest) (*aql.QueryResult, error)
}

// Config holds the service options
type Config struct {
	Logger *zap.Logger

	// CORSAllowedOrigins lists the browser origins allowed to call the
	// API; empty allows any origin.
	CORSAllowedOrigins []string
}

// Core wires the router, the backend, and the instrumentation together
type Core struct {
	backend  Backend
	logger   *zap.Logger
	registry *prometheus.Registry
	router   *mux.Router
	handler  http.Handler
}

// NewCore builds the service around a backend
func NewCore(conf Config, backend Backend) *Core {
	logger := conf.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())

	c := &Core{
		backend:  backend,
		logger:   logger,
		registry: registry,
		router:   mux.NewRouter(),
	}

	c.router.Use(requestIDMiddleware())
	c.router.Use(accessLogMiddleware(logger))
	c.router.Use(panicCatchMiddleware(logger))
	c.router.Use(instrumentMiddleware(registry))

	c.addAPIServerRoutes()

	c.handler = cors.New(cors.Options{
		AllowedOrigins: conf.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
	}).Handler(c.router)
	return c
}

func (c *Core) addAPIServerRoutes() {
	c.handle("/api/schema/{instrument}", handleSchemaGet).Methods(http.MethodGet)

	c.handle("/api/elements/{kind}", handleElementsGet).Methods(http.MethodGet)
	c.handle("/api/elements/{kind}", handleElementPost).Methods(http.MethodPost)
	c.handle("/api/elements/{kind}/{name}", handleElementGet).Methods(http.MethodGet)

	c.handle("/api/filters", handleFilterPost).Methods(http.MethodPost)
	c.handle("/api/filters/{id}", handleFilterGet).Methods(http.MethodGet)
	c.handle("/api/filters/{id}", handleFilterPatch).Methods(http.MethodPatch)
	c.handle("/api/filters/{id}", handleFilterDelete).Methods(http.MethodDelete)
	c.handle("/api/filters/{id}/versions", handleFilterVersionPost).Methods(http.MethodPost)

	c.handle("/api/compile", handleCompile).Methods(http.MethodPost)
	c.handle("/api/queries", handleQueryRun).Methods(http.MethodPost)
	c.handle("/api/queries/count", handleQueryCount).Methods(http.MethodPost)

	c.router.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	c.router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
}

func (c *Core) handle(path string, f func(*Core, *ResponseWriter, *Request)) *mux.Route {
	return c.router.Handle(path, c.handlerFunc(f))
}

func (c *Core) handlerFunc(f func(*Core, *ResponseWriter, *Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, req := newRequest(w, r, c.logger)
		f(c, res, req)
	})
}

func (c *Core) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.handler.ServeHTTP(w, r)
}

// Registry exposes the metrics registry so embedding programs can add
// their own collectors
func (c *Core) Registry() *prometheus.Registry {
	return c.registry
}
