package service

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/brimdata/raexec/api"
	"github.com/brimdata/raexec/runtime/exec"
	"github.com/brimdata/raexec/runtime/memexec"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const DefaultResponseFormat = "json"

type Config struct {
	Exec   exec.Config
	Memory memexec.Config
	// Catalog holds the tables plans scan. Tables carried by a plan
	// document are added to it.
	Catalog *memexec.Catalog
	// Cache is shared by all queries. Nil means a local cache.
	Cache exec.CardinalityCache
	// Registry receives the engine and service metrics served on
	// /metrics. Nil means a new registry.
	Registry              *prometheus.Registry
	CORSAllowedOrigins    []string
	DefaultResponseFormat string
	Logger                *zap.Logger
	// EngineLogger receives the engine and executor logs. Nil means
	// Logger.
	EngineLogger *zap.Logger
	Version      string
}

type Core struct {
	conf     Config
	catalog  *memexec.Catalog
	engine   *exec.Engine
	executor *memexec.Executor
	handler  http.Handler
	logger   *zap.Logger
	registry *prometheus.Registry
	running  prometheus.Gauge

	mu      sync.Mutex
	queries map[uint64]context.CancelFunc
	nextID  uint64
}

func NewCore(conf Config) (*Core, error) {
	if conf.Logger == nil {
		conf.Logger = zap.NewNop()
	}
	if conf.EngineLogger == nil {
		conf.EngineLogger = conf.Logger
	}
	if conf.Version == "" {
		conf.Version = "unknown"
	}
	if conf.DefaultResponseFormat == "" {
		conf.DefaultResponseFormat = DefaultResponseFormat
	}
	if conf.Catalog == nil {
		conf.Catalog = memexec.NewCatalog()
	}
	registry := conf.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	registry.MustRegister(prometheus.NewGoCollector())
	executor := memexec.New(conf.Memory, conf.Catalog, conf.EngineLogger.Named("memexec"))
	engine, err := exec.New(conf.Exec, exec.Env{
		Executor:    executor,
		Translator:  memexec.NewTranslator(),
		Schemas:     conf.Catalog,
		Interrupter: executor.Interrupter(),
		Cache:       conf.Cache,
		Logger:      conf.EngineLogger.Named("exec"),
		Registerer:  registry,
	})
	if err != nil {
		return nil, err
	}
	c := &Core{
		conf:     conf,
		catalog:  conf.Catalog,
		engine:   engine,
		executor: executor,
		logger:   conf.Logger.Named("core"),
		registry: registry,
		queries:  make(map[uint64]context.CancelFunc),
		running: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "raexec_running_queries",
			Help: "Number of queries being executed.",
		}),
	}
	router := mux.NewRouter()
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(conf.Logger, newHTTPMetrics(registry)))
	router.Use(panicCatchMiddleware(conf.Logger))
	c.addRoutes(router)
	c.handler = cors.New(cors.Options{
		AllowedOrigins: conf.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{api.RequestIDHeader},
	}).Handler(router)
	c.logger.Info("Started",
		zap.Stringer("device", conf.Exec.Device),
		zap.Uint64("gpu_memory", conf.Memory.GPUMemory),
		zap.Uint64("cpu_memory", conf.Memory.CPUMemory),
		zap.Strings("tables", conf.Catalog.Names()),
	)
	return c, nil
}

func (c *Core) addRoutes(router *mux.Router) {
	router.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}).Methods("GET")
	c.handle(router, "/version", handleVersion).Methods("GET")
	c.handle(router, "/tables", handleTables).Methods("GET")
	c.handle(router, "/explain", handleExplain).Methods("POST")
	c.handle(router, "/query", handleQuery).Methods("POST")
	c.handle(router, "/steps", handleSteps).Methods("POST")
	c.handle(router, "/interrupt", handleInterrupt).Methods("POST")
}

type handlerFunc func(*Core, *ResponseWriter, *Request)

func (c *Core) handle(router *mux.Router, path string, f handlerFunc) *mux.Route {
	return router.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		res, req, ok := newRequest(w, r, c)
		if ok {
			f(c, res, req)
		}
	})
}

func (c *Core) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Core) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.handler.ServeHTTP(w, r)
}

// track returns a context that is canceled when the service is
// interrupted. The returned func must be called when the query is done.
func (c *Core) track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.queries[id] = cancel
	c.mu.Unlock()
	c.running.Inc()
	return ctx, func() {
		c.mu.Lock()
		delete(c.queries, id)
		c.mu.Unlock()
		c.running.Dec()
		cancel()
	}
}

// interrupt cancels every running query and returns how many there were.
// With the dynamic watchdog on, the executor's interrupter is raised too.
func (c *Core) interrupt() int {
	if c.conf.Exec.DynamicWatchdog {
		c.executor.Interrupter().Interrupt()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cancel := range c.queries {
		cancel()
	}
	return len(c.queries)
}
