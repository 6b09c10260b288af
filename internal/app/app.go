package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"elric-go/internal/config"
	"elric-go/internal/job"
	"elric-go/internal/jobstore"
	"elric-go/internal/logging"
	"elric-go/internal/queue"
	"elric-go/internal/scheduler"
	"elric-go/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Application holds all the major components of the master.
type Application struct {
	Config        *config.Config
	Logger        *zap.SugaredLogger
	Scheduler     *scheduler.Scheduler
	Store         jobstore.Store
	Routes        *queue.RouteTable
	HTTPServer    *http.Server
	MetricsServer *http.Server

	// SQLite is set when the store backend is sqlite.
	SQLite *storage.SQLiteJobStore
	// Broker is set when the queue backend is memory.
	Broker *queue.MemoryBroker

	validate *validator.Validate
	closers  []func() error
	stopLoop context.CancelFunc
	loopDone chan error
}

// New creates and initializes a new Application instance. A nil logger is
// built from cfg.Log.
func New(cfg *config.Config, logger *zap.SugaredLogger) (*Application, error) {
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Log.Level, cfg.Log.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	app := &Application{
		Config:   cfg,
		Logger:   logger,
		validate: validator.New(),
	}

	// Setup: Job store
	if err := app.openStore(); err != nil {
		app.close()
		return nil, err
	}

	// Setup: Queues
	if err := app.openQueues(); err != nil {
		app.close()
		return nil, err
	}

	// Setup: Scheduler
	loc, err := cfg.Location()
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to resolve timezone: %w", err)
	}
	opts := []scheduler.Option{
		scheduler.WithLocation(loc),
		scheduler.WithMaxWait(cfg.Scheduler.MaxWait.Duration),
		scheduler.WithDispatchRetry(cfg.Scheduler.DispatchRetry.Duration),
		scheduler.WithWakeOnUpdate(cfg.Scheduler.WakeOnUpdate),
		scheduler.WithLogger(logger.Named("scheduler")),
	}
	reg, err := buildRegistry(cfg.Callables)
	if err != nil {
		app.close()
		return nil, err
	}
	if reg != nil {
		opts = append(opts, scheduler.WithRegistry(reg))
	}
	app.Scheduler = scheduler.New(app.Store, app.Routes, opts...)

	// Setup: HTTP Server for metrics
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	app.MetricsServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Setup: Main HTTP Server
	app.HTTPServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           app.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return app, nil
}

func (a *Application) openStore() error {
	cfg := a.Config.Store
	switch cfg.Backend {
	case "sqlite":
		store, err := storage.OpenDatabase(storage.Config{
			Path:            cfg.Path,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime.Duration,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime.Duration,
			BusyTimeout:     cfg.BusyTimeout.Duration,
		})
		if err != nil {
			return fmt.Errorf("failed to open job store: %w", err)
		}
		a.SQLite = store
		a.Store = store
		a.closers = append(a.closers, store.Close)
		a.Logger.Infow("Using SQLite job store", "path", cfg.Path)
	case "memory", "":
		a.Store = jobstore.NewMemoryStore()
		a.Logger.Infow("Using in-memory job store")
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	return nil
}

func (a *Application) openQueues() error {
	cfg := a.Config.Queue
	switch cfg.Backend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rdb, err := queue.NewRedisClient(ctx, queue.RedisOptions{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			return fmt.Errorf("failed to open queues: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		prefix := cfg.KeyPrefix
		if prefix == "" {
			prefix = queue.DefaultKeyPrefix
		}
		a.Routes = queue.NewRouteTable(queue.RedisFactory(rdb, prefix))
		a.Logger.Infow("Using Redis queues", "addr", cfg.Addr, "prefix", prefix)
	case "memory", "":
		a.Broker = queue.NewMemoryBroker()
		a.Routes = queue.NewRouteTable(a.Broker.Factory())
		a.Logger.Infow("Using in-memory queues")
	default:
		return fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
	return nil
}

// buildRegistry returns nil when no callables are declared, which leaves
// submissions unchecked against a registry.
func buildRegistry(callables []config.Callable) (*job.Registry, error) {
	if len(callables) == 0 {
		return nil, nil
	}
	reg := job.NewRegistry()
	for _, c := range callables {
		sig := job.Signature{
			Params:    c.Params,
			Required:  c.Required,
			VarArgs:   c.VarArgs,
			VarKwargs: c.VarKwargs,
		}
		if err := reg.Register(c.Ref, nil, sig); err != nil {
			return nil, fmt.Errorf("failed to register callable: %w", err)
		}
	}
	return reg, nil
}

// Start begins the application's services. It returns once the scheduler
// loop and both servers are running in the background.
func (a *Application) Start(ctx context.Context) error {
	if a.stopLoop != nil {
		return scheduler.ErrAlreadyRunning
	}
	a.Logger.Infow("Starting application services")

	// Start the scheduler
	loopCtx, cancel := context.WithCancel(ctx)
	a.stopLoop = cancel
	a.loopDone = make(chan error, 1)
	go func() {
		a.loopDone <- a.Scheduler.Start(loopCtx)
	}()
	a.Logger.Infow("Scheduler started")

	// Start the metrics server
	go a.serve("metrics", a.MetricsServer)

	// Start the main HTTP server
	go a.serve("http", a.HTTPServer)

	return nil
}

func (a *Application) serve(name string, srv *http.Server) {
	a.Logger.Infow("Starting server", "server", name, "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.Logger.Errorw("Server stopped unexpectedly", "server", name, "error", err)
	}
}

// Stop gracefully shuts down the application's services.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.Infow("Stopping application services")

	// Shutdown servers
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := a.HTTPServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warnw("HTTP server shutdown error", "error", err)
	}

	if err := a.MetricsServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warnw("Metrics server shutdown error", "error", err)
	}

	// Stop the scheduler
	if a.stopLoop != nil {
		a.stopLoop()
		select {
		case err := <-a.loopDone:
			if err != nil {
				a.Logger.Warnw("Scheduler loop error", "error", err)
			}
		case <-shutdownCtx.Done():
			a.Logger.Warnw("Scheduler did not stop in time")
		}
		a.Logger.Infow("Scheduler stopped")
	}

	// Close the store and queue connections
	err := a.close()

	a.Logger.Infow("Application stopped gracefully")
	_ = a.Logger.Sync()
	return err
}

func (a *Application) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		a.Logger.Warnw("Error closing resources", "error", errors.Join(errs...))
	}
	return errors.Join(errs...)
}
