package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gocloud.dev/blob"

	app "github.com/kode4food/argyll/worker"
	"github.com/kode4food/argyll/worker/internal/config"
	"github.com/kode4food/argyll/worker/internal/controller"
	"github.com/kode4food/argyll/worker/internal/engine"
	"github.com/kode4food/argyll/worker/internal/server"
	"github.com/kode4food/argyll/worker/internal/services"
	"github.com/kode4food/argyll/worker/internal/store"
	"github.com/kode4food/argyll/worker/pkg/log"
	"github.com/kode4food/argyll/worker/pkg/util/call"
)

type argyllWorker struct {
	cfg        *config.Config
	stores     *store.Stores
	files      *services.BlobFiles
	archive    *blob.Bucket
	channel    *controller.Channel
	engine     *engine.Engine
	dispatcher *controller.Dispatcher
	httpServer *http.Server
	cancel     context.CancelFunc
	done       chan error
	quit       chan os.Signal
}

const filePrefix = "files"

var (
	ErrCreateStores  = errors.New("failed to create stores")
	ErrCreateFiles   = errors.New("failed to open file bucket")
	ErrCreateArchive = errors.New("failed to open run archive bucket")
)

func main() {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	w := &argyllWorker{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	w.setupLogging()

	if err := w.run(); err != nil {
		slog.Error("Failed to start worker", log.Error(err))
		os.Exit(1)
	}
}

func (w *argyllWorker) run() error {
	if err := w.initializeServices(); err != nil {
		return err
	}
	w.initializeEngine()
	w.startChannel()
	w.startServer()

	signal.Notify(w.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(w.quit)
	<-w.quit

	w.shutdown()
	return nil
}

func (w *argyllWorker) setupLogging() {
	level := log.ParseLevel(w.cfg.LogLevel)
	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Argyll Worker starting",
		slog.String("log_level", w.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("controller_url", w.cfg.ControllerURL),
		slog.String("sandbox_mode", string(w.cfg.SandboxMode)),
		slog.String("code_directory", w.cfg.CodeDirectory),
		slog.String("step_store", string(w.cfg.StepStore.Type)),
		slog.String("step_store_addr", w.cfg.StepStore.Addr),
		slog.Bool("run_archive", w.cfg.RunArchiveURL != ""),
		slog.String("api_host", w.cfg.APIHost),
		slog.Int("api_port", w.cfg.APIPort))
}

func (w *argyllWorker) initializeServices() error {
	err := call.Perform(w.openStores, w.openFiles, w.openArchive)
	if err != nil {
		_ = w.closeServices()
	}
	return err
}

func (w *argyllWorker) openStores() error {
	stores, err := store.New(w.cfg.StepStore)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateStores, err)
	}
	w.stores = stores
	return nil
}

func (w *argyllWorker) openFiles() error {
	files, err := services.NewBlobFiles(context.Background(),
		w.cfg.FileBucketURL, w.cfg.FilePublicURL, filePrefix,
		w.cfg.MaxFileSize,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateFiles, err)
	}
	w.files = files
	return nil
}

func (w *argyllWorker) openArchive() error {
	if w.cfg.RunArchiveURL == "" {
		return nil
	}
	bucket, err := blob.OpenBucket(context.Background(), w.cfg.RunArchiveURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateArchive, err)
	}
	w.archive = bucket
	return nil
}

// closeServices releases whatever initializeServices managed to open
func (w *argyllWorker) closeServices() error {
	var closers []call.Call
	if w.archive != nil {
		closers = append(closers, w.archive.Close)
	}
	if w.files != nil {
		closers = append(closers, w.files.Close)
	}
	if w.stores != nil {
		closers = append(closers, w.stores.Close)
	}
	return call.All(closers...)
}

func (w *argyllWorker) runArchive() engine.RunArchiver {
	if w.archive == nil {
		return nil
	}
	archive, err := services.NewRunArchive(w.archive, w.cfg.RunArchivePrefix)
	if err != nil {
		slog.Warn("Run archive disabled", log.Error(err))
		return nil
	}
	return archive
}

func (w *argyllWorker) initializeEngine() {
	w.channel = controller.NewChannel(w.cfg.ControllerURL, w.cfg.WorkerToken)
	w.engine = engine.New(w.cfg, engine.Dependencies{
		Steps:     w.stores.Steps,
		KeyValues: w.stores.KeyValues,
		Connections: services.NewHTTPConnections(nil,
			w.cfg.ConnectionsURL, w.cfg.WorkerToken,
			w.cfg.ConnectionCacheTTL,
		),
		Files:    w.files,
		Progress: w.channel,
		Archive:  w.runArchive(),
	})
	w.dispatcher = controller.NewDispatcher(w.engine)
}

func (w *argyllWorker) startChannel() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan error, 1)
	go func() {
		w.done <- w.channel.Run(ctx, w.dispatcher)
	}()
}

func (w *argyllWorker) startServer() {
	apiServer := server.NewServer(w.dispatcher, w.cfg.WorkerToken,
		w.stores.Ping,
	)

	w.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", w.cfg.APIHost, w.cfg.APIPort),
		Handler: apiServer.SetupRoutes(),
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", w.httpServer.Addr))
		err := w.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (w *argyllWorker) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), w.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := w.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	w.cancel()
	select {
	case err := <-w.done:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Controller channel failed", log.Error(err))
		}
	case <-ctx.Done():
		slog.Warn("Operations still running at shutdown")
	}

	if err := w.closeServices(); err != nil {
		slog.Error("Failed to close services", log.Error(err))
	}

	slog.Info("Worker exited")
}
