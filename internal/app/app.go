package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"docdetect/internal/config"
	"docdetect/internal/handler"
	"docdetect/internal/logger"
	"docdetect/internal/repository/sqlite"
	"docdetect/internal/route"
	"docdetect/internal/service/pipeline"
	"docdetect/internal/service/sender"
	"docdetect/internal/service/storage"
	"docdetect/internal/service/vision"
	wshub "docdetect/internal/service/websocket"
	"docdetect/internal/shutdown"
)

// receiver is the camera-facing side of either transport.
type receiver interface {
	Listen() error
	Serve(ctx context.Context) error
	Close() error
}

type App struct {
	config *config.Config
	logger *logger.Logger

	db         *sqlite.DB
	detector   *vision.Detector
	screenshot *storage.ScreenshotService
	dispatcher *sender.Dispatcher
	hub        *wshub.HubService
	manager    *pipeline.Manager

	receiver      receiver
	joinClients   func()     // nil for UDP, which has no per-client handlers
	receiverStats func() any // transport specific counters for /api/status

	server *http.Server
}

// NewApp wires every service for cfg. Nothing is started until Run.
func NewApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture database: %w", err)
	}
	repo := sqlite.NewCaptureRepository(db)

	out, err := sender.New(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &App{
		config:     cfg,
		logger:     log,
		db:         db,
		detector:   vision.NewDetector(cfg, log.WithComponent("detector")),
		screenshot: storage.NewScreenshotService(cfg, log.WithComponent("storage"), repo),
		dispatcher: sender.NewDispatcher(out, log.WithComponent("sender")),
	}

	opts := []pipeline.Option{pipeline.WithStorage(a.screenshot)}
	if cfg.Show {
		a.hub = wshub.NewHubService(log.WithComponent("preview"))
		opts = append(opts, pipeline.WithPreview(vision.NewAnnotator(), a.hub))
	}
	a.manager = pipeline.NewManager(cfg, vision.Decoder(), a.detector, a.dispatcher, log.WithComponent("pipeline"), opts...)

	receiverLog := log.WithComponent("receiver")
	switch cfg.Transport {
	case config.TransportUDP:
		h := handler.NewCameraUDPHandler(cfg, a.manager.HandleCameraPayload, receiverLog)
		a.receiver = h
		a.receiverStats = func() any { return h.Stats() }
	default:
		h := handler.NewCameraTCPHandler(cfg, a.manager.HandleCameraPayload, receiverLog)
		a.receiver = h
		a.joinClients = h.Wait
		a.receiverStats = func() any { return map[string]int{"clients": h.Clients()} }
	}

	if cfg.PreviewAddr != "" {
		deps := route.Dependencies{Status: a, Hub: a.hub, Repo: repo}
		a.server = &http.Server{
			Addr:              cfg.PreviewAddr,
			Handler:           route.SetupRoutes(cfg, deps, log.WithComponent("http")),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return a, nil
}

// Run starts every loop and blocks until shutdown has completed, either from a
// signal, from ctx, or from a fatal worker error such as a missing model.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if err := a.receiver.Listen(); err != nil {
		return err
	}

	coord := shutdown.New(ctx, a.config.ShutdownTimeout, a.logger)
	coord.NotifySignals(os.Interrupt, syscall.SIGTERM)
	stop := context.AfterFunc(ctx, coord.Shutdown)
	defer stop()

	a.detector.Load()

	// Closers run in order: no new frames, then release the consumer, then the HTTP surface.
	coord.OnShutdown("receiver socket", func() {
		if err := a.receiver.Close(); err != nil {
			a.logger.Warning("Error closing receiver: %v", err)
		}
	})
	coord.OnShutdown("frame queue", a.manager.Stop)
	if a.server != nil {
		coord.OnShutdown("http server", a.shutdownServer)
	}

	coord.Go("receiver", a.receiver.Serve)
	coord.Go("pipeline", a.manager.Run)
	if a.joinClients != nil {
		coord.Track("camera clients", a.joinClients)
	}
	// Joined after the pipeline, so sends dispatched from its last frame are included.
	coord.Track("senders", a.dispatcher.Wait)
	if a.hub != nil {
		coord.Go("preview hub", a.hub.Run)
	}
	if a.server != nil {
		coord.Go("http server", func(context.Context) error {
			a.logger.Info("HTTP server listening on %s", a.config.PreviewAddr)
			if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	a.logger.Info("docdetect running: transport=%s receive=%s send=%s save=%v show=%v",
		a.config.Transport, a.config.ReceiveAddr, a.config.SendAddr, a.config.Save, a.config.Show)

	return coord.Wait()
}

// Status reports live counters for the status endpoint.
func (a *App) Status() any {
	status := map[string]any{
		"transport": a.config.Transport,
		"receive":   a.config.ReceiveAddr,
		"send":      a.config.SendAddr,
		"pipeline":  a.manager.Stats(),
		"dispatch":  a.dispatcher.Stats(),
		"receiver":  a.receiverStats(),
		"saved":     a.screenshot.Saved(),
	}
	if a.hub != nil {
		status["viewers"] = a.hub.GetClientCount()
	}
	return status
}

func (a *App) shutdownServer() {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warning("HTTP server shutdown: %v", err)
	}
}

func (a *App) close() {
	if err := a.detector.Close(); err != nil {
		a.logger.Warning("Error releasing detector: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warning("Error closing database: %v", err)
	}
}
