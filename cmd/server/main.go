package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/remote-cue-control/backend/api/handlers"
	"github.com/remote-cue-control/backend/internal/config"
	"github.com/remote-cue-control/backend/internal/discovery"
	"github.com/remote-cue-control/backend/internal/logging"
	"github.com/remote-cue-control/backend/internal/model"
	"github.com/remote-cue-control/backend/internal/monitoring"
	"github.com/remote-cue-control/backend/internal/qlab"
	"github.com/remote-cue-control/backend/internal/session"
	"github.com/remote-cue-control/backend/internal/ws"
)

// shutdownTimeout bounds how long in-flight requests may finish.
const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	entries, err := cfg.QLab.ServerEntries()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics()

	// Presentation comes first because the controller reports into it.
	wsService := ws.NewService(cfg.Session.ActivitySize, cfg.Session.ConfirmTimeout, metrics, logger)
	defer wsService.Close()

	loop := session.NewLoop(logger)
	ctrl := session.NewController(session.Config{
		Dispatcher:         loop,
		Dialer:             qlab.NewDialer(cfg.QLab.ReplyTimeout, logger),
		Presenter:          wsService.Presenter(),
		Passcodes:          passcodes(entries),
		DisableAutoConnect: !cfg.QLab.AutoConnect,
		ConnectTimeout:     cfg.QLab.ConnectTimeout,
		CueDebounce:        cfg.Session.CueDebounce,
		Logger:             logger,
		Metrics:            metrics,
	})
	controller := session.NewService(loop, ctrl)
	wsService.SetIntents(controller)

	controllerDone := make(chan struct{})
	go func() {
		defer close(controllerDone)
		controller.Run(ctx)
	}()

	poller := discovery.NewPoller(
		servers(entries),
		qlab.NewBrowser(cfg.QLab.ReplyTimeout, logger),
		controller,
		cfg.QLab.RefreshInterval,
		logger,
	)
	go poller.Run(ctx)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.Middleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-Requested-With",
		},
		MaxAge: 12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"clients": wsService.ClientCount(),
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	{
		handlers.NewControllerHandler(controller, wsService.Presenter()).RegisterRoutes(api)
		handlers.NewWebSocketHandler(wsService.Handler()).RegisterRoutes(api)
	}

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: r,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.Int("servers", len(entries)),
			zap.Bool("autoConnect", cfg.QLab.AutoConnect))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		stop()
		<-controllerDone
		return fmt.Errorf("failed to start server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	// The controller closes its workspace connection once the loop drains.
	<-controllerDone
	return nil
}

func servers(entries []config.ServerEntry) []*model.Server {
	out := make([]*model.Server, 0, len(entries))
	for _, e := range entries {
		out = append(out, &model.Server{Name: e.Name, Host: e.Host, Port: e.Port})
	}
	return out
}

func passcodes(entries []config.ServerEntry) session.PasscodeFunc {
	byAddr := make(map[string]config.ServerEntry, len(entries))
	for _, e := range entries {
		byAddr[e.Address()] = e
	}
	return func(w *model.Workspace) string {
		e, ok := byAddr[(&model.Server{Host: w.Host, Port: w.Port}).Key()]
		if !ok {
			return ""
		}
		return e.Passcode(w.ID, w.Name)
	}
}
