package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/termbed/termbed/internal/config"
	"github.com/termbed/termbed/internal/console"
	"github.com/termbed/termbed/internal/logging"
	"github.com/termbed/termbed/internal/monitoring"
	"github.com/termbed/termbed/internal/sessions"
	"github.com/termbed/termbed/internal/ws"
)

const shutdownTimeout = 10 * time.Second

// Server assembles the session engine behind an HTTP surface: the
// WebSocket bridge, the Prometheus endpoint, and the process-wide
// developer console fed by the host logger.
type Server struct {
	cfg     *config.Config
	log     *logging.Logger
	store   *console.Store
	repl    *console.Session
	metrics *monitoring.Metrics
	spawner sessions.Spawner
	httpSrv *http.Server
	done    chan struct{}
}

// New wires every component from configuration.
func New(cfg *config.Config) (*Server, error) {
	store := console.NewStore(cfg.Console.EventMax)
	store.SetDepth(cfg.Console.Depth)

	// Host log entries tail into the console store.
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Observer: func(level, message string) {
			switch level {
			case "debug":
				store.Debug(message)
			case "warn":
				store.Warn(message)
			case "error", "dpanic", "panic", "fatal":
				store.Error(message)
			default:
				store.Info(message)
			}
		},
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := monitoring.New(registry)
	store.Subscribe(func(*console.Event) { metrics.ConsoleEventRecorded() })

	repl := console.NewSession(console.Options{
		Store:      store,
		Logger:     logger,
		Metrics:    metrics,
		HistoryMax: cfg.Console.HistoryMax,
		QueueDepth: cfg.Console.QueueDepth,
	})

	s := &Server{
		cfg:     cfg,
		log:     logger.Named("server"),
		store:   store,
		repl:    repl,
		metrics: metrics,
		spawner: sessions.NewExecSpawner(logger),
		done:    make(chan struct{}),
	}

	wsHandler := ws.NewHandler(ws.Options{
		Logger:      logger,
		Metrics:     metrics,
		Factory:     s.newSession,
		Platform:    s.platform(),
		Console:     repl,
		ResizeDelay: cfg.Resize.Debounce(),
	})

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	// Handler panics surface in the console as window errors.
	router.Use(gin.CustomRecovery(func(c *gin.Context, err any) {
		store.WindowError(err)
		c.AbortWithStatus(http.StatusInternalServerError)
	}), corsMiddleware(), monitoring.Middleware(metrics))

	router.GET("/", s.root)
	router.GET("/health", s.health)
	router.GET("/ws", wsHandler.HandleConnection)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	s.httpSrv = &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router,
	}
	return s, nil
}

// Logger exposes the host logger for the binary.
func (s *Server) Logger() *logging.Logger { return s.log }

// Console exposes the process-wide developer console.
func (s *Server) Console() *console.Session { return s.repl }

// Run serves until the listener fails or Close is called.
func (s *Server) Run() error {
	s.log.Info("listening", zap.String("addr", s.httpSrv.Addr),
		zap.String("platform", s.platform()))

	go s.trackUptime()

	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close drains HTTP, kills the console session, and stops the store.
func (s *Server) Close() error {
	close(s.done)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.httpSrv.Shutdown(ctx)

	if killErr := s.repl.Kill(); killErr != nil {
		s.log.Warn("console teardown", zap.Error(killErr))
	}
	s.store.Close()
	return err
}

// newSession builds the platform-appropriate shell session.
func (s *Server) newSession(cols, rows int) (sessions.Pseudoterminal, error) {
	t := s.cfg.Terminal
	switch s.platform() {
	case "windows":
		shell := t.Shell
		if shell == "" {
			shell = "powershell.exe"
		}
		return sessions.NewWindowsSession(s.spawner, sessions.WindowsOptions{
			Executable: shell,
			Python:     t.Python,
			UseConhost: t.UseConhost,
			GraceDelay: s.cfg.Resize.Grace(),
			KeepAlive:  s.cfg.Resize.KeepAlive(),
			Notifier:   func(message string) { s.store.Warn(message) },
			Logger:     s.log,
		}), nil
	case "unix":
		return sessions.NewUnixSession(s.spawner, sessions.UnixOptions{
			Python: t.Python,
			Shell:  t.Shell,
			Cols:   cols,
			Rows:   rows,
			Logger: s.log,
		}), nil
	default:
		return sessions.NewNativeSession(sessions.NativeOptions{
			Shell:  t.Shell,
			Cols:   cols,
			Rows:   rows,
			Logger: s.log,
		}), nil
	}
}

func (s *Server) platform() string {
	switch {
	case runtime.GOOS == "windows":
		return "windows"
	case s.cfg.Terminal.Python != "":
		return "unix"
	default:
		return "native"
	}
}

func (s *Server) trackUptime() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.metrics.UpdateUptime()
		}
	}
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":  "termbed",
		"platform": s.platform(),
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
