package server

import (
	"fmt"
	"time"

	"github.com/cloudcarver/extworker/pkg/config"
	"github.com/cloudcarver/extworker/pkg/globalctx"
	"github.com/cloudcarver/extworker/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var log = logger.NewLogAgent("server")

const (
	HealthPath  = "/healthz"
	MetricsPath = "/metrics"
)

// PollStatus is what the health endpoint knows about the poll loop.
type PollStatus interface {
	LastPoll() time.Time
}

type Health struct {
	Status   string     `json:"status"`
	WorkerID string     `json:"workerId"`
	Topics   []string   `json:"topics"`
	LastPoll *time.Time `json:"lastPoll"`
}

// Server exposes liveness and prometheus metrics. It is not on the task path;
// the worker runs fine when it is disabled.
type Server struct {
	app       *fiber.App
	port      int
	disable   bool
	globalCtx *globalctx.GlobalContext
	status    PollStatus
	workerID  string
	topics    []string
}

func NewServer(cfg *config.Config, globalCtx *globalctx.GlobalContext, status PollStatus) *Server {
	app := fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: true,
	})

	port := config.DefaultMetricsPort
	if cfg.Server.Port != 0 {
		port = cfg.Server.Port
	} else {
		log.Infof("Using default port: %d", port)
	}

	topics := make([]string, 0, len(cfg.Worker.Topics))
	for _, t := range cfg.Worker.Topics {
		topics = append(topics, t.Name)
	}

	s := &Server{
		app:       app,
		port:      port,
		disable:   cfg.Server.Disable,
		globalCtx: globalCtx,
		status:    status,
		workerID:  cfg.Worker.ID,
		topics:    topics,
	}
	s.registerMiddleware()
	s.registerRoutes()
	return s
}

func (s *Server) registerMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	s.app.Use(requestid.New())
	s.app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		// probes hit these every few seconds, only failures are interesting
		if c.Response().StatusCode() >= fiber.StatusBadRequest || err != nil {
			log.Warn(
				"response",
				zap.Int("status", c.Response().StatusCode()),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Any("request-id", c.Locals(requestid.ConfigDefault.ContextKey)),
				zap.Float32("latency-ms", float32(time.Since(start).Milliseconds())),
				zap.Error(err),
			)
		}
		return err
	})
}

func (s *Server) registerRoutes() {
	s.app.Get(HealthPath, s.health)
	s.app.Get(MetricsPath, adaptor.HTTPHandler(promhttp.Handler()))
}

func (s *Server) health(c *fiber.Ctx) error {
	h := Health{
		Status:   "ok",
		WorkerID: s.workerID,
		Topics:   s.topics,
	}
	if last := s.status.LastPoll(); !last.IsZero() {
		h.LastPoll = &last
	}
	return c.JSON(h)
}

// Listen serves until the global context is cancelled. It returns
// immediately when the server is disabled.
func (s *Server) Listen() error {
	if s.disable {
		log.Info("metrics server disabled")
		return nil
	}

	shutdownChan := make(chan error, 1)
	go func() {
		log.Info("metrics server listening", zap.Int("port", s.port))
		if err := s.app.Listen(fmt.Sprintf(":%d", s.port)); err != nil {
			shutdownChan <- err
		}
	}()

	select {
	case err := <-shutdownChan:
		return err
	case <-s.globalCtx.Context().Done():
		log.Info("shutting down server due to context cancellation")
		return s.app.Shutdown()
	}
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) GetPort() int {
	return s.port
}
