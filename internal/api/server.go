// Package api serves the prescription analyzer over HTTP.
package api

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/vetscan/internal/config"
	apperrors "github.com/gmsas95/vetscan/internal/errors"
	"github.com/gmsas95/vetscan/internal/metrics"
	"github.com/gmsas95/vetscan/internal/prescription"
	"github.com/gmsas95/vetscan/internal/security"
	"github.com/gmsas95/vetscan/internal/store"
)

// Processor analyzes one saved upload.
type Processor interface {
	Process(ctx context.Context, path, displayName string) (*prescription.Report, error)
}

// ContactStore persists contact form submissions.
type ContactStore interface {
	CreateContactMessage(msg *store.ContactMessage) error
}

// Server handles the HTTP API
type Server struct {
	app       *fiber.App
	config    *config.Config
	processor Processor
	contacts  ContactStore
	metrics   *metrics.Metrics
	logger    *zap.Logger
	limiter   *clientLimiter
	validator *security.InputValidator
}

// New creates a new API server. contacts may be nil, in which case contact
// messages are only logged.
func New(cfg *config.Config, processor Processor, contacts ContactStore, m *metrics.Metrics, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Default()
	}
	if err := os.MkdirAll(cfg.Storage.UploadDir, 0755); err != nil {
		return nil, err
	}

	s := &Server{
		config:    cfg,
		processor: processor,
		contacts:  contacts,
		metrics:   m,
		logger:    logger,
		validator: security.NewInputValidator(),
	}
	if cfg.RateLimit.Enabled {
		s.limiter = newClientLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "vetscan",
		BodyLimit:             cfg.Server.BodyLimit(),
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	s.setupRoutes()
	return s, nil
}

// Start starts the server and blocks until it stops
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.ListenAddr())
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

// handleError renders every error as {"error": "..."}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	switch code {
	case fiber.StatusRequestEntityTooLarge:
		s.metrics.RecordUploadRejected()
		s.logger.Warn("Upload rejected", zap.String("ip", c.IP()), zap.Error(apperrors.Wrap(err, apperrors.ErrFileTooLarge.Code, apperrors.ErrFileTooLarge.Message)))
		msg = "File too large"
	case fiber.StatusNotFound:
		msg = "Not found"
	}

	if code >= 500 {
		s.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Message)))
	}
	return c.Status(code).JSON(ErrorResponse{Error: msg})
}
