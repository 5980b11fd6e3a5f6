package api

import (
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/vetscan/internal/errors"
	"github.com/gmsas95/vetscan/internal/security"
	"github.com/gmsas95/vetscan/internal/store"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleMetricsJSON(c *fiber.Ctx) error {
	return c.JSON(s.metrics.Snapshot())
}

// uploadedFile returns the "file" part of a multipart request, or an
// AppError naming why there is none.
func uploadedFile(c *fiber.Ctx) (*multipart.FileHeader, *apperrors.AppError) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, apperrors.ErrNoFile
	}
	files := form.File["file"]
	if len(files) == 0 {
		// a part sent with an empty filename is parsed as a plain value
		if _, ok := form.Value["file"]; ok {
			return nil, apperrors.New(apperrors.ErrNoFile.Code, "No file selected")
		}
		return nil, apperrors.ErrNoFile
	}
	if files[0].Filename == "" {
		return nil, apperrors.New(apperrors.ErrNoFile.Code, "No file selected")
	}
	return files[0], nil
}

func (s *Server) handleAnalyze(c *fiber.Ctx) error {
	header, appErr := uploadedFile(c)
	if appErr != nil {
		s.metrics.RecordUploadRejected()
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: appErr.Message})
	}

	ext, ok := allowedFile(header.Filename)
	if !ok {
		s.metrics.RecordUploadRejected()
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: apperrors.ErrInvalidType.Message})
	}

	filename := SecureFilename(header.Filename)
	// stored under a random name so concurrent uploads of the same file never collide
	path := filepath.Join(s.config.Storage.UploadDir, uuid.NewString()+"."+ext)
	if err := c.SaveFile(header, path); err != nil {
		s.logger.Error("Failed to save upload", zap.String("file", filename), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "Analysis failed: could not save upload"})
	}
	defer s.removeUpload(path, filename)

	s.logger.Info("Processing file",
		zap.String("file", filename),
		zap.Int64("size", header.Size),
		zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
	)

	report, err := s.processor.Process(c.UserContext(), path, filename)
	if err != nil {
		s.logger.Error("Analysis failed",
			zap.String("file", filename),
			zap.String("code", apperrors.ErrExtractionFailed.Code),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "Analysis failed: " + err.Error()})
	}

	return c.JSON(report)
}

func (s *Server) removeUpload(path, filename string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Could not remove upload", zap.String("file", filename), zap.Error(err))
		return
	}
	s.logger.Debug("Cleaned up upload", zap.String("file", filename))
}

func (s *Server) handleContact(c *fiber.Ctx) error {
	var req ContactRequest
	if err := c.BodyParser(&req); err != nil {
		s.logger.Error("Contact form error", zap.Error(apperrors.Wrap(err, apperrors.ErrContactInvalid.Code, apperrors.ErrContactInvalid.Message)))
		return c.Status(fiber.StatusInternalServerError).JSON(ContactResponse{Success: false, Message: contactSorry})
	}

	if err := s.validator.ValidateFields(
		security.Field{Name: "name", Value: req.Name},
		security.Field{Name: "email", Value: req.Email},
		security.Field{Name: "subject", Value: req.Subject},
		security.Field{Name: "message", Value: req.Message},
	); err != nil {
		s.logger.Warn("Contact form rejected", zap.String("ip", c.IP()), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(ContactResponse{Success: false, Message: contactSorry})
	}

	s.logger.Info("Contact form submitted",
		zap.String("subject", req.Subject),
		zap.String("name", req.Name),
		zap.String("email", req.Email),
	)

	if s.contacts != nil {
		msg := &store.ContactMessage{
			Name:     req.Name,
			Email:    req.Email,
			Subject:  req.Subject,
			Message:  req.Message,
			RemoteIP: c.IP(),
		}
		if err := s.contacts.CreateContactMessage(msg); err != nil {
			s.logger.Error("Contact form error", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(ContactResponse{Success: false, Message: contactSorry})
		}
	}
	s.metrics.RecordContactMessage()

	return c.JSON(ContactResponse{Success: true, Message: contactThanks})
}
