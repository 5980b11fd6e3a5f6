// Package prescription runs the full document-to-plan flow shared by the
// HTTP API, the analyze command and batch runs.
package prescription

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/vetscan/internal/analyzer"
	"github.com/gmsas95/vetscan/internal/diet"
	"github.com/gmsas95/vetscan/internal/extraction"
	"github.com/gmsas95/vetscan/internal/metrics"
)

// Extractor turns a document into text.
type Extractor interface {
	ExtractResult(ctx context.Context, path string, kind extraction.Kind) (*extraction.Result, error)
}

// Report is the combined result for one document.
type Report struct {
	PrescriptionAnalysis *analyzer.Analysis `json:"prescription_analysis"`
	DietRecommendations  *diet.Plan         `json:"diet_recommendations"`
	UploadedFile         string             `json:"uploaded_file"`
	AnalysisTimestamp    string             `json:"analysis_timestamp"`

	// Strategy names the extraction strategy that produced the text.
	Strategy string `json:"-"`
}

// Service is safe for concurrent use.
type Service struct {
	extractor Extractor
	analyzer  *analyzer.Analyzer
	diet      *diet.Engine
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewService(extractor Extractor, a *analyzer.Analyzer, d *diet.Engine, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Default()
	}
	return &Service{
		extractor: extractor,
		analyzer:  a,
		diet:      d,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Process extracts, analyzes and plans the document at path. displayName
// is echoed back as UploadedFile.
func (s *Service) Process(ctx context.Context, path, displayName string) (*Report, error) {
	kind, err := extraction.KindFromPath(path)
	if err != nil {
		return nil, err
	}

	res, err := s.extractor.ExtractResult(ctx, path, kind)
	if err != nil {
		return nil, err
	}

	analysis := s.analyzer.Analyze(res.Text)
	s.metrics.ObserveAnalysis(analysis.ConfidenceScore)
	plan := s.diet.Recommend(analysis)

	s.logger.Info("Prescription processed",
		zap.String("file", displayName),
		zap.String("strategy", res.Strategy),
		zap.Int("confidence", analysis.ConfidenceScore),
	)

	return &Report{
		PrescriptionAnalysis: analysis,
		DietRecommendations:  plan,
		UploadedFile:         displayName,
		AnalysisTimestamp:    s.now().Format(time.RFC3339Nano),
		Strategy:             res.Strategy,
	}, nil
}
