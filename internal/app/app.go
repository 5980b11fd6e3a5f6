// Package app wires configuration into the extraction, analysis and
// serving components.
package app

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gmsas95/vetscan/internal/analyzer"
	"github.com/gmsas95/vetscan/internal/api"
	"github.com/gmsas95/vetscan/internal/config"
	"github.com/gmsas95/vetscan/internal/diet"
	"github.com/gmsas95/vetscan/internal/extraction"
	"github.com/gmsas95/vetscan/internal/janitor"
	"github.com/gmsas95/vetscan/internal/metrics"
	"github.com/gmsas95/vetscan/internal/ocr"
	"github.com/gmsas95/vetscan/internal/prescription"
	"github.com/gmsas95/vetscan/internal/raster"
	"github.com/gmsas95/vetscan/internal/rules"
	"github.com/gmsas95/vetscan/internal/store"
)

type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Level      zap.AtomicLevel
	Metrics    *metrics.Metrics
	Rules      *rules.RuleSet
	Readers    []extraction.TextLayerReader
	Rasterizer *raster.Chain
	Recognizer *ocr.Recognizer
	Pipeline   *extraction.Pipeline
	Service    *prescription.Service
	Version    string
}

// New builds every component the configuration selects. Nothing is started
// and no backend is checked for availability.
func New(cfg *config.Config, logger *zap.Logger, level zap.AtomicLevel, version string) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := metrics.New()

	rs, err := rules.LoadFile(cfg.Rules.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	readers, err := extraction.BuildReaders(cfg.Extraction.TextLayers, cfg.Extraction.MaxPages)
	if err != nil {
		return nil, err
	}

	backends, err := raster.Build(cfg.Extraction.Rasterizers, raster.Options{
		DPI:       cfg.Extraction.DPI,
		FitzScale: cfg.Extraction.FitzScale,
		MaxPages:  cfg.Extraction.MaxPages,
		TempDir:   cfg.Extraction.TempDir,
	})
	if err != nil {
		return nil, err
	}
	chain := raster.NewChain(backends, raster.BreakerSettings{
		MaxFailures: uint32(cfg.Breaker.MaxFailures),
		OpenTimeout: cfg.Breaker.OpenTimeout(),
	}, logger.Named("raster"), m)

	engine, err := ocr.NewEngine(cfg.Extraction.OCREngine, cfg.Extraction.TesseractPath)
	if err != nil {
		return nil, err
	}
	ocrCfg := ocr.DefaultConfig()
	if len(cfg.Extraction.OCRLanguages) > 0 {
		ocrCfg.Languages = cfg.Extraction.OCRLanguages
	}
	recognizer := ocr.NewRecognizer(engine, ocrCfg, cfg.Extraction.OCRTimeout(), logger.Named("ocr"))

	pipeline := extraction.New(readers, chain, recognizer, logger.Named("extraction"), m)
	service := prescription.NewService(
		pipeline,
		analyzer.New(rs, logger.Named("analyzer")),
		diet.NewEngine(rs, logger.Named("diet")),
		logger,
		m,
	)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Level:      level,
		Metrics:    m,
		Rules:      rs,
		Readers:    readers,
		Rasterizer: chain,
		Recognizer: recognizer,
		Pipeline:   pipeline,
		Service:    service,
		Version:    version,
	}, nil
}

// RunServer serves HTTP until ctx is cancelled or the listener fails.
func (app *App) RunServer(ctx context.Context) error {
	st, err := store.Open(app.Config.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	var j *janitor.Janitor
	if app.Config.Janitor.Enabled {
		j, err = janitor.New(janitor.Config{
			Dir:      app.Config.Storage.UploadDir,
			Schedule: app.Config.Janitor.Schedule,
			MaxAge:   app.Config.Janitor.MaxAge(),
		}, app.Logger.Named("janitor"), app.Metrics)
		if err != nil {
			return err
		}
		if err := j.Start(); err != nil {
			return err
		}
		defer j.Stop()
	}

	if app.Config.Watch(app.Logger, app.applyConfigChange) {
		app.Logger.Info("Watching config file", zap.String("file", app.Config.ConfigFile()))
	}

	server, err := api.New(app.Config, app.Service, st, app.Metrics, app.Logger.Named("api"))
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.Server.ListenAddr()),
		zap.String("version", app.Version),
		zap.Strings("text_layers", app.Config.Extraction.TextLayers),
		zap.Strings("rasterizers", app.Config.Extraction.Rasterizers),
		zap.String("ocr_engine", app.Recognizer.Engine().Name()),
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	app.Logger.Info("Shutting down...")
	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
		return err
	}
	return nil
}

// applyConfigChange applies the settings that can change without a restart.
// Only the log level qualifies; everything else is logged and left for the
// next start.
func (app *App) applyConfigChange(next *config.Config) {
	if lvl, err := zapcore.ParseLevel(next.Log.Level); err == nil && lvl != app.Level.Level() {
		app.Level.SetLevel(lvl)
		app.Logger.Info("Log level changed", zap.String("level", lvl.String()))
	}

	var changed []string
	cur := app.Config
	for name, same := range map[string]bool{
		"server":     reflect.DeepEqual(cur.Server, next.Server),
		"extraction": reflect.DeepEqual(cur.Extraction, next.Extraction),
		"breaker":    cur.Breaker == next.Breaker,
		"rate_limit": cur.RateLimit == next.RateLimit,
		"storage":    cur.Storage == next.Storage,
		"janitor":    cur.Janitor == next.Janitor,
		"rules":      cur.Rules == next.Rules,
	} {
		if !same {
			changed = append(changed, name)
		}
	}
	if len(changed) > 0 {
		sort.Strings(changed)
		app.Logger.Warn("Config changes need a restart to take effect", zap.Strings("sections", changed))
	}
}
