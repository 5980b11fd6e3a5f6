// Package janitor removes uploads left behind by requests that never got to
// clean up after themselves (a crash between write and delete, a killed
// worker).
package janitor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gmsas95/vetscan/internal/metrics"
)

// Config holds janitor configuration
type Config struct {
	Dir      string        // Directory to sweep
	Schedule string        // Cron spec, e.g. "@every 10m"
	MaxAge   time.Duration // Entries older than this are removed
}

// Janitor sweeps the upload directory on a cron schedule
type Janitor struct {
	config  Config
	cron    *cron.Cron
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	running bool
	mu      sync.RWMutex
}

// New creates a janitor. Start must be called to begin sweeping.
func New(config Config, logger *zap.Logger, m *metrics.Metrics) (*Janitor, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("janitor: directory is required")
	}
	if config.Schedule == "" {
		config.Schedule = "@every 10m"
	}
	if config.MaxAge <= 0 {
		config.MaxAge = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Default()
	}

	j := &Janitor{
		config:  config,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}

	j.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := j.cron.AddFunc(config.Schedule, j.run); err != nil {
		return nil, fmt.Errorf("janitor: invalid schedule %q: %w", config.Schedule, err)
	}
	return j, nil
}

// Start starts the cron scheduler
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("janitor already running")
	}
	j.running = true
	j.cron.Start()

	j.logger.Info("Janitor started",
		zap.String("dir", j.config.Dir),
		zap.String("schedule", j.config.Schedule),
		zap.Duration("max_age", j.config.MaxAge),
	)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	j.mu.Unlock()

	<-j.cron.Stop().Done()
	j.logger.Info("Janitor stopped")
}

// IsRunning returns whether the scheduler is active
func (j *Janitor) IsRunning() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.running
}

func (j *Janitor) run() {
	if _, err := j.Sweep(); err != nil {
		j.logger.Error("Janitor sweep failed", zap.Error(err))
	}
}

// Sweep removes stale uploads, regular files named <uuid>.<ext> whose
// modification time is older than MaxAge, and returns how many were removed.
// Anything else in the directory is left alone. A missing directory is not
// an error.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.config.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read upload dir: %w", err)
	}

	cutoff := j.now().Add(-j.config.MaxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !isUploadName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed concurrently
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(j.config.Dir, entry.Name())
		if err := os.Remove(path); err != nil {
			j.logger.Warn("Failed to remove stale upload", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		j.metrics.RecordJanitorRemoved(removed)
		j.logger.Info("Removed stale uploads", zap.Int("count", removed))
	}
	return removed, nil
}

// isUploadName reports whether name has the shape the upload handler gives
// saved files.
func isUploadName(name string) bool {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if len(stem) != 36 {
		return false
	}
	_, err := uuid.Parse(stem)
	return err == nil
}
