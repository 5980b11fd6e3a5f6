// Package batch analyzes many prescription documents concurrently and
// writes one JSON line per document.
package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/vetscan/internal/extraction"
	"github.com/gmsas95/vetscan/internal/prescription"
)

// Analyzer processes a single document.
type Analyzer interface {
	Process(ctx context.Context, path, displayName string) (*prescription.Report, error)
}

type Config struct {
	MaxConcurrency int
	Timeout        time.Duration // per document
	RateLimit      RateLimiterConfig
}

type InputItem struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type OutputItem struct {
	ID        string               `json:"id"`
	File      string               `json:"file"`
	Success   bool                 `json:"success"`
	Skipped   bool                 `json:"skipped,omitempty"`
	Error     string               `json:"error,omitempty"`
	Report    *prescription.Report `json:"report,omitempty"`
	Strategy  string               `json:"strategy,omitempty"`
	Duration  time.Duration        `json:"duration_ns"`
	Timestamp time.Time            `json:"timestamp"`
}

type Result struct {
	Total     int
	Success   int
	Failed    int
	Skipped   int
	Duration  time.Duration
	Items     []OutputItem // input order
	StartTime time.Time
	EndTime   time.Time
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 3,
		Timeout:        2 * time.Minute,
		RateLimit:      RateLimiterConfig{},
	}
}

type Processor struct {
	analyzer Analyzer
	config   Config
	limiter  *limiter
	logger   *zap.Logger
}

func NewProcessor(a Analyzer, cfg Config, logger *zap.Logger) *Processor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		analyzer: a,
		config:   cfg,
		limiter:  newLimiter(cfg.RateLimit),
		logger:   logger,
	}
}

// ItemsFromPaths builds input items from file paths.
func ItemsFromPaths(paths []string) []InputItem {
	items := make([]InputItem, 0, len(paths))
	for i, p := range paths {
		items = append(items, InputItem{ID: fmt.Sprintf("item-%d", i+1), Path: p})
	}
	return items
}

// Process runs every item through the analyzer. Items whose extension is not
// supported are skipped without being opened.
func (p *Processor) Process(ctx context.Context, items []InputItem) *Result {
	startTime := time.Now()
	result := &Result{
		Total:     len(items),
		StartTime: startTime,
		Items:     make([]OutputItem, len(items)),
	}

	concurrency := min(p.config.MaxConcurrency, max(len(items), 1))
	progress := &ProgressTracker{Total: len(items), StartTime: startTime}

	p.logger.Info("Starting batch",
		zap.Int("total_items", len(items)),
		zap.Int("concurrency", concurrency),
		zap.Float64("rps_limit", p.config.RateLimit.RPS),
	)

	indexes := make(chan int, len(items))
	for i := range items {
		indexes <- i
	}
	close(indexes)

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				// each worker owns distinct indexes, so no lock is needed
				result.Items[i] = p.processItem(ctx, items[i])
				if done := progress.Increment(); done%10 == 0 {
					p.logger.Info("Batch progress",
						zap.Int("completed", done),
						zap.Int("total", progress.Total),
						zap.Float64("percent", progress.Percent()),
						zap.Duration("eta", progress.ETA()),
					)
				}
			}
		}()
	}
	wg.Wait()

	for _, item := range result.Items {
		switch {
		case item.Success:
			result.Success++
		case item.Skipped:
			result.Skipped++
		default:
			result.Failed++
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	p.logger.Info("Batch complete",
		zap.Int("total", result.Total),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", result.Duration),
	)
	return result
}

func (p *Processor) processItem(ctx context.Context, item InputItem) OutputItem {
	output := OutputItem{
		ID:        item.ID,
		File:      item.Path,
		Timestamp: time.Now(),
	}

	if _, err := extraction.KindFromPath(item.Path); err != nil {
		output.Skipped = true
		output.Error = err.Error()
		return output
	}

	if err := p.limiter.wait(ctx); err != nil {
		output.Error = fmt.Sprintf("rate limit: %v", err)
		return output
	}

	itemCtx := ctx
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	report, err := p.analyzer.Process(itemCtx, item.Path, filepath.Base(item.Path))
	output.Duration = time.Since(start)
	if err != nil {
		p.logger.Warn("Batch item failed", zap.String("id", item.ID), zap.String("file", item.Path), zap.Error(err))
		output.Error = err.Error()
		return output
	}

	output.Success = true
	output.Report = report
	output.Strategy = report.Strategy
	return output
}

// LoadManifest reads input items from a file. A .jsonl or .json file holds
// one {"id","path"} object per line; anything else is one path per line with
// blank lines and # comments ignored. Relative paths resolve against the
// manifest's directory.
func LoadManifest(path string) ([]InputItem, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	base := filepath.Dir(path)
	var items []InputItem
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl":
		items, err = loadJSONManifest(file)
	default:
		items, err = loadTextManifest(file)
	}
	if err != nil {
		return nil, err
	}

	for i := range items {
		if !filepath.IsAbs(items[i].Path) {
			items[i].Path = filepath.Join(base, items[i].Path)
		}
	}
	return items, nil
}

func loadJSONManifest(r io.Reader) ([]InputItem, error) {
	var items []InputItem
	decoder := json.NewDecoder(r)

	for decoder.More() {
		var item InputItem
		if err := decoder.Decode(&item); err != nil {
			return nil, fmt.Errorf("failed to decode manifest: %w", err)
		}
		if item.Path == "" {
			return nil, fmt.Errorf("manifest entry %d has no path", len(items)+1)
		}
		if item.ID == "" {
			item.ID = fmt.Sprintf("item-%d", len(items)+1)
		}
		items = append(items, item)
	}
	return items, nil
}

func loadTextManifest(r io.Reader) ([]InputItem, error) {
	var items []InputItem
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, InputItem{
			ID:   fmt.Sprintf("line-%d", lineNum),
			Path: line,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return items, nil
}

// WriteJSONL writes one JSON object per item in input order.
func (r *Result) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	for i := range r.Items {
		if err := enc.Encode(&r.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

// SaveJSONL writes the items to path, replacing any existing file.
func (r *Result) SaveJSONL(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.WriteJSONL(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (r *Result) Summary() string {
	var sb strings.Builder
	sb.WriteString("=== Batch Summary ===\n")
	sb.WriteString(fmt.Sprintf("Total:     %d\n", r.Total))
	sb.WriteString(fmt.Sprintf("Success:   %d\n", r.Success))
	sb.WriteString(fmt.Sprintf("Failed:    %d\n", r.Failed))
	sb.WriteString(fmt.Sprintf("Skipped:   %d\n", r.Skipped))
	sb.WriteString(fmt.Sprintf("Duration:  %v\n", r.Duration.Round(time.Millisecond)))
	return sb.String()
}
