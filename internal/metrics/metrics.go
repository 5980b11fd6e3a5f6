package metrics

import (
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Attempt outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeEmpty       = "empty"
	OutcomeFailure     = "failure"
	OutcomeUnavailable = "unavailable"
)

const namespace = "vetscan"

type Metrics struct {
	startTime time.Time

	requestsTotal   atomic.Int64
	requestsSuccess atomic.Int64
	requestsFailed  atomic.Int64
	requestsBlocked atomic.Int64

	extractionsTotal  atomic.Int64
	extractionsFailed atomic.Int64
	analysesTotal     atomic.Int64
	uploadsRejected   atomic.Int64
	contactMessages   atomic.Int64
	janitorRemoved    atomic.Int64

	activeRequests atomic.Int64

	responseTimes     []time.Duration
	responseTimesLock sync.Mutex

	strategyAttempts map[string]*atomic.Int64
	strategyLock     sync.Mutex

	registry           *prometheus.Registry
	attemptsVec        *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	confidenceHist     prometheus.Histogram
	httpRequests       *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

func New() *Metrics {
	m := &Metrics{
		startTime:        time.Now(),
		responseTimes:    make([]time.Duration, 0, 1000),
		strategyAttempts: make(map[string]*atomic.Int64),
		registry:         prometheus.NewRegistry(),
		attemptsVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_attempts_total",
			Help:      "Extraction strategy attempts by outcome.",
		}, []string{"strategy", "outcome"}),
		extractionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Time spent turning a document into text.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		confidenceHist: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_confidence",
			Help:      "Confidence score of completed analyses.",
			Buckets:   prometheus.LinearBuckets(0, 10, 10),
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
	}

	m.registry.MustRegister(
		m.attemptsVec,
		m.extractionDuration,
		m.confidenceHist,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) RecordRequest(route string, status int, d time.Duration) {
	m.requestsTotal.Add(1)
	if status < 400 {
		m.requestsSuccess.Add(1)
	} else {
		m.requestsFailed.Add(1)
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RecordResponseTime(d)
}

func (m *Metrics) RecordRequestBlocked() {
	m.requestsBlocked.Add(1)
}

// RecordAttempt counts one extraction strategy run.
func (m *Metrics) RecordAttempt(strategy, outcome string) {
	m.attemptsVec.WithLabelValues(strategy, outcome).Inc()

	m.strategyLock.Lock()
	defer m.strategyLock.Unlock()

	key := strategy + ":" + outcome
	if m.strategyAttempts[key] == nil {
		m.strategyAttempts[key] = &atomic.Int64{}
	}
	m.strategyAttempts[key].Add(1)
}

func (m *Metrics) ObserveExtraction(kind string, d time.Duration, success bool) {
	m.extractionsTotal.Add(1)
	if !success {
		m.extractionsFailed.Add(1)
	}
	m.extractionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveAnalysis(confidence int) {
	m.analysesTotal.Add(1)
	m.confidenceHist.Observe(float64(confidence))
}

func (m *Metrics) RecordUploadRejected() {
	m.uploadsRejected.Add(1)
}

func (m *Metrics) RecordContactMessage() {
	m.contactMessages.Add(1)
}

func (m *Metrics) RecordJanitorRemoved(n int) {
	m.janitorRemoved.Add(int64(n))
}

func (m *Metrics) RecordResponseTime(d time.Duration) {
	m.responseTimesLock.Lock()
	defer m.responseTimesLock.Unlock()

	m.responseTimes = append(m.responseTimes, d)
	if len(m.responseTimes) > 1000 {
		m.responseTimes = m.responseTimes[1:]
	}
}

func (m *Metrics) IncrementActiveRequests() {
	m.activeRequests.Add(1)
}

func (m *Metrics) DecrementActiveRequests() {
	m.activeRequests.Add(-1)
}

type Snapshot struct {
	Uptime            time.Duration    `json:"uptime"`
	RequestsTotal     int64            `json:"requests_total"`
	RequestsSuccess   int64            `json:"requests_success"`
	RequestsFailed    int64            `json:"requests_failed"`
	RequestsBlocked   int64            `json:"requests_blocked"`
	ExtractionsTotal  int64            `json:"extractions_total"`
	ExtractionsFailed int64            `json:"extractions_failed"`
	AnalysesTotal     int64            `json:"analyses_total"`
	UploadsRejected   int64            `json:"uploads_rejected"`
	ContactMessages   int64            `json:"contact_messages"`
	JanitorRemoved    int64            `json:"janitor_removed"`
	ActiveRequests    int64            `json:"active_requests"`
	AvgResponseTime   time.Duration    `json:"avg_response_time"`
	P99ResponseTime   time.Duration    `json:"p99_response_time"`
	StrategyAttempts  map[string]int64 `json:"strategy_attempts"`
	SuccessRate       float64          `json:"success_rate"`
}

func (m *Metrics) Snapshot() *Snapshot {
	s := &Snapshot{
		Uptime:            time.Since(m.startTime),
		RequestsTotal:     m.requestsTotal.Load(),
		RequestsSuccess:   m.requestsSuccess.Load(),
		RequestsFailed:    m.requestsFailed.Load(),
		RequestsBlocked:   m.requestsBlocked.Load(),
		ExtractionsTotal:  m.extractionsTotal.Load(),
		ExtractionsFailed: m.extractionsFailed.Load(),
		AnalysesTotal:     m.analysesTotal.Load(),
		UploadsRejected:   m.uploadsRejected.Load(),
		ContactMessages:   m.contactMessages.Load(),
		JanitorRemoved:    m.janitorRemoved.Load(),
		ActiveRequests:    m.activeRequests.Load(),
		StrategyAttempts:  make(map[string]int64),
	}

	if s.RequestsTotal > 0 {
		s.SuccessRate = float64(s.RequestsSuccess) / float64(s.RequestsTotal) * 100
	}

	m.responseTimesLock.Lock()
	if len(m.responseTimes) > 0 {
		var total time.Duration
		for _, rt := range m.responseTimes {
			total += rt
		}
		s.AvgResponseTime = total / time.Duration(len(m.responseTimes))

		sorted := slices.Clone(m.responseTimes)
		slices.Sort(sorted)
		p99Index := int(float64(len(sorted)) * 0.99)
		if p99Index >= len(sorted) {
			p99Index = len(sorted) - 1
		}
		s.P99ResponseTime = sorted[p99Index]
	}
	m.responseTimesLock.Unlock()

	m.strategyLock.Lock()
	for k, v := range m.strategyAttempts {
		s.StrategyAttempts[k] = v.Load()
	}
	m.strategyLock.Unlock()

	return s
}

// Registry exposes the prometheus registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func RecordAttempt(strategy, outcome string) {
	Default().RecordAttempt(strategy, outcome)
}

func ObserveExtraction(kind string, d time.Duration, success bool) {
	Default().ObserveExtraction(kind, d, success)
}

func ObserveAnalysis(confidence int) {
	Default().ObserveAnalysis(confidence)
}

func GetSnapshot() *Snapshot {
	return Default().Snapshot()
}
