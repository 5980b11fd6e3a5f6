package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/vetscan/internal/analyzer"
	"github.com/gmsas95/vetscan/internal/config"
	"github.com/gmsas95/vetscan/internal/diet"
	"github.com/gmsas95/vetscan/internal/metrics"
	"github.com/gmsas95/vetscan/internal/prescription"
	"github.com/gmsas95/vetscan/internal/store"
)

type fakeProcessor struct {
	mu      sync.Mutex
	err     error
	path    string
	name    string
	existed bool
}

func (f *fakeProcessor) Process(ctx context.Context, path, displayName string) (*prescription.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.path = path
	f.name = displayName
	_, statErr := os.Stat(path)
	f.existed = statErr == nil
	if f.err != nil {
		return nil, f.err
	}
	a := analyzer.New(nil, nil).Analyze("Carprofen 75 mg twice daily for arthritis")
	return &prescription.Report{
		PrescriptionAnalysis: a,
		DietRecommendations:  diet.NewEngine(nil, nil).Recommend(a),
		UploadedFile:         displayName,
		AnalysisTimestamp:    "2024-01-01T00:00:00Z",
	}, nil
}

type fakeContacts struct {
	msgs []*store.ContactMessage
	err  error
}

func (f *fakeContacts) CreateContactMessage(msg *store.ContactMessage) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default(t.TempDir())
	cfg.RateLimit.Enabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, p Processor, contacts ContactStore) *Server {
	s, err := New(cfg, p, contacts, metrics.New(), zap.NewNop())
	require.NoError(t, err)
	return s
}

func multipartRequest(t *testing.T, target, field, filename string, content []byte) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if field != "" {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func uploadDirEntries(t *testing.T, cfg *config.Config) []os.DirEntry {
	entries, err := os.ReadDir(cfg.Storage.UploadDir)
	require.NoError(t, err)
	return entries
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig(t), &fakeProcessor{}, nil)

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[HealthResponse](t, resp)
	assert.Equal(t, "healthy", body.Status)
	_, err = time.Parse(time.RFC3339, body.Timestamp)
	assert.NoError(t, err)
}

func TestAnalyze_Success(t *testing.T) {
	cfg := testConfig(t)
	p := &fakeProcessor{}
	s := newTestServer(t, cfg, p, nil)

	for _, target := range []string{"/analyze_prescription", "/api/analyze"} {
		t.Run(target, func(t *testing.T) {
			req := multipartRequest(t, target, "file", "../Rex's rx.PDF", []byte("%PDF-1.4"))
			resp, err := s.app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

			body := decode[map[string]any](t, resp)
			assert.Equal(t, "Rexs_rx.PDF", body["uploaded_file"])
			assert.Contains(t, body, "prescription_analysis")
			assert.Contains(t, body, "diet_recommendations")
			assert.Contains(t, body, "analysis_timestamp")

			assert.True(t, p.existed, "upload saved before processing")
			assert.True(t, strings.HasSuffix(p.path, ".pdf"))
			assert.Equal(t, "Rexs_rx.PDF", p.name)
			assert.Empty(t, uploadDirEntries(t, cfg), "upload removed after processing")
		})
	}
}

func TestAnalyze_Failure(t *testing.T) {
	cfg := testConfig(t)
	p := &fakeProcessor{err: errors.New("extract: PDF processing failed")}
	s := newTestServer(t, cfg, p, nil)

	resp, err := s.app.Test(multipartRequest(t, "/analyze_prescription", "file", "scan.png", []byte("png")), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, "Analysis failed: extract: PDF processing failed", body.Error)
	assert.True(t, p.existed)
	assert.Empty(t, uploadDirEntries(t, cfg), "upload removed after failure too")
}

func TestAnalyze_BadRequests(t *testing.T) {
	s := newTestServer(t, testConfig(t), &fakeProcessor{}, nil)

	tests := []struct {
		name string
		req  func() *http.Request
		want string
	}{
		{"no multipart", func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/analyze_prescription", strings.NewReader("x"))
		}, "No file uploaded"},
		{"wrong field", func() *http.Request {
			return multipartRequest(t, "/analyze_prescription", "document", "rx.pdf", []byte("x"))
		}, "No file uploaded"},
		{"no parts", func() *http.Request {
			return multipartRequest(t, "/analyze_prescription", "", "", nil)
		}, "No file uploaded"},
		{"empty filename", func() *http.Request {
			return multipartRequest(t, "/analyze_prescription", "file", "", []byte("x"))
		}, "No file selected"},
		{"bad extension", func() *http.Request {
			return multipartRequest(t, "/analyze_prescription", "file", "rx.docx", []byte("x"))
		}, "Invalid file type"},
		{"no extension", func() *http.Request {
			return multipartRequest(t, "/analyze_prescription", "file", "pdf", []byte("x"))
		}, "Invalid file type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.app.Test(tt.req(), -1)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.want, decode[ErrorResponse](t, resp).Error)
		})
	}
}

func TestAnalyze_TooLarge(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.BodyLimitMB = 1
	s := newTestServer(t, cfg, &fakeProcessor{}, nil)

	req := multipartRequest(t, "/analyze_prescription", "file", "big.pdf", bytes.Repeat([]byte("a"), 2*1024*1024))
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestAnalyze_RateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1}
	s := newTestServer(t, cfg, &fakeProcessor{}, nil)

	resp, err := s.app.Test(multipartRequest(t, "/analyze_prescription", "file", "a.jpg", []byte("x")), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = s.app.Test(multipartRequest(t, "/analyze_prescription", "file", "a.jpg", []byte("x")), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, int64(1), s.metrics.Snapshot().RequestsBlocked)

	// health is never limited
	resp, err = s.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestContact(t *testing.T) {
	contacts := &fakeContacts{}
	s := newTestServer(t, testConfig(t), &fakeProcessor{}, contacts)

	req := httptest.NewRequest(http.MethodPost, "/contact_submit",
		strings.NewReader(`{"name":"Ann","email":"ann@example.com","subject":"Hi","message":"Question about diet"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ContactResponse{Success: true, Message: contactThanks}, decode[ContactResponse](t, resp))

	require.Len(t, contacts.msgs, 1)
	assert.Equal(t, "Ann", contacts.msgs[0].Name)
	assert.Equal(t, "Question about diet", contacts.msgs[0].Message)
}

func TestContact_Errors(t *testing.T) {
	s := newTestServer(t, testConfig(t), &fakeProcessor{}, &fakeContacts{err: errors.New("disk full")})

	for name, req := range map[string]func() *http.Request{
		"store failure": func() *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/contact_submit", strings.NewReader(`{"name":"A"}`))
			r.Header.Set("Content-Type", "application/json")
			return r
		},
		"not json": func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/contact_submit", strings.NewReader("name=A"))
		},
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := s.app.Test(req())
			require.NoError(t, err)
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			assert.Equal(t, ContactResponse{Success: false, Message: contactSorry}, decode[ContactResponse](t, resp))
		})
	}
}

func TestContact_Rejected(t *testing.T) {
	contacts := &fakeContacts{}
	s := newTestServer(t, testConfig(t), &fakeProcessor{}, contacts)

	req := httptest.NewRequest(http.MethodPost, "/contact_submit",
		strings.NewReader(`{"name":"Ann","message":"`+strings.Repeat("A", 500)+`"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ContactResponse{Success: false, Message: contactSorry}, decode[ContactResponse](t, resp))
	assert.Empty(t, contacts.msgs)
}

func TestContact_RealStore(t *testing.T) {
	st, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	defer st.Close()

	s := newTestServer(t, testConfig(t), &fakeProcessor{}, st)
	req := httptest.NewRequest(http.MethodPost, "/contact_submit", strings.NewReader(`{"name":"B","subject":"S"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	count, err := st.CountContactMessages()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMetricsEndpoints(t *testing.T) {
	s := newTestServer(t, testConfig(t), &fakeProcessor{}, nil)

	_, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), `vetscan_http_requests_total{route="/health",status="200"} 1`)

	resp, err = s.app.Test(httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	require.NoError(t, err)
	snap := decode[map[string]any](t, resp)
	assert.Contains(t, snap, "requests_total")
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, testConfig(t), &fakeProcessor{}, nil)

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not found", decode[ErrorResponse](t, resp).Error)
}

func TestClientLimiter(t *testing.T) {
	l := newClientLimiter(1, 2)
	now := time.Now()

	assert.True(t, l.allow("a", now))
	assert.True(t, l.allow("a", now))
	assert.False(t, l.allow("a", now))
	assert.True(t, l.allow("b", now), "separate bucket per client")
	assert.True(t, l.allow("a", now.Add(time.Second)))

	l.allow("c", now.Add(time.Hour))
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.clients, "a", "idle clients evicted")
	assert.Contains(t, l.clients, "c")
}
