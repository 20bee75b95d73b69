package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/policyingest/internal/config"
	"github.com/JonMunkholm/policyingest/internal/core"
	_ "github.com/JonMunkholm/policyingest/internal/core/tables"
	"github.com/JonMunkholm/policyingest/internal/store/memory"
)

const policyCSV = "Policy Number,Policy Start Date,Policy End Date,Category,Company,Email,First Name,DOB,Phone,User Type\n" +
	"P-1,2024-01-01,2024-12-31,Auto,Acme,ann@x.com,Ann,1990-05-01,555,Active\n" +
	"P-2,2024-02-01,2025-01-31,Home,Zeta,bo@x.com,Bo,1985-03-02,556,Active\n"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Upload: config.UploadConfig{
			MaxFileSize:   1 << 20,
			TempDir:       t.TempDir(),
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
			Timeout:       5 * time.Second,
		},
		Rate:    config.RateLimitConfig{Enabled: false, RequestsPerMinute: 100, UploadLimit: 10},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *memory.Store) {
	t.Helper()
	db := memory.New()
	svc := core.NewService(db.Opener(), core.ServiceConfig{
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		MaxWait:       cfg.Upload.MaxWaitTime,
	})
	t.Cleanup(svc.Close)
	return NewServer(svc, core.NewQueryService(db), cfg), db
}

func uploadRequest(t *testing.T, target, name, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestIndex(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, Version, body["version"])
	assert.Contains(t, body["endpoints"], "upload")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	jobs := body["jobs"].(map[string]any)
	assert.Equal(t, float64(2), jobs["max_concurrent"])
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpload_Sync(t *testing.T) {
	s, db := newTestServer(t, testConfig(t))

	rec := serve(s, uploadRequest(t, "/api/policy/upload", "policies.csv", policyCSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Job-ID"))

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["processed"])
	assert.Equal(t, float64(2), body["total"])
	assert.Len(t, db.All(core.KindPolicy), 2)
}

func TestUpload_UnsupportedFormat(t *testing.T) {
	s, db := newTestServer(t, testConfig(t))

	rec := serve(s, uploadRequest(t, "/api/policy/upload", "policies.txt", policyCSV))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])
	assert.NotContains(t, body, "processed")
	assert.Empty(t, db.All(core.KindPolicy))
}

func TestUpload_NoFile(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/policy/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := serve(s, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE004", decodeBody(t, rec)["code"])
}

func TestUpload_TooLarge(t *testing.T) {
	cfg := testConfig(t)
	cfg.Upload.MaxFileSize = 64
	s, _ := newTestServer(t, cfg)

	rec := serve(s, uploadRequest(t, "/api/policy/upload", "policies.csv", policyCSV))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "FILE001", decodeBody(t, rec)["code"])
}

func TestUpload_AsyncThenResult(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	rec := serve(s, uploadRequest(t, "/api/policy/upload?async=true", "policies.csv", policyCSV))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	jobID, _ := decodeBody(t, rec)["jobId"].(string)
	require.NotEmpty(t, jobID)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["processed"])

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeBody(t, rec)
	assert.Equal(t, true, st["done"])
	assert.Equal(t, "policies.csv", st["fileName"])
}

func TestJobEvents(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	rec := serve(s, uploadRequest(t, "/api/policy/upload", "policies.csv", policyCSV))
	require.Equal(t, http.StatusOK, rec.Code)
	jobID := rec.Header().Get("X-Job-ID")

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.Contains(t, out, "event: progress\ndata: {\"type\":\"progress\",\"message\":\"Processing 2 records...\"}\n\n")
	assert.True(t, strings.HasSuffix(out, "event: complete\ndata: {\"type\":\"complete\",\"processed\":2,\"total\":2}\n\n"), out)
}

func TestJob_Unknown(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	for _, path := range []string{"/api/jobs/nope", "/api/jobs/nope/status", "/api/jobs/nope/events"} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "UPL003", decodeBody(t, rec)["code"], path)
	}
}

func TestQueries(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	rec := serve(s, uploadRequest(t, "/api/policy/upload", "policies.csv", policyCSV))
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("search", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/policy/search?username=an", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(1), body["count"])
	})

	t.Run("search missing name", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/policy/search", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VAL007", decodeBody(t, rec)["code"])
	})

	t.Run("search no match", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/policy/search?username=zed", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("aggregate", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/policy/aggregate", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(2), body["totalUsers"])
		assert.NotContains(t, body, "message")
	})

	t.Run("status", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/policy/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		counts := decodeBody(t, rec)["counts"].(map[string]any)
		assert.Equal(t, float64(2), counts["policies"])
		assert.Equal(t, float64(2), counts["users"])
	})
}

func TestAggregate_Empty(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/policy/aggregate", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["totalUsers"])
	assert.Equal(t, "No users found", body["message"])
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, UploadLimit: 1}
	s, _ := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE001", decodeBody(t, rec)["code"])
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	s, _ := newTestServer(t, cfg)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/policy/aggregate", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/policy/aggregate", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = serve(s, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRespondError_Formats(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	t.Run("htmx", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil)
		req.Header.Set("HX-Request", "true")
		rec := serve(s, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), `role="alert"`)
		assert.Contains(t, rec.Body.String(), "UPL003")
	})

	t.Run("text", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil)
		req.Header.Set("Accept", "text/plain")
		rec := serve(s, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "(UPL003)")
	})
}

func TestErrorFragment_Escapes(t *testing.T) {
	var buf bytes.Buffer
	err := errorFragment(core.UserMessage{Message: "<b>bad</b>", Action: "retry", Code: "X1"}).Render(t.Context(), &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "&lt;b&gt;bad&lt;/b&gt;")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrInvalidInput, http.StatusBadRequest},
		{core.ErrNotFound, http.StatusNotFound},
		{core.ErrJobNotFound, http.StatusNotFound},
		{core.ErrTooManyUploads, http.StatusServiceUnavailable},
		{errRateLimited, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
