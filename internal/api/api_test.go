package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-deidentifier/internal/config"
	"document-deidentifier/internal/deid"
	"document-deidentifier/internal/detector"
	"document-deidentifier/internal/logger"
	"document-deidentifier/internal/mapstore"
	"document-deidentifier/internal/metrics"
)

func testConfig() *config.Config {
	return &config.Config{
		Detector:     config.DetectorRegex,
		BindAddress:  "127.0.0.1",
		APIPort:      8090,
		MaxBodyBytes: 1 << 16,
	}
}

func newServer(t *testing.T, cfg *config.Config) (*Server, mapstore.Store) {
	t.Helper()
	det, err := detector.NewRegex()
	require.NoError(t, err)
	m := metrics.New()
	engine, err := deid.NewEngine(deid.Options{Detector: detector.NewCached(det, 64, nil, m), Generators: deid.DefaultGenerators(1), Metrics: m})
	require.NoError(t, err)
	store := mapstore.NewMemory()
	return New(cfg, engine, store, m, logger.Discard()), store
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestStatus(t *testing.T) {
	s, _ := newServer(t, testConfig())
	rr := do(t, s.Handler(), http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp["status"])
	assert.Equal(t, "regex", resp["detector"])
	assert.Equal(t, "memory", resp["mapStore"])
	assert.NotEmpty(t, resp["entities"])
}

func TestStatus_WrongMethod(t *testing.T) {
	s, _ := newServer(t, testConfig())
	rr := do(t, s.Handler(), http.MethodPost, "/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestAuth(t *testing.T) {
	cfg := testConfig()
	cfg.APIToken = "s3cret"
	s, _ := newServer(t, cfg)
	h := s.Handler()

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/status", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/status", "", "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/status", "", "Authorization", "s3cret").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/status", "", "Authorization", "Bearer s3cret").Code)
}

func TestDeidentifyReidentify_ByRunID(t *testing.T) {
	s, store := newServer(t, testConfig())
	h := s.Handler()

	original := `{"content":{"note":"Mail <alice@example.com> re: 123-45-6789","n":4},"source":"ticket-9"}`
	rr := do(t, h, http.MethodPost, "/deidentify", original)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		RunID    string              `json:"runId"`
		Content  deid.Value          `json:"content"`
		Mappings deid.ReplacementMap `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)
	note, _ := resp.Content.Get("note")
	assert.NotContains(t, note.Str(), "alice@example.com")
	assert.NotContains(t, note.Str(), "123-45-6789")
	assert.Contains(t, rr.Body.String(), `"Mail <`, "HTML must not be escaped")
	_, ok := resp.Mappings.Lookup("US_SSN", "123-45-6789")
	assert.True(t, ok)

	rec, err := store.Get(resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, "ticket-9", rec.Source)

	body, err := json.Marshal(map[string]any{"content": resp.Content, "runId": resp.RunID})
	require.NoError(t, err)
	rr = do(t, h, http.MethodPost, "/reidentify", string(body))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"content":{"note":"Mail <alice@example.com> re: 123-45-6789","n":4}}`, rr.Body.String())
}

func TestReidentify_WithInlineMappings(t *testing.T) {
	s, _ := newServer(t, testConfig())
	rr := do(t, s.Handler(), http.MethodPost, "/reidentify",
		`{"content":"Hi Mary Major","mappings":{"PERSON":{"Jane Doe":"Mary Major"}}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"content":"Hi Jane Doe"}`, rr.Body.String())
}

func TestReidentify_Errors(t *testing.T) {
	s, _ := newServer(t, testConfig())
	h := s.Handler()

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/reidentify", `{"content":"x"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/reidentify", `{"content":"x","runId":"nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/reidentify", `{"content":`).Code)
}

func TestDeidentify_BodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodyBytes = 32
	s, _ := newServer(t, cfg)
	body := `{"content":"` + strings.Repeat("a", 100) + `"}`
	rr := do(t, s.Handler(), http.MethodPost, "/deidentify", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestMaps(t *testing.T) {
	s, store := newServer(t, testConfig())
	h := s.Handler()
	m := deid.NewReplacementMap()
	m.Set("PERSON", "Jane Doe", "Mary Major")
	rec, err := store.Save("memo.txt", m)
	require.NoError(t, err)

	rr := do(t, h, http.MethodGet, "/maps", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []mapstore.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)
	assert.Empty(t, list[0].Mappings)

	rr = do(t, h, http.MethodGet, "/maps/"+rec.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got mapstore.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, m, got.Mappings)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodDelete, "/maps/"+rec.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/maps/"+rec.ID, "").Code)
}

func TestMetrics(t *testing.T) {
	s, _ := newServer(t, testConfig())
	h := s.Handler()
	for range 2 {
		require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/deidentify", `{"content":"ssn 123-45-6789"}`).Code)
	}

	rr := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var snap metrics.Snapshot
	require.NoError(t, json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(&snap))
	assert.Equal(t, int64(2), snap.Documents.Deidentified)
	assert.Equal(t, int64(1), snap.Detector.CacheMisses)
	assert.Equal(t, int64(1), snap.Detector.CacheHits)
}

func TestMetrics_Disabled(t *testing.T) {
	det, err := detector.NewRegex()
	require.NoError(t, err)
	engine, err := deid.NewEngine(deid.Options{Detector: det})
	require.NoError(t, err)
	s := New(testConfig(), engine, nil, nil, nil)
	h := s.Handler()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/maps", "").Code)
}
