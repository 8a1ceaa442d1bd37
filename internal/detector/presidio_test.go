package detector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-deidentifier/internal/deid"
)

func TestPresidio_ConvertsCodePointOffsets(t *testing.T) {
	text := "Zoë Müller: zoe@example.com"

	var got analyzeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		// Code point offsets: "Zoë Müller" is [0,10), the email [12,27).
		_, _ = w.Write([]byte(`[
			{"entity_type":"PERSON","start":0,"end":10,"score":0.85},
			{"entity_type":"EMAIL_ADDRESS","start":12,"end":27,"score":1.0}
		]`))
	}))
	defer srv.Close()

	p := NewPresidio(srv.URL+"/", "", 0.4, nil)
	spans, err := p.Detect(context.Background(), text, []string{"PERSON", "EMAIL_ADDRESS"})
	require.NoError(t, err)

	assert.Equal(t, text, got.Text)
	assert.Equal(t, "en", got.Language)
	assert.Equal(t, []string{"PERSON", "EMAIL_ADDRESS"}, got.Entities)
	assert.InDelta(t, 0.4, got.ScoreThreshold, 1e-9)

	require.Len(t, spans, 2)
	assert.Equal(t, "Zoë Müller", text[spans[0].Start:spans[0].End])
	assert.Equal(t, "zoe@example.com", text[spans[1].Start:spans[1].End])
	assert.Equal(t, "EMAIL_ADDRESS", spans[1].EntityType)
}

func TestPresidio_DropsOutOfRangeResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"entity_type":"PERSON","start":2,"end":40,"score":0.9}]`))
	}))
	defer srv.Close()

	spans, err := NewPresidio(srv.URL, "en", 0, nil).Detect(context.Background(), "short", nil)
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestPresidio_FailuresWrapDetectorFailure(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		},
		"decode": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"not":"a list"}`))
		},
		"oversized": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat(" ", maxPresidioResponse+1)))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			_, err := NewPresidio(srv.URL, "en", 0, nil).Detect(context.Background(), "text", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, deid.ErrDetectorFailure)
		})
	}
}

func TestPresidio_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewPresidio(srv.URL, "en", 0, nil)
	p.Timeout = 50 * time.Millisecond
	_, err := p.Detect(context.Background(), "text", nil)
	assert.ErrorIs(t, err, deid.ErrDetectorFailure)
}

func TestPresidio_Unreachable(t *testing.T) {
	_, err := NewPresidio("http://127.0.0.1:1", "en", 0, nil).Detect(context.Background(), "text", nil)
	assert.ErrorIs(t, err, deid.ErrDetectorFailure)
}

func TestByteOffsets(t *testing.T) {
	assert.Equal(t, []int{0, 1, 3, 4}, byteOffsets("aéb"))
	assert.Equal(t, []int{0}, byteOffsets(""))
}
