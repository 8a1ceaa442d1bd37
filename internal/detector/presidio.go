package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"document-deidentifier/internal/deid"
	"document-deidentifier/internal/logger"
)

const (
	// DefaultPresidioTimeout bounds a single /analyze call.
	DefaultPresidioTimeout = 30 * time.Second

	maxPresidioResponse = 10 << 20 // 10 MB
)

// Presidio calls a Presidio analyzer service over HTTP.
type Presidio struct {
	Endpoint string // base URL, e.g. http://localhost:5002
	Language string
	MinScore float64
	Timeout  time.Duration
	Client   *http.Client
	Logger   *logger.Logger
}

// NewPresidio returns a client for the analyzer at endpoint.
func NewPresidio(endpoint, language string, minScore float64, log *logger.Logger) *Presidio {
	if language == "" {
		language = "en"
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Presidio{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Language: language,
		MinScore: minScore,
		Timeout:  DefaultPresidioTimeout,
		Client:   http.DefaultClient,
		Logger:   log,
	}
}

type analyzeRequest struct {
	Text           string   `json:"text"`
	Language       string   `json:"language"`
	Entities       []string `json:"entities,omitempty"`
	ScoreThreshold float64  `json:"score_threshold,omitempty"`
}

type analyzeResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// Detect implements deid.Detector. The analyzer reports offsets in code
// points; they are converted to byte offsets into text. Every failure wraps
// deid.ErrDetectorFailure.
func (p *Presidio) Detect(ctx context.Context, text string, entities []string) ([]deid.Span, error) {
	reqBody, err := json.Marshal(analyzeRequest{
		Text:           text,
		Language:       p.Language,
		Entities:       entities,
		ScoreThreshold: p.MinScore,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", deid.ErrDetectorFailure, err)
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint+"/analyze", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", deid.ErrDetectorFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req) // #nosec G107 -- endpoint from trusted config
	if err != nil {
		return nil, fmt.Errorf("%w: %w", deid.ErrDetectorFailure, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPresidioResponse+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", deid.ErrDetectorFailure, err)
	}
	if len(body) > maxPresidioResponse {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", deid.ErrDetectorFailure, maxPresidioResponse)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: analyzer returned %s: %s", deid.ErrDetectorFailure, resp.Status, snippet(body))
	}

	var results []analyzeResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", deid.ErrDetectorFailure, err)
	}

	offsets := byteOffsets(text)
	spans := make([]deid.Span, 0, len(results))
	for _, r := range results {
		if r.Start < 0 || r.End < r.Start || r.End >= len(offsets) {
			p.log().Warnf("analyze", "dropping %s result with code point range [%d,%d) for text of %d code points",
				r.EntityType, r.Start, r.End, len(offsets)-1)
			continue
		}
		spans = append(spans, deid.Span{
			Start:      offsets[r.Start],
			End:        offsets[r.End],
			EntityType: r.EntityType,
			Score:      r.Score,
		})
	}
	p.log().Debugf("analyze", "%d spans in %d bytes", len(spans), len(text))
	return spans, nil
}

func (p *Presidio) log() *logger.Logger {
	if p.Logger == nil {
		return logger.Discard()
	}
	return p.Logger
}

// byteOffsets maps each code point index of s (plus the end) to its byte
// offset.
func byteOffsets(s string) []int {
	out := make([]int, 0, len(s)+1)
	for i := range s {
		out = append(out, i)
	}
	return append(out, len(s))
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
