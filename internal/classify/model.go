package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Predictor is the model stage. Implementations return the predicted
// category label and the model's confidence in it.
type Predictor interface {
	Predict(ctx context.Context, text string) (label string, score float64, err error)
}

// HTTPPredictor calls an external classification service over HTTP.
// A semaphore bounds in-flight requests so a burst of articles cannot
// overwhelm the model endpoint.
type HTTPPredictor struct {
	endpoint string
	apiKey   string
	client   *http.Client
	sem      chan struct{}
}

// NewHTTPPredictor builds a predictor against the given endpoint.
// maxConcurrent caps simultaneous requests; values below 1 mean 1.
func NewHTTPPredictor(endpoint, apiKey string, timeout time.Duration, maxConcurrent int) *HTTPPredictor {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &HTTPPredictor{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		sem:      make(chan struct{}, maxConcurrent),
	}
}

type predictRequest struct {
	Text string `json:"text"`
}

type predictResponse struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (p *HTTPPredictor) Predict(ctx context.Context, text string) (string, float64, error) {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return "", 0, ctx.Err()
	}

	payload, err := json.Marshal(predictRequest{Text: text})
	if err != nil {
		return "", 0, fmt.Errorf("encoding predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("building predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("calling model endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, fmt.Errorf("model endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("decoding model response: %w", err)
	}
	if out.Label == "" {
		return "", 0, fmt.Errorf("model response missing label")
	}
	return out.Label, out.Score, nil
}
