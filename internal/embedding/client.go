// Package embedding calls the external text-embedding service used to
// vectorize catalog printable text for downstream search.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// MaxDimensions is the widest vector the catalog accepts. Longer vectors are
// dropped by callers rather than stored.
const MaxDimensions = 384

// Func generates an embedding for one piece of text.
type Func func(ctx context.Context, text string) ([]float32, error)

// Client talks to an HTTP embedding service that accepts {"text": ...} and
// answers {"embedding": [...]}.
type Client struct {
	httpClient *http.Client
	serviceURL string
	logger     *slog.Logger
}

func NewClient(serviceURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		serviceURL: serviceURL,
		logger:     logger.With("component", "embedding_client"),
	}
}

type embeddingRequest struct {
	Text string `json:"text"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(embeddingRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding service returned non-OK status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	c.logger.DebugContext(ctx, "Embedding generated", "dims", len(out.Embedding))
	return out.Embedding, nil
}

// Func adapts the client to the Func signature.
func (c *Client) Func() Func {
	return c.Embed
}
