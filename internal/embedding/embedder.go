package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"jobmatch-go/internal/config"
	"jobmatch-go/internal/domain"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
)

// Client talks to an OpenAI-compatible text-embedding endpoint. It
// implements eino's embedding.Embedder. Requests larger than the provider
// batch limit are split into sequential batches; a batch either fully
// succeeds or fully fails, so the output is always positionally aligned
// with the input.
type Client struct {
	apiKey       string
	model        string
	dimensions   int
	maxBatchSize int
	maxTextChars int
	baseURL      string
	httpClient   *http.Client
	budget       BudgetTracker
	logger       zerolog.Logger
}

var _ embedding.Embedder = (*Client)(nil)

// NewClient builds a provider client from config. budget may be nil, in
// which case spend is not tracked.
func NewClient(cfg config.EmbeddingConfig, budget BudgetTracker, logger zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &domain.ConfigurationError{Field: "embedding.api_key", Reason: "must not be empty"}
	}
	if cfg.BaseURL == "" {
		return nil, &domain.ConfigurationError{Field: "embedding.base_url", Reason: "must not be empty"}
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		dimensions:   cfg.Dimensions,
		maxBatchSize: cfg.MaxBatchSize,
		maxTextChars: cfg.MaxTextChars,
		baseURL:      cfg.BaseURL,
		httpClient:   &http.Client{Timeout: timeout},
		budget:       budget,
		logger:       logger.With().Str("component", "embedding_client").Logger(),
	}, nil
}

// Dimensions returns the configured vector dimensionality.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// embeddingRequest is the OpenAI-compatible request body.
type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the OpenAI-compatible response body.
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// EmbedStrings implements embedding.Embedder. Inputs are validated up
// front so a failure never costs a provider call.
func (c *Client) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	options := &embedding.Options{}
	embedding.GetCommonOptions(options, opts...)
	model := c.model
	if options.Model != nil && *options.Model != "" {
		model = *options.Model
	}

	for i, text := range texts {
		if text == "" {
			return nil, &domain.InputValidationError{
				Field:  fmt.Sprintf("texts[%d]", i),
				Reason: "must not be empty",
			}
		}
		if c.maxTextChars > 0 && len(text) > c.maxTextChars {
			return nil, &domain.InputTooLongError{Index: i, Length: len(text), Limit: c.maxTextChars}
		}
	}

	out := make([][]float64, 0, len(texts))
	batchSize := c.maxBatchSize
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		if c.budget != nil {
			if err := c.budget.Allow(ctx, estimateTokens(batch)); err != nil {
				return nil, err
			}
		}

		vectors, used, err := c.embedBatch(ctx, model, batch)
		if err != nil {
			// All-or-nothing per batch: the caller retries the whole
			// failed batch instead of getting partial rows.
			return nil, err
		}
		if c.budget != nil {
			c.budget.Record(used)
		}
		out = append(out, vectors...)
	}

	c.logger.Debug().Int("texts", len(texts)).Int("batches", (len(texts)+batchSize-1)/batchSize).
		Msg("embedded texts")
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, model string, batch []string) ([][]float64, int, error) {
	reqBody := embeddingRequest{Input: batch, Model: model}
	if c.dimensions > 0 {
		reqBody.Dimensions = c.dimensions
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, err
		}
		return nil, 0, &domain.TransientProviderError{Op: "embedding.request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &domain.TransientProviderError{Op: "embedding.read_response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("embedding API status %d: %s", resp.StatusCode, truncateBody(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, 0, &domain.TransientProviderError{Op: "embedding.request", Err: apiErr}
		}
		return nil, 0, apiErr
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, 0, fmt.Errorf("parse embedding response: %w", err)
	}
	if parsed.Error != nil {
		return nil, 0, fmt.Errorf("embedding API error: type=%s code=%s: %s",
			parsed.Error.Type, parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Data) != len(batch) {
		return nil, 0, fmt.Errorf("embedding API returned %d vectors for %d inputs", len(parsed.Data), len(batch))
	}

	// The provider reports an index per entry; respect it so ordering
	// never depends on response array order.
	vectors := make([][]float64, len(batch))
	for _, entry := range parsed.Data {
		if entry.Index < 0 || entry.Index >= len(batch) {
			return nil, 0, fmt.Errorf("embedding API returned out-of-range index %d", entry.Index)
		}
		vectors[entry.Index] = entry.Embedding
	}
	return vectors, parsed.Usage.TotalTokens, nil
}

// estimateTokens approximates token count before the provider reports the
// real usage. Four chars per token is the usual ballpark for English text.
func estimateTokens(texts []string) int {
	total := 0
	for _, t := range texts {
		total += len(t) / 4
	}
	if total == 0 {
		total = 1
	}
	return total
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
