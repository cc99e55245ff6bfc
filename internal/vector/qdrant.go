package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"jobmatch-go/internal/config"
	"jobmatch-go/internal/constants"
	"jobmatch-go/internal/domain"
	"jobmatch-go/internal/tracing"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var qdrantTracer = otel.Tracer("jobmatch-go/vector/qdrant")

// PointIDNamespace is the UUIDv5 namespace for deterministic point IDs.
// The same external key always maps to the same point, which is what makes
// Upsert idempotent across ingestion runs.
var PointIDNamespace = uuid.Must(uuid.FromString("5b5c8f8e-50f1-4f24-9c2a-4f1f0c3f2ab1"))

// Qdrant implements Index against a Qdrant server over its HTTP API.
type Qdrant struct {
	endpoint       string
	collectionName string
	vectorSize     int
	apiKey         string
	httpClient     *http.Client
}

var _ Index = (*Qdrant)(nil)

// QdrantOption configures the Qdrant client.
type QdrantOption func(*Qdrant)

// WithHTTPTimeout overrides the HTTP client timeout.
func WithHTTPTimeout(timeout time.Duration) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = &http.Client{Timeout: timeout}
	}
}

// NewQdrant creates a client and ensures the collection exists with cosine
// distance.
func NewQdrant(cfg *config.QdrantConfig, opts ...QdrantOption) (*Qdrant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant config must not be nil")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:6333"
	}
	collectionName := cfg.Collection
	if collectionName == "" {
		collectionName = "job_postings"
	}
	vectorSize := cfg.Dimension
	if vectorSize <= 0 {
		vectorSize = 1024
	}

	q := &Qdrant{
		endpoint:       endpoint,
		collectionName: collectionName,
		vectorSize:     vectorSize,
		apiKey:         cfg.APIKey,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := q.ensureCollectionExists(context.Background()); err != nil {
		return nil, fmt.Errorf("ensure collection %q: %w", collectionName, err)
	}
	return q, nil
}

// PointID maps an external key to its deterministic Qdrant point UUID.
func PointID(key string) string {
	return uuid.NewV5(PointIDNamespace, key).String()
}

func (q *Qdrant) ensureCollectionExists(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.EnsureCollectionExists",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("db.vector_size", q.vectorSize),
	)

	status, _, err := q.do(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", q.collectionName), nil)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}
	if status == http.StatusOK {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if status != http.StatusNotFound {
		err := fmt.Errorf("check collection: unexpected status %d", status)
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}

	span.AddEvent("collection_not_found", trace.WithAttributes(
		attribute.String("action", "create_collection"),
	))
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.vectorSize,
			"distance": "Cosine",
		},
	}
	status, respBody, err := q.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", q.collectionName), body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}
	if status != http.StatusOK {
		err := fmt.Errorf("create collection: status %d, body: %s", status, respBody)
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Upsert implements Index. wait=true makes the write visible to the next
// query, so a retried INDEXING step observes its own effects.
func (q *Qdrant) Upsert(ctx context.Context, id string, vec []float64, payload map[string]any) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.Upsert",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.collection", q.collectionName),
		attribute.String("point.key", id),
	)

	if id == "" {
		err := &domain.InputValidationError{Field: "id", Reason: "must not be empty"}
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return err
	}
	if len(vec) != q.vectorSize {
		err := &domain.InputValidationError{
			Field:  "vector",
			Reason: fmt.Sprintf("dimension %d does not match collection %d", len(vec), q.vectorSize),
		}
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return err
	}

	enriched := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		enriched[k] = v
	}
	enriched[constants.PayloadFieldJobID] = id

	body := map[string]any{
		"points": []map[string]any{{
			"id":      PointID(id),
			"vector":  vec,
			"payload": enriched,
		}},
	}
	status, respBody, err := q.do(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s/points?wait=true", q.collectionName), body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return &domain.TransientProviderError{Op: "qdrant.upsert", Err: err}
	}
	if status != http.StatusOK {
		err := fmt.Errorf("upsert point: status %d, body: %s", status, respBody)
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		if status == http.StatusTooManyRequests || status >= 500 {
			return &domain.TransientProviderError{Op: "qdrant.upsert", Err: err}
		}
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Query implements Index. Filtering runs server-side; the posted_at
// tiebreak for equal scores is applied client-side on the returned page.
func (q *Qdrant) Query(ctx context.Context, vec []float64, topK int, filter Filter) ([]ScoredMatch, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.Query",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("query.top_k", topK),
	)

	if topK <= 0 {
		err := &domain.InputValidationError{Field: "topK", Reason: "must be positive"}
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	body := map[string]any{
		"vector":       vec,
		"limit":        topK,
		"with_payload": true,
	}
	if clauses := qdrantClauses(filter); len(clauses) > 0 {
		body["filter"] = map[string]any{"must": clauses}
	}

	status, respBody, err := q.do(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/search", q.collectionName), body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, &domain.TransientProviderError{Op: "qdrant.query", Err: err}
	}
	if status != http.StatusOK {
		err := fmt.Errorf("search points: status %d, body: %s", status, respBody)
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		if status == http.StatusTooManyRequests || status >= 500 {
			return nil, &domain.TransientProviderError{Op: "qdrant.query", Err: err}
		}
		return nil, err
	}

	var parsed struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	matches := make([]ScoredMatch, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		id, _ := r.Payload[constants.PayloadFieldJobID].(string)
		matches = append(matches, ScoredMatch{ID: id, Score: r.Score, Payload: r.Payload})
	}
	sortMatches(matches)

	span.SetAttributes(attribute.Int("query.result_count", len(matches)))
	span.SetStatus(codes.Ok, "")
	return matches, nil
}

// Delete implements Index. Deleting a missing point is a no-op on the
// server side.
func (q *Qdrant) Delete(ctx context.Context, id string) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.Delete",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.collection", q.collectionName),
		attribute.String("point.key", id),
	)

	body := map[string]any{
		"points": []string{PointID(id)},
	}
	status, respBody, err := q.do(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collectionName), body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return &domain.TransientProviderError{Op: "qdrant.delete", Err: err}
	}
	if status != http.StatusOK {
		err := fmt.Errorf("delete point: status %d, body: %s", status, respBody)
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		if status == http.StatusTooManyRequests || status >= 500 {
			return &domain.TransientProviderError{Op: "qdrant.delete", Err: err}
		}
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// do sends one JSON request and returns status and raw body.
func (q *Qdrant) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.endpoint+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
