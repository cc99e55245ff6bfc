package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType classifies span errors for filtering in the trace backend.
type ErrorType string

const (
	ErrorTypeDB         ErrorType = "db"
	ErrorTypeVectorDB   ErrorType = "vector_db"
	ErrorTypeValidation ErrorType = "validation"
)

// RecordError records err on the span with a uniform error classification.
func RecordError(span trace.Span, err error, errorType ErrorType) {
	if span == nil || err == nil {
		return
	}

	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", err.Error()),
	)
	span.SetStatus(codes.Error, err.Error())
}
