// Package handler contains the HTTP handlers of the matching engine.
package handler

import (
	"context"
	"errors"

	"jobmatch-go/internal/domain"
	"jobmatch-go/internal/scoring"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

// MatchHandler serves the scoring endpoint.
type MatchHandler struct {
	matches *scoring.MatchService
	logger  zerolog.Logger
}

// NewMatchHandler creates the handler.
func NewMatchHandler(matches *scoring.MatchService, logger zerolog.Logger) *MatchHandler {
	return &MatchHandler{
		matches: matches,
		logger:  logger.With().Str("component", "match_handler").Logger(),
	}
}

// matchRequestBody is the POST /match body.
type matchRequestBody struct {
	CandidateID  string `json:"candidate_id"`
	Location     string `json:"location,omitempty"`
	RemotePolicy string `json:"remote_policy,omitempty"`
	MinSalary    *int   `json:"min_salary,omitempty"`
	TopK         int    `json:"top_k,omitempty"`
}

// HandleMatch handles POST /api/v1/match.
func (h *MatchHandler) HandleMatch(ctx context.Context, c *app.RequestContext) {
	var body matchRequestBody
	if err := c.BindJSON(&body); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	resp, err := h.matches.Match(ctx, &scoring.MatchRequest{
		CandidateID:  body.CandidateID,
		Location:     body.Location,
		RemotePolicy: body.RemotePolicy,
		MinSalary:    body.MinSalary,
		TopK:         body.TopK,
	})
	if err != nil {
		status, msg := classifyError(err)
		h.logger.Error().Err(err).Str("candidate_id", body.CandidateID).Msg("match request failed")
		c.JSON(status, map[string]string{"error": msg})
		return
	}

	c.JSON(consts.StatusOK, map[string]interface{}{
		"candidate_id": body.CandidateID,
		"degraded":     resp.Degraded,
		"count":        len(resp.Results),
		"results":      resp.Results,
	})
}

// classifyError maps the error taxonomy onto HTTP statuses.
func classifyError(err error) (int, string) {
	var validation *domain.InputValidationError
	var tooLong *domain.InputTooLongError
	var capacity *domain.CapacityExceededError
	switch {
	case errors.As(err, &validation):
		return consts.StatusBadRequest, validation.Error()
	case errors.As(err, &tooLong):
		return consts.StatusBadRequest, tooLong.Error()
	case errors.Is(err, domain.ErrNotFound):
		return consts.StatusNotFound, "not found"
	case errors.As(err, &capacity):
		return consts.StatusTooManyRequests, capacity.Error()
	case domain.IsTransient(err):
		return consts.StatusServiceUnavailable, "upstream provider unavailable, retry later"
	case errors.Is(err, context.DeadlineExceeded):
		return consts.StatusGatewayTimeout, "request timed out"
	default:
		return consts.StatusInternalServerError, "internal error"
	}
}
