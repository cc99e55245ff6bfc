package handler

import (
	"context"
	"encoding/json"

	"jobmatch-go/internal/domain"
	"jobmatch-go/internal/ingest"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

// IngestHandler triggers and reports ingestion runs.
type IngestHandler struct {
	runs   *ingest.RunService
	logger zerolog.Logger
}

// NewIngestHandler creates the handler.
func NewIngestHandler(runs *ingest.RunService, logger zerolog.Logger) *IngestHandler {
	return &IngestHandler{
		runs:   runs,
		logger: logger.With().Str("component", "ingest_handler").Logger(),
	}
}

type ingestRunBody struct {
	SourceName domain.SourceName `json:"source_name"`
}

// HandleStartRun handles POST /api/v1/ingest/run. The run executes
// asynchronously; the response carries the run ID to poll.
func (h *IngestHandler) HandleStartRun(ctx context.Context, c *app.RequestContext) {
	var body ingestRunBody
	if err := c.BindJSON(&body); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	runID, err := h.runs.StartRun(ctx, body.SourceName)
	if err != nil {
		status, msg := classifyError(err)
		h.logger.Error().Err(err).Str("source", string(body.SourceName)).Msg("failed to start run")
		c.JSON(status, map[string]string{"error": msg})
		return
	}

	c.JSON(consts.StatusAccepted, map[string]interface{}{
		"run_id":      runID,
		"source_name": body.SourceName,
		"status_url":  "/api/v1/ingest/runs/" + runID,
	})
}

// HandleGetRun handles GET /api/v1/ingest/runs/:run_id.
func (h *IngestHandler) HandleGetRun(ctx context.Context, c *app.RequestContext) {
	runID := c.Param("run_id")
	if runID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "run_id is required"})
		return
	}

	run, err := h.runs.GetRun(ctx, runID)
	if err != nil {
		status, msg := classifyError(err)
		c.JSON(status, map[string]string{"error": msg})
		return
	}

	resp := map[string]interface{}{
		"run_id":      run.RunID,
		"source_name": run.SourceName,
		"status":      run.Status,
		"stage":       run.Stage,
		"created_at":  run.CreatedAt,
	}
	if run.StartedAt != nil {
		resp["started_at"] = run.StartedAt
	}
	if run.FinishedAt != nil {
		resp["finished_at"] = run.FinishedAt
	}
	if run.ErrorText != "" {
		resp["error"] = run.ErrorText
	}
	if len(run.SummaryJSON) > 0 {
		var summary ingest.Summary
		if err := json.Unmarshal(run.SummaryJSON, &summary); err == nil {
			resp["summary"] = summary
		}
	}
	c.JSON(consts.StatusOK, resp)
}

// HandleListSources handles GET /api/v1/ingest/sources.
func (h *IngestHandler) HandleListSources(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, map[string]interface{}{
		"sources": h.runs.Sources(),
	})
}
