package handler

import (
	"context"

	"jobmatch-go/internal/domain"
	"jobmatch-go/internal/storage/models"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

// JobReader is the slice of the relational store the jobs API reads from.
type JobReader interface {
	GetByJobID(ctx context.Context, jobID string) (*domain.JobPosting, error)
	CrossPostsFor(ctx context.Context, canonicalJobID string) ([]models.CrossPostLink, error)
}

// JobsHandler serves stored postings and their cross-post links.
type JobsHandler struct {
	store  JobReader
	logger zerolog.Logger
}

// NewJobsHandler creates the handler.
func NewJobsHandler(store JobReader, logger zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store:  store,
		logger: logger.With().Str("component", "jobs_handler").Logger(),
	}
}

type crossPostView struct {
	SourceName string  `json:"source_name"`
	SourceID   string  `json:"source_id"`
	Stage      string  `json:"stage"`
	Similarity float64 `json:"similarity"`
}

// HandleGetJob handles GET /api/v1/jobs/:job_id. The response carries the
// canonical posting plus every duplicate linked to it during ingestion.
func (h *JobsHandler) HandleGetJob(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "job_id is required"})
		return
	}

	posting, err := h.store.GetByJobID(ctx, jobID)
	if err != nil {
		status, msg := classifyError(err)
		if status == consts.StatusInternalServerError {
			h.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to load posting")
		}
		c.JSON(status, map[string]string{"error": msg})
		return
	}

	links, err := h.store.CrossPostsFor(ctx, jobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to load cross-post links")
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	crossPosts := make([]crossPostView, 0, len(links))
	for _, link := range links {
		crossPosts = append(crossPosts, crossPostView{
			SourceName: link.SourceName,
			SourceID:   link.SourceID,
			Stage:      link.Stage,
			Similarity: link.Similarity,
		})
	}

	c.JSON(consts.StatusOK, map[string]interface{}{
		"job":         posting,
		"cross_posts": crossPosts,
	})
}
