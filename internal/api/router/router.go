// Package router wires the HTTP routes.
package router

import (
	"context"

	"jobmatch-go/internal/api/handler"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// RegisterRoutes registers the public API.
func RegisterRoutes(h *server.Hertz, matchHandler *handler.MatchHandler, ingestHandler *handler.IngestHandler, jobsHandler *handler.JobsHandler) {
	api := h.Group("/api/v1")

	api.POST("/match", matchHandler.HandleMatch)

	api.GET("/jobs/:job_id", jobsHandler.HandleGetJob)

	api.POST("/ingest/run", ingestHandler.HandleStartRun)
	api.GET("/ingest/runs/:run_id", ingestHandler.HandleGetRun)
	api.GET("/ingest/sources", ingestHandler.HandleListSources)

	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}
