package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"property-chatbot-api/internal/logger"
	"property-chatbot-api/internal/queue"
	"property-chatbot-api/middleware"
	"property-chatbot-api/utils"
)

func setupIndexerRoutes(api *gin.RouterGroup, indexer IndexerAdmin, q queue.Enqueuer) {
	idx := api.Group("/indexer")
	idx.GET("/status", handleIndexerStatus(indexer))
	idx.POST("/run", handleRunIndexer(indexer))
	idx.POST("/reindex", handleReindex(q))
}

func handleIndexerStatus(indexer IndexerAdmin) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := indexer.IndexerStatus(c.Request.Context())
		if err != nil {
			logger.Error("Indexer status failed", "error", err)
			utils.RespondWithInternalError(c, "Failed to get indexer status", nil)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func handleRunIndexer(indexer IndexerAdmin) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := indexer.RunIndexer(c.Request.Context()); err != nil {
			logger.Error("Indexer run failed", "error", err)
			utils.RespondWithInternalError(c, "Failed to trigger indexer", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Indexer triggered successfully"})
	}
}

func handleReindex(q queue.Enqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if q == nil {
			utils.RespondWithError(c, http.StatusServiceUnavailable, "queue_unavailable", "Background queue is not configured", nil)
			return
		}

		task, err := queue.NewRebuildIndexTask("api:" + middleware.GetRequestID(c))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create reindex task", nil)
			return
		}
		info, err := q.Enqueue(task)
		if errors.Is(err, asynq.ErrDuplicateTask) {
			utils.RespondWithError(c, http.StatusConflict, "reindex_pending", "A reindex is already queued", nil)
			return
		}
		if err != nil {
			logger.Error("Enqueue reindex failed", "error", err)
			utils.RespondWithInternalError(c, "Failed to enqueue reindex task", nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"message": "Reindex queued",
			"task_id": info.ID,
			"queue":   info.Queue,
		})
	}
}
