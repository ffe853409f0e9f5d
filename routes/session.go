package routes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"property-chatbot-api/internal/logger"
	"property-chatbot-api/models"
	"property-chatbot-api/services"
	"property-chatbot-api/utils"
)

const maxCleanupBody = 4 << 10

func setupSessionRoutes(api *gin.RouterGroup, sessions SessionManager) {
	api.POST("/cleanup-session", handleCleanup(sessions))
	api.GET("/sessions/:id/documents", handleSessionDocuments(sessions))
	api.GET("/sessions/:id/transcript", handleTranscript(sessions))
}

// handleCleanup accepts a JSON body, or the text/plain body that
// navigator.sendBeacon posts when the page unloads.
func handleCleanup(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CleanupRequest
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCleanupBody))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", nil)
			return
		}
		if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
			if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
				utils.RespondWithBadRequest(c, "Invalid request body", gin.H{"error": err.Error()})
				return
			}
		}
		if req.SessionID == "" {
			req.SessionID = c.Query("session_id")
		}

		resp, err := sessions.Cleanup(c.Request.Context(), req.SessionID)
		if errors.Is(err, services.ErrSessionRequired) {
			utils.RespondWithBadRequest(c, "session_id is required", nil)
			return
		}
		if err != nil {
			logger.Error("Session cleanup failed", "session_id", req.SessionID, "error", err)
			utils.RespondWithInternalError(c, "Failed to clean up session", nil)
			return
		}
		c.Set("session_id", req.SessionID)
		c.JSON(http.StatusOK, resp)
	}
}

func handleSessionDocuments(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("id")
		listing, err := sessions.Documents(c.Request.Context(), sessionID)
		if err != nil {
			logger.Error("Listing session documents failed", "session_id", sessionID, "error", err)
			utils.RespondWithInternalError(c, "Failed to list session documents", nil)
			return
		}
		c.JSON(http.StatusOK, listing)
	}
}

func handleTranscript(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("id")
		exchanges, err := sessions.Transcript(c.Request.Context(), sessionID)
		if err != nil {
			logger.Error("Loading transcript failed", "session_id", sessionID, "error", err)
			utils.RespondWithInternalError(c, "Failed to load transcript", nil)
			return
		}
		if len(exchanges) == 0 {
			utils.RespondWithNotFound(c, "No transcript found for this session")
			return
		}

		file, err := services.ExportTranscript(sessionID, exchanges, c.DefaultQuery("format", services.ExportJSON))
		if err != nil {
			utils.RespondWithBadRequest(c, err.Error(), nil)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
		c.Data(http.StatusOK, file.ContentType, file.Data)
	}
}
