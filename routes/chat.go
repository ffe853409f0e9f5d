package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"property-chatbot-api/internal/logger"
	"property-chatbot-api/middleware"
	"property-chatbot-api/models"
	"property-chatbot-api/utils"
)

func setupChatRoutes(api *gin.RouterGroup, chat ChatResponder, rateLimit gin.HandlerFunc) {
	api.POST("/chat", rateLimit, handleChat(chat))
}

// handleChat answers a question. Provider failures are already folded into
// the apology answer by the service, so an error here is unexpected.
func handleChat(chat ChatResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "message is required and must be at most 4000 characters", gin.H{"error": err.Error()})
			return
		}

		resp, err := chat.Chat(c.Request.Context(), req)
		if err != nil {
			logger.Error("Chat failed", "session_id", req.SessionID, "request_id", middleware.GetRequestID(c), "error", err)
			utils.RespondWithInternalError(c, "Failed to process chat request", nil)
			return
		}

		c.Set("session_id", resp.SessionID)
		c.JSON(http.StatusOK, resp)
	}
}
