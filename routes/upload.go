package routes

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"property-chatbot-api/internal/config"
	"property-chatbot-api/internal/docintel"
	"property-chatbot-api/internal/logger"
	"property-chatbot-api/internal/session"
	"property-chatbot-api/middleware"
	"property-chatbot-api/services"
	"property-chatbot-api/utils"
)

// multipart framing allowance on top of the file itself
const uploadBodySlack = 1 << 20

func setupUploadRoutes(api *gin.RouterGroup, cfg *config.Config, uploads Uploader, rateLimit gin.HandlerFunc) {
	api.POST("/upload",
		rateLimit,
		middleware.RequestSizeLimit(cfg.MaxFileSizeBytes+uploadBodySlack),
		handleUpload(cfg, uploads),
	)
}

func handleUpload(cfg *config.Config, uploads Uploader) gin.HandlerFunc {
	return func(c *gin.Context) {
		header, err := c.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				utils.RespondWithTooLarge(c, fmt.Sprintf("File exceeds maximum size of %dMB", cfg.MaxFileSizeMB))
				return
			}
			utils.RespondWithBadRequest(c, "No file provided", nil)
			return
		}
		sessionID := c.PostForm("session_id")

		if header.Size > cfg.MaxFileSizeBytes {
			utils.RespondWithTooLarge(c, fmt.Sprintf("File exceeds maximum size of %dMB", cfg.MaxFileSizeMB))
			return
		}

		file, err := header.Open()
		if err != nil {
			utils.RespondWithBadRequest(c, "Cannot read uploaded file", nil)
			return
		}
		defer file.Close()

		content, err := io.ReadAll(io.LimitReader(file, cfg.MaxFileSizeBytes+1))
		if err != nil {
			utils.RespondWithBadRequest(c, "Cannot read uploaded file", nil)
			return
		}

		contentType := header.Header.Get("Content-Type")
		resp, err := uploads.Upload(c.Request.Context(), services.UploadInput{
			SessionID:   sessionID,
			Filename:    header.Filename,
			ContentType: contentType,
			Content:     content,
		})
		if err != nil {
			respondUploadError(c, cfg, err, services.DetectContentType(content, contentType, header.Filename))
			return
		}

		c.Set("session_id", resp.SessionID)
		c.JSON(http.StatusOK, resp)
	}
}

func respondUploadError(c *gin.Context, cfg *config.Config, err error, contentType string) {
	switch {
	case errors.Is(err, docintel.ErrUnsupportedType):
		utils.RespondWithError(c, http.StatusBadRequest, "unsupported_file_type",
			fmt.Sprintf("File type %s not supported", contentType), nil)
	case errors.Is(err, docintel.ErrInvalidUTF8):
		utils.RespondWithBadRequest(c, "Failed to extract text: "+docintel.Reason(err), nil)
	case errors.Is(err, services.ErrFileTooLarge):
		utils.RespondWithTooLarge(c, fmt.Sprintf("File exceeds maximum size of %dMB", cfg.MaxFileSizeMB))
	case errors.Is(err, session.ErrUploadLimitReached):
		utils.RespondWithError(c, http.StatusBadRequest, "upload_limit_reached",
			fmt.Sprintf("Maximum %d files per session reached", cfg.MaxUploadsPerSession), nil)
	case errors.Is(err, docintel.ErrExtractionFailed):
		utils.RespondWithError(c, http.StatusInternalServerError, "extraction_failed",
			"Failed to extract text: "+docintel.Reason(err), nil)
	default:
		logger.Error("Upload failed", "request_id", middleware.GetRequestID(c), "error", err)
		utils.RespondWithInternalError(c, "Failed to process upload", nil)
	}
}
