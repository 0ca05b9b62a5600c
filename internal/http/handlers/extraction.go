package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/Ridou/Omnii-One-sub008/internal/domain"
	"github.com/Ridou/Omnii-One-sub008/internal/http/response"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
	"github.com/Ridou/Omnii-One-sub008/internal/services"
)

type ExtractionHandler struct {
	log        *logger.Logger
	extraction services.ExtractionService
}

func NewExtractionHandler(log *logger.Logger, extraction services.ExtractionService) *ExtractionHandler {
	return &ExtractionHandler{
		log:        log.With("handler", "ExtractionHandler"),
		extraction: extraction,
	}
}

type extractRequest struct {
	Content string                 `json:"content"`
	Config  types.ExtractionConfig `json:"config"`
}

// POST /api/extract
func (h *ExtractionHandler) Extract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	if req.Content == "" {
		response.RespondError(c, http.StatusBadRequest, "content_required", fmt.Errorf("content is required"))
		return
	}
	if req.Config.Source == "" {
		response.RespondError(c, http.StatusBadRequest, "source_required", fmt.Errorf("config.source is required"))
		return
	}

	result, err := h.extraction.ExtractEntities(c.Request.Context(), req.Content, req.Config)
	if err != nil {
		h.log.Error("Extract failed", "error", err, "source", req.Config.Source)
		response.RespondFromError(c, "extraction_failed", err)
		return
	}
	response.RespondOK(c, result)
}
