package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/Ridou/Omnii-One-sub008/internal/domain"
	"github.com/Ridou/Omnii-One-sub008/internal/http/response"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
	"github.com/Ridou/Omnii-One-sub008/internal/services"
)

const defaultPendingLimit = 50

type QualityGateHandler struct {
	log  *logger.Logger
	gate services.QualityGateService
}

func NewQualityGateHandler(log *logger.Logger, gate services.QualityGateService) *QualityGateHandler {
	return &QualityGateHandler{
		log:  log.With("handler", "QualityGateHandler"),
		gate: gate,
	}
}

type gateRequest struct {
	Entities []types.EnhancedEntity `json:"entities"`
	Config   types.ExtractionConfig `json:"config"`
	// Queue sends review-bucket entities to the review queue as a side effect.
	Queue         bool   `json:"queue,omitempty"`
	SourceContent string `json:"source_content,omitempty"`
}

// POST /api/quality-gate
func (h *QualityGateHandler) GateBatch(c *gin.Context) {
	var req gateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	if len(req.Entities) == 0 {
		response.RespondError(c, http.StatusBadRequest, "entities_required", fmt.Errorf("entities are required"))
		return
	}

	result := h.gate.GateBatch(req.Entities, req.Config)

	var queued []types.ReviewQueueItem
	if req.Queue {
		for _, d := range result.Review {
			item, err := h.gate.AddToReviewQueue(c.Request.Context(), d.Entity, req.SourceContent, req.Config.Source, req.Config.SourceID)
			if err != nil {
				h.log.Error("GateBatch failed (queue review item)", "error", err, "entity", d.Entity.Name)
				response.RespondFromError(c, "queue_review_failed", err)
				return
			}
			queued = append(queued, *item)
		}
	}

	response.RespondOK(c, gin.H{
		"accepted": result.Accepted,
		"review":   result.Review,
		"rejected": result.Rejected,
		"queued":   queued,
	})
}

// GET /api/reviews/pending
func (h *QualityGateHandler) ListPendingReviews(c *gin.Context) {
	limit := queryInt(c, "limit", defaultPendingLimit)
	items, err := h.gate.GetPendingReviews(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("ListPendingReviews failed", "error", err)
		response.RespondFromError(c, "list_reviews_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"items": items})
}

type resolveReviewRequest struct {
	ReviewedBy string `json:"reviewed_by"`
	Feedback   string `json:"feedback,omitempty"`
}

// POST /api/reviews/:id/approve
func (h *QualityGateHandler) ApproveReview(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_review_id", err)
		return
	}
	var req resolveReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}

	nodeID, err := h.gate.ApproveReviewItem(c.Request.Context(), id, req.ReviewedBy)
	if err != nil {
		h.log.Error("ApproveReview failed", "error", err, "review_id", id)
		response.RespondFromError(c, "approve_review_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"review_id": id, "node_id": nodeID})
}

// POST /api/reviews/:id/reject
func (h *QualityGateHandler) RejectReview(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_review_id", err)
		return
	}
	var req resolveReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}

	if err := h.gate.RejectReviewItem(c.Request.Context(), id, req.ReviewedBy, req.Feedback); err != nil {
		h.log.Error("RejectReview failed", "error", err, "review_id", id)
		response.RespondFromError(c, "reject_review_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"review_id": id})
}

// GET /api/stats/quality
func (h *QualityGateHandler) QualityStats(c *gin.Context) {
	stats, err := h.gate.GetQualityStats(c.Request.Context())
	if err != nil {
		h.log.Error("QualityStats failed", "error", err)
		response.RespondFromError(c, "quality_stats_failed", err)
		return
	}
	response.RespondOK(c, stats)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
