package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/Ridou/Omnii-One-sub008/internal/domain"
	"github.com/Ridou/Omnii-One-sub008/internal/http/response"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
	"github.com/Ridou/Omnii-One-sub008/internal/services"
)

type SuggestionHandler struct {
	log         *logger.Logger
	suggestions services.SuggestionService
}

func NewSuggestionHandler(log *logger.Logger, suggestions services.SuggestionService) *SuggestionHandler {
	return &SuggestionHandler{
		log:         log.With("handler", "SuggestionHandler"),
		suggestions: suggestions,
	}
}

// GET /api/suggestions/pending
func (h *SuggestionHandler) ListPending(c *gin.Context) {
	limit := queryInt(c, "limit", defaultPendingLimit)
	minConfidence := types.DefaultMinSuggestionConfidence
	if raw := c.Query("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			response.RespondError(c, http.StatusBadRequest, "invalid_min_confidence", err)
			return
		}
		minConfidence = v
	}

	pending, err := h.suggestions.GetPendingSuggestions(c.Request.Context(), limit, minConfidence)
	if err != nil {
		h.log.Error("ListPending failed", "error", err)
		response.RespondFromError(c, "list_suggestions_failed", err)
		return
	}
	ranked := h.suggestions.RankSuggestions(pending)

	formatted := make([]types.FormattedSuggestion, 0, len(ranked))
	for _, sg := range ranked {
		formatted = append(formatted, h.suggestions.FormatForApproval(sg))
	}
	response.RespondOK(c, gin.H{
		"suggestions": ranked,
		"formatted":   formatted,
	})
}

// POST /api/suggestions/:id/approve
func (h *SuggestionHandler) Approve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_suggestion_id", err)
		return
	}
	if err := h.suggestions.ApproveSuggestion(c.Request.Context(), id); err != nil {
		h.log.Error("Approve failed", "error", err, "suggestion_id", id)
		response.RespondFromError(c, "approve_suggestion_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"suggestion_id": id, "status": types.StatusApproved})
}

// POST /api/suggestions/:id/reject
func (h *SuggestionHandler) Reject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_suggestion_id", err)
		return
	}
	if err := h.suggestions.RejectSuggestion(c.Request.Context(), id); err != nil {
		h.log.Error("Reject failed", "error", err, "suggestion_id", id)
		response.RespondFromError(c, "reject_suggestion_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"suggestion_id": id, "status": types.StatusRejected})
}

// GET /api/stats/suggestions
func (h *SuggestionHandler) Stats(c *gin.Context) {
	stats, err := h.suggestions.GetSuggestionStats(c.Request.Context())
	if err != nil {
		h.log.Error("Stats failed", "error", err)
		response.RespondFromError(c, "suggestion_stats_failed", err)
		return
	}
	response.RespondOK(c, stats)
}
