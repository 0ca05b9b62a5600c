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

type InferenceHandler struct {
	log         *logger.Logger
	crossSource services.CrossSourceService
	suggestions services.SuggestionService
}

func NewInferenceHandler(
	log *logger.Logger,
	crossSource services.CrossSourceService,
	suggestions services.SuggestionService,
) *InferenceHandler {
	return &InferenceHandler{
		log:         log.With("handler", "InferenceHandler"),
		crossSource: crossSource,
		suggestions: suggestions,
	}
}

type discoverRequest struct {
	Entities      []types.EnhancedEntity `json:"entities"`
	TargetSources []types.Source         `json:"target_sources"`
	// Store persists the discovered suggestions for later approval.
	Store bool `json:"store,omitempty"`
}

// POST /api/inference/discover
func (h *InferenceHandler) Discover(c *gin.Context) {
	var req discoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	if len(req.Entities) == 0 {
		response.RespondError(c, http.StatusBadRequest, "entities_required", fmt.Errorf("entities are required"))
		return
	}
	if len(req.TargetSources) == 0 {
		response.RespondError(c, http.StatusBadRequest, "target_sources_required", fmt.Errorf("target_sources are required"))
		return
	}

	discovered, err := h.crossSource.DiscoverRelationships(c.Request.Context(), req.Entities, req.TargetSources)
	if err != nil {
		h.log.Error("Discover failed", "error", err)
		response.RespondFromError(c, "discovery_failed", err)
		return
	}
	ranked := h.suggestions.RankSuggestions(discovered)

	if req.Store {
		for _, sg := range ranked {
			if err := h.suggestions.StoreSuggestion(c.Request.Context(), sg); err != nil {
				h.log.Error("Discover failed (store suggestion)", "error", err, "suggestion_id", sg.ID)
				response.RespondFromError(c, "store_suggestion_failed", err)
				return
			}
		}
	}

	formatted := make([]types.FormattedSuggestion, 0, len(ranked))
	for _, sg := range ranked {
		formatted = append(formatted, h.suggestions.FormatForApproval(sg))
	}
	response.RespondOK(c, gin.H{
		"suggestions": ranked,
		"formatted":   formatted,
		"stored":      req.Store,
	})
}
