package server

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/Ridou/Omnii-One-sub008/internal/http/handlers"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	ExtractionHandler  *httpH.ExtractionHandler
	QualityGateHandler *httpH.QualityGateHandler
	InferenceHandler   *httpH.InferenceHandler
	SuggestionHandler  *httpH.SuggestionHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("omnii-graph-pipeline"))
	r.Use(RequestLogger(cfg.Log))
	r.Use(CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Extraction
		if cfg.ExtractionHandler != nil {
			api.POST("/extract", cfg.ExtractionHandler.Extract)
		}

		// Quality gate + review queue
		if cfg.QualityGateHandler != nil {
			api.POST("/quality-gate", cfg.QualityGateHandler.GateBatch)
			api.GET("/reviews/pending", cfg.QualityGateHandler.ListPendingReviews)
			api.POST("/reviews/:id/approve", cfg.QualityGateHandler.ApproveReview)
			api.POST("/reviews/:id/reject", cfg.QualityGateHandler.RejectReview)
			api.GET("/stats/quality", cfg.QualityGateHandler.QualityStats)
		}

		// Cross-source inference
		if cfg.InferenceHandler != nil {
			api.POST("/inference/discover", cfg.InferenceHandler.Discover)
		}

		// Suggestions
		if cfg.SuggestionHandler != nil {
			api.GET("/suggestions/pending", cfg.SuggestionHandler.ListPending)
			api.POST("/suggestions/:id/approve", cfg.SuggestionHandler.Approve)
			api.POST("/suggestions/:id/reject", cfg.SuggestionHandler.Reject)
			api.GET("/stats/suggestions", cfg.SuggestionHandler.Stats)
		}
	}

	return r
}
