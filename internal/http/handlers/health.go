package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	redisclient "github.com/Ridou/Omnii-One-sub008/internal/clients/redis"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/neo4jdb"
)

type HealthHandler struct {
	graph *neo4jdb.Client
	cache redisclient.ResultCache
}

func NewHealthHandler(graph *neo4jdb.Client, cache redisclient.ResultCache) *HealthHandler {
	return &HealthHandler{graph: graph, cache: cache}
}

// GET /healthcheck
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	graphStatus := "disabled"
	if h.graph != nil {
		graphStatus = "ok"
		if err := h.graph.Driver.VerifyConnectivity(ctx); err != nil {
			graphStatus = "unreachable"
		}
	}

	cacheStatus := "disabled"
	if h.cache != nil {
		cacheStatus = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			cacheStatus = "unreachable"
		}
	}

	status := http.StatusOK
	if graphStatus == "unreachable" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status": "ok",
		"graph":  graphStatus,
		"cache":  cacheStatus,
	})
}
