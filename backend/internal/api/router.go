// Package api exposes the graph engine over HTTP with gin.
package api

import (
	"peoplegraph/backend/internal/graph"
	"peoplegraph/backend/internal/ingest"
	"peoplegraph/backend/internal/mutation"
	"peoplegraph/backend/internal/recommend"
	"peoplegraph/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the services the router dispatches to.
type Deps struct {
	Store     *graph.Store
	Mutations *mutation.Service
	Queries   *recommend.Engine
	Sync      *ingest.Adapter

	// RateLimitRPS <= 0 disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

type handler struct {
	Deps
	logger *zap.Logger
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(d Deps) *gin.Engine {
	h := &handler{Deps: d, logger: logger.Named("api")}

	router := gin.New()
	router.Use(requestID())
	router.Use(ginLogger(h.logger))
	router.Use(gin.Recovery())
	router.Use(cors())

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(rateLimit(d.RateLimitRPS, d.RateLimitBurst))
	api.GET("/health", h.health)

	g := api.Group("/graph")
	{
		// Mutations
		g.POST("/users/:userId/connections/:targetId", h.connectUsers)
		g.POST("/users/:userId/companies/:companyId/follow", h.followCompany)
		g.POST("/users/:userId/work-experience", h.addWorkExperience)
		g.POST("/users/:userId/skills/:skillName", h.addSkill)
		g.POST("/users/:userId/skills/:skillName/endorse", h.endorseSkill)

		// Queries
		g.GET("/users/:userId/connection-suggestions", h.connectionSuggestions)
		g.GET("/users/:userId/people-you-may-know", h.peopleYouMayKnow)
		g.GET("/users/:userId/mutual-connections/:targetUserId", h.mutualConnections)
		g.GET("/users/:userId/affinity-ranking", h.affinityRanking)
		g.GET("/users/:userId/connection-count", h.connectionCount)
		g.GET("/users/shortest-path", h.shortestPath)

		// Sync from the profile service
		g.POST("/sync/user", h.syncUser)
		g.POST("/sync/company", h.syncCompany)
	}

	return router
}
