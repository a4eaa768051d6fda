package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/uptrace/bun"

	"github.com/oasst/treemanager/internal/infrastructure/cache"
	"github.com/oasst/treemanager/internal/infrastructure/logger"
)

// Handlers bundles every handler group the router wires up. Built once in
// cmd/server/main.go after all repositories, the dispatcher, the
// interaction handler, and maintenance are assembled.
type Handlers struct {
	Tasks *TaskHandlers
	Admin *AdminHandlers
}

// NewRouter assembles the gin engine: global middleware, health endpoints,
// and the versioned API surface, following the teacher's setupRoutes/
// setupAPIv1Routes split.
func NewRouter(log *logger.Logger, db *bun.DB, redisCache *cache.RedisCache, auth *AuthMiddleware, h *Handlers) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	logging := NewLoggingMiddleware(log)
	recovery := NewRecoveryMiddleware(log)
	bodySize := NewBodySizeMiddleware(log, 1<<20)

	router.Use(recovery.Recovery())
	router.Use(logging.RequestLogger())
	router.Use(bodySize.LimitBodySize())

	setupHealthEndpoints(router, db, redisCache)
	setupAPIv1Routes(router, auth, h)

	return router
}

func setupHealthEndpoints(router *gin.Engine, db *bun.DB, redisCache *cache.RedisCache) {
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": fmt.Sprintf("database: %s", err.Error())})
			return
		}
		if redisCache != nil {
			if err := redisCache.Health(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": fmt.Sprintf("redis: %s", err.Error())})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}

func setupAPIv1Routes(router *gin.Engine, auth *AuthMiddleware, h *Handlers) {
	apiV1 := router.Group("/api/v1")
	{
		taskGroup := apiV1.Group("/tasks")
		taskGroup.Use(auth.RequireAuth())
		{
			taskGroup.POST("", h.Tasks.HandleNextTask)
			taskGroup.POST("/:task_id/interaction", h.Tasks.HandleInteraction)
		}

		adminGroup := apiV1.Group("/admin")
		adminGroup.Use(auth.RequireAdmin())
		{
			adminGroup.POST("/maintenance/ensure-tree-states", h.Admin.HandleEnsureTreeStates)
			adminGroup.POST("/maintenance/retry-scoring-failed", h.Admin.HandleRetryScoringFailed)
			adminGroup.POST("/users/:user_id/purge", h.Admin.HandlePurgeUser)
			adminGroup.GET("/export", h.Admin.HandleExportReady)
			adminGroup.POST("/export", h.Admin.HandleExportTrees)
		}
	}
}
