package api

import (
	"github.com/gin-gonic/gin"

	"taskharvest/internal/middleware"
)

// SetupRoutes configures all API routes
func SetupRoutes(handlers *Handlers, jwtSecret string) *gin.Engine {
	router := gin.Default()

	router.Use(middleware.CORS())

	// All API routes require a valid user token
	api := router.Group("/api")
	api.Use(middleware.AuthenticateUser(jwtSecret))
	{
		sync := api.Group("/sync")
		{
			sync.POST("/run-all", handlers.RunAllHandler)
			sync.POST("/:source/run", handlers.RunSyncHandler)
		}

		api.GET("/tasks", handlers.ListTasksHandler)
		api.GET("/analysis/workload", handlers.AnalyzeWorkloadHandler)
		api.POST("/calendar/push", handlers.CalendarPushHandler)
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return router
}
