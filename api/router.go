package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRouter creates and configures the Gin router for the status API.
func SetupRouter(server *Server) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowMethods = []string{"GET", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(config))

	router.GET("/health", server.HealthCheck)

	api := router.Group("/api")
	{
		api.GET("/status", server.GetStatus)
		api.GET("/result", server.GetResult)
		api.GET("/schedule", server.GetSchedule)
	}

	return router
}
