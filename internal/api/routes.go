package api

import "github.com/gin-gonic/gin"

// RegisterRoutes adds the management API routes to the router
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Status)
	router.GET("/status", h.Status)

	servers := router.Group("/servers")
	{
		servers.POST("/create", h.CreateServer)
		servers.GET("/list", h.ListServers)
		servers.POST("/:name/room", h.CreateRoom)
		servers.POST("/:name/room/message", h.SendMessageToRoom)
		servers.GET("/:name/logs", h.GetServerLogs)
		servers.GET("/:name/events", h.GetServerEvents)
		servers.POST("/:name/manage", h.ManageServer)
		servers.DELETE("/:name", h.DeleteServer)
	}

	router.POST("/certbot/run", h.RunCertbot)
}
