package http

import (
	"github.com/gin-gonic/gin"
)

// Register mounts the file, directory, audit and service routes
func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	router.GET("/files/*path", h.GetFile)
	router.HEAD("/files/*path", h.HeadFile)
	router.PUT("/files/*path", h.PutFile)
	router.GET("/dirs/*path", h.ListDir)
	router.GET("/audit", h.RecentAudit)

	if h.shutdown != nil {
		router.POST("/shutdown", h.Shutdown)
	}
}
