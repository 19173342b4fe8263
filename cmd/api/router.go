package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, h *Handler) {
	// Inbound push doorbell and tracking endpoints live outside /api: their
	// callers are Pub/Sub and recipient mail clients, not our own frontend.
	r.POST("/notifications/gmail", h.HandleGmailNotification)
	r.GET("/track/open/:id", h.TrackOpen)
	r.GET("/track/click/:id", h.TrackClick)
	r.POST("/webhook/email-status", h.HandleStatusWebhook)

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		mailboxes := api.Group("/mailboxes")
		{
			mailboxes.POST("/:address/watch", h.StartWatch)
			mailboxes.DELETE("/:address/watch", h.StopWatch)
			mailboxes.GET("/:address/dispatches", h.ListDispatches)
		}
	}
}
