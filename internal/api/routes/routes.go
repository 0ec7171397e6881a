package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/prepview/backend/internal/api/handlers"
	"github.com/prepview/backend/internal/api/middleware"
)

type Deps struct {
	Interview *handlers.InterviewHandler
	Webhook   *handlers.WebhookHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Provider webhooks authenticate with an HMAC signature, not JWT
	r.POST("/webhooks/recording-ready", d.Webhook.RecordingReady)

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth())

	auth.POST("/interviews", d.Interview.Create)
	auth.GET("/interviews/:session_id", d.Interview.Get)
	auth.PUT("/interviews/:session_id/config", d.Interview.UpdateConfig)
	auth.POST("/interviews/:session_id/start", d.Interview.Start)
	auth.POST("/interviews/:session_id/end", d.Interview.End)
	auth.POST("/interviews/:session_id/cancel", d.Interview.Cancel)
	auth.GET("/interviews/:session_id/feedback", d.Interview.Feedback)
	auth.GET("/interviews/:session_id/feedback/artifacts", d.Interview.FeedbackArtifacts)
}
