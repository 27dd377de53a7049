package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carelink/clinassist/internal/middleware"
	"github.com/carelink/clinassist/internal/pkg/response"
)

type RouterDeps struct {
	Chat            *ChatHandler
	Patient         *PatientHandler
	RateLimitWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})

	api.POST("/patient/load", deps.Patient.Load)
	api.GET("/patient", deps.Patient.Get)

	// The ask route is the only one that reaches paid upstreams, so it alone
	// carries the rate limit.
	api.POST("/chat/ask", middleware.RateLimit(deps.RateLimitWindow), deps.Chat.Ask)
}
