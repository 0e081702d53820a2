package api

import (
	"net/http"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/websocket"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	WebhookEnabled bool
	SigningKey     string
	// Metrics is served at /metrics when set.
	Metrics http.Handler
}

// SetupRouter initializes the Gin router and sets up the routes
func SetupRouter(h *Handler, wsManager *websocket.WebSocketManager, cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(ErrorMiddleware())

	if cfg.WebhookEnabled {
		r.POST("/webhook", SignatureMiddleware(cfg.SigningKey), h.Webhook)
	}

	r.GET("/health", h.Health)
	r.GET("/status", h.Status)

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	if wsManager != nil {
		r.GET("/ws", func(c *gin.Context) {
			wsManager.HandleWebSocket(c.Writer, c.Request)
		})
	}

	return r
}
