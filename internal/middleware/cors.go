package middleware

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/playmatatu/billiards/internal/config"
)

// productionOrigins are always allowed outside development.
var productionOrigins = []string{
	"https://billiards.playmatatu.com",
}

// originAllowed applies the same policy to REST and WebSocket requests:
// any localhost port in development, the production list plus FRONTEND_URL
// elsewhere.
func originAllowed(cfg *config.Config, origin string) bool {
	if cfg.Environment == "development" {
		if strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:") {
			return true
		}
		return cfg.FrontendURL != "" && origin == cfg.FrontendURL
	}
	if cfg.FrontendURL != "" && origin == cfg.FrontendURL {
		return true
	}
	for _, o := range productionOrigins {
		if origin == o {
			return true
		}
	}
	return false
}

// CORSMiddleware returns the CORS policy for the table API.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	log.Printf("[CORS] Environment: %s, FrontendURL: %s", cfg.Environment, cfg.FrontendURL)

	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return originAllowed(cfg, origin) },
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Length", "Content-Type", "Authorization",
			"Accept", "Cache-Control", "X-Requested-With",
		},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// WebSocketCORSCheck rejects browser WebSocket upgrades from foreign origins.
// Clients that send no Origin (bots, cmd/selfplay-style tools) pass.
func WebSocketCORSCheck(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			c.Next()
			return
		}

		origin := c.GetHeader("Origin")
		if origin != "" && !originAllowed(cfg, origin) {
			log.Printf("[WS] Rejected upgrade from origin %s", origin)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "WebSocket origin not allowed"})
			return
		}
		c.Next()
	}
}
