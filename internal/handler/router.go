package handler

import (
	"net/http"
	"slices"
	"time"

	"github.com/Baaaki/pharmsoc-messaging/internal/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Routes lists everything the API serves. Limiter is optional.
type Routes struct {
	Auth      *AuthHandler
	Admin     *AdminHandler
	Messages  *MessageHandler
	WebSocket *WebSocketHandler

	JWTSecret      string
	AllowedOrigins []string
	IsProduction   bool
	Limiter        *middleware.RateLimiter
}

// Register mounts middleware and routes on r
func (rt Routes) Register(r *gin.Engine) {
	if len(rt.AllowedOrigins) > 0 {
		r.Use(cors.New(corsConfig(rt.AllowedOrigins)))
	}
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.HSTSMiddleware(rt.IsProduction))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	if rt.Limiter != nil {
		api.Use(rt.Limiter.Middleware())
	}

	// Public routes
	api.POST("/auth/register", rt.Auth.Register)
	api.POST("/auth/login", rt.Auth.Login)

	// Protected routes (require JWT)
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(rt.JWTSecret))
	{
		protected.GET("/ws", rt.WebSocket.HandleWebSocket)

		protected.GET("/conversations", rt.Messages.ListConversations)
		protected.GET("/conversations/:user_id", rt.Messages.GetConversation)
		protected.POST("/conversations/:user_id", rt.Messages.SendMessage)
		protected.DELETE("/conversations/:user_id", rt.Messages.DeleteConversation)

		protected.GET("/messages/unread-count", rt.Messages.UnreadCount)
		protected.DELETE("/messages/:id", rt.Messages.DeleteMessage)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.AdminMiddleware())
	{
		admin.GET("/users", rt.Admin.GetAllUsers)
		admin.POST("/ban", rt.Admin.BanUser)
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
