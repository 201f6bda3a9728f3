package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kojjob/syncforge-sub000/internal/adapters/signal"
	"github.com/kojjob/syncforge-sub000/internal/app"
	"github.com/kojjob/syncforge-sub000/internal/config"
	"github.com/kojjob/syncforge-sub000/internal/domain"
)

// ClientTokenMiddleware tags every browser with a stable token, used as
// the fallback device id for multi-tab presence.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.Controller, reg *app.Registry, verifier *app.TokenVerifier) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("SyncForgeSessions", store))
	r.Use(ClientTokenMiddleware())

	api := r.Group("/api")

	api.GET("/ws/room", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("ct", c.GetString("client_token")).Msg("ws room endpoint hit")
		ctl.HandleRoom(ctx, c)
	})

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": reg.List()})
	})

	if cfg.Mode == "debug" {
		// Dev-only token mint; real deployments get tokens from the auth
		// service.
		api.POST("/dev/token", func(c *gin.Context) {
			var req struct {
				UserID string `json:"user_id"`
				Name   string `json:"name"`
			}
			if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid user_id"})
				return
			}
			identity, err := domain.NewIdentity(domain.UserID(req.UserID), "", req.Name, "")
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			token, err := verifier.Mint(identity)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "mint failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})
	}

	return r
}
