package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pr-poehali-dev/video-viewing-app/internal/adapters/signal"
	"github.com/pr-poehali-dev/video-viewing-app/internal/app"
	"github.com/pr-poehali-dev/video-viewing-app/internal/config"
	"github.com/pr-poehali-dev/video-viewing-app/internal/core"
	"github.com/pr-poehali-dev/video-viewing-app/internal/domain"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, sessionsCtl *app.SessionController, resolver core.MediaResolver) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("WatchPartySessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/rooms", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		c.JSON(http.StatusOK, gin.H{"rooms": sessionsCtl.PublicRooms(limit)})
	})

	api.GET("/rooms/:id", func(c *gin.Context) {
		room, ok := sessionsCtl.Room(domain.RoomID(c.Param("id")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, room)
	})

	api.GET("/me/rooms", func(c *gin.Context) {
		uid := domain.UserID(c.GetString("client_token"))
		c.JSON(http.StatusOK, gin.H{"rooms": sessionsCtl.UserRooms(uid)})
	})

	api.POST("/resolve", func(c *gin.Context) {
		var req struct {
			URL string `json:"url"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid url"})
			return
		}
		video, err := resolver.Resolve(req.URL)
		if err != nil {
			if errors.Is(err, domain.ErrVideoUnresolvable) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve failed"})
			return
		}
		c.JSON(http.StatusOK, video)
	})

	ctrl := signal.NewController(sessionsCtl, resolver)
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("user", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
