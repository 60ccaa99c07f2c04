package main

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/wachiwi/camwatch/cmd/camwatch/handlers"
	"github.com/wachiwi/camwatch/cmd/camwatch/middleware"
	"github.com/wachiwi/camwatch/pkg/camera"
	"github.com/wachiwi/camwatch/pkg/config"
)

//go:embed templates/*
var templateFS embed.FS

func newRouter(ctx context.Context, cfg *config.Config, registry *camera.Registry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.SetTrustedProxies([]string{"127.0.0.1"})

	cameraHandler := &handlers.CameraHandler{Registry: registry, Ctx: ctx}
	recordingsHandler := &handlers.RecordingsHandler{Root: cfg.RecordingsDir, VideoExt: cfg.Recording.VideoExt}

	// --- Public Routes ---
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// --- Authenticated Routes ---
	var authorized *gin.RouterGroup
	if cfg.Server.AuthEnabled() {
		store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
		store.Options(sessions.Options{Path: "/", MaxAge: 7 * 24 * 3600, HttpOnly: true, SameSite: http.SameSiteLaxMode})
		router.Use(sessions.Sessions("camwatch", store))

		authHandler := &handlers.AuthHandler{
			User:       cfg.Server.User,
			Password:   cfg.Server.Password,
			TemplateFS: templateFS,
		}
		router.GET("/login", authHandler.LoginPage)
		router.POST("/login", authHandler.Login)
		router.GET("/logout", authHandler.Logout)

		authorized = router.Group("/", middleware.AuthRequired)
	} else {
		slog.Warn("No server user configured, live view is not protected")
		authorized = router.Group("/")
	}

	authorized.GET("/", func(c *gin.Context) {
		recordings, err := recordingsHandler.Recordings()
		if err != nil {
			slog.Error("Failed to list recordings", "error", err)
		}
		tmpl := template.Must(template.ParseFS(templateFS, "templates/index.html"))
		err = tmpl.Execute(c.Writer, gin.H{
			"cameras":    registry.Statuses(),
			"recordings": recordings,
			"auth":       cfg.Server.AuthEnabled(),
		})
		if err != nil {
			slog.Error("Template execution error", "error", err)
			c.String(http.StatusInternalServerError, "Failed to render page")
		}
	})

	api := authorized.Group("/api")
	api.GET("/cameras", cameraHandler.List)
	api.GET("/cameras/:idx/frame.jpg", cameraHandler.Frame)
	api.GET("/cameras/:idx/stream", cameraHandler.Stream)
	api.GET("/cameras/:idx/ws", cameraHandler.Socket)
	api.POST("/cameras/:idx/restart", cameraHandler.Restart)
	api.GET("/recordings", recordingsHandler.List)

	authorized.GET("/recordings/:camera/:name", recordingsHandler.Download)

	return router
}
