// Package server wires the gin engine that serves both the request-dispatch
// path (forwarding to whatever plugin the Registry has installed for a
// method/path pair) and the admin introspection API.
package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pluginhost/pluginhostd/internal/config"
	"github.com/pluginhost/pluginhostd/internal/core"
	"github.com/pluginhost/pluginhostd/internal/middleware"
	"github.com/pluginhost/pluginhostd/internal/server/handlers"
)

// New builds the *http.Server for the plugin host, ready for ListenAndServe.
// It also returns the EventHub so the caller can wire it into
// module.Controller.SetCallbacks before starting the Module: the hub has to
// be registered for lifecycle events before Start runs the preload, or an
// admin client connecting early would miss the startup install event.
func New(cfg *config.Config, module *core.Module) (*http.Server, *handlers.EventHub) {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.RequestLogger())
	engine.Use(middleware.ErrorLogger())

	if cfg.Server.EnableCORS {
		engine.Use(corsMiddleware())
	}
	if len(cfg.Server.TrustedProxies) > 0 {
		engine.SetTrustedProxies(cfg.Server.TrustedProxies)
	}

	hub := handlers.NewEventHub()
	registerRoutes(engine, module, hub)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return srv, hub
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func registerRoutes(engine *gin.Engine, module *core.Module, hub *handlers.EventHub) {
	admin := handlers.NewAdmin(module)

	adminGroup := engine.Group("/admin")
	{
		adminGroup.GET("/health", admin.Health)
		adminGroup.GET("/plugins", admin.ListPlugins)
		adminGroup.POST("/plugins/reload", admin.TriggerReload)
		adminGroup.GET("/backups", admin.ListBackups)
		adminGroup.GET("/events", hub.Handle)
	}

	dispatch := handlers.NewDispatch(module)
	engine.NoRoute(dispatch.Handle)
}
