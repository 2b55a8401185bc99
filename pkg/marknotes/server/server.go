// Package server assembles the marknotes HTTP application from configuration.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/mikepea/marknotes/pkg/marknotes/admin"
	"github.com/mikepea/marknotes/pkg/marknotes/auth"
	"github.com/mikepea/marknotes/pkg/marknotes/config"
	"github.com/mikepea/marknotes/pkg/marknotes/documents"
	"github.com/mikepea/marknotes/pkg/marknotes/logging"
	"github.com/mikepea/marknotes/pkg/marknotes/metrics"
	"github.com/mikepea/marknotes/pkg/marknotes/organizations"
	"github.com/mikepea/marknotes/pkg/marknotes/retention"
	"github.com/mikepea/marknotes/pkg/marknotes/store"
	"github.com/mikepea/marknotes/pkg/marknotes/vault"
)

// App is a fully wired server.
type App struct {
	Router    *gin.Engine
	Store     *store.GormStore
	Authority *auth.Authority
	Manager   *documents.Manager
	Scheduler *retention.Scheduler
}

// Build wires every component on top of an opened database.
func Build(cfg *config.Config, db *gorm.DB, log zerolog.Logger) (*App, error) {
	st := store.NewGormStore(db)

	authority, err := auth.NewAuthority(st, cfg.JWTSecret, auth.WithSessionTTL(cfg.SessionTTL))
	if err != nil {
		return nil, fmt.Errorf("session authority: %w", err)
	}
	gate := auth.NewGate(authority, st)

	codec, err := vault.New(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	manager, err := documents.NewManager(cfg.DocumentRoot, codec, st,
		documents.WithRetention(cfg.Retention),
		documents.WithLogger(log.With().Str("component", "documents").Logger()),
	)
	if err != nil {
		return nil, fmt.Errorf("document manager: %w", err)
	}

	app := &App{
		Store:     st,
		Authority: authority,
		Manager:   manager,
		Scheduler: retention.NewScheduler(manager, cfg.PurgeInterval, log.With().Str("component", "retention").Logger()),
	}
	app.Router = newRouter(cfg, log, st, gate, manager)
	return app, nil
}

func newRouter(cfg *config.Config, log zerolog.Logger, st *store.GormStore, gate *auth.Gate, manager *documents.Manager) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Init()

	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(log), metrics.Middleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"service": "marknotes",
			})
		})

		// Auth routes (register and login are public)
		authHandler := auth.NewHandler(st, gate, auth.NewLoginLimiter(cfg.LoginPerMinute))
		authHandler.RegisterRoutes(api.Group("/auth"))

		authenticated := auth.Middleware(gate)

		orgsHandler := organizations.NewHandler(st, gate)
		orgsHandler.RegisterRoutes(api.Group("/organizations", authenticated))

		docsHandler := documents.NewHandler(manager, gate)
		docsHandler.RegisterRoutes(api.Group("/organizations/:id/documents", authenticated))

		adminHandler := admin.NewHandler(st, gate.Authority(), manager)
		adminHandler.RegisterRoutes(api.Group("/admin", authenticated, auth.AdminOnly()))
	}

	return r
}

// CORS wraps h with the configured cross-origin policy.
func CORS(cfg *config.Config, h http.Handler) http.Handler {
	if len(cfg.AllowedOrigins) == 0 {
		return h
	}
	opts := cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", logging.RequestIDHeader},
		ExposedHeaders:   []string{logging.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			opts.AllowedOrigins = []string{"*"}
			opts.AllowCredentials = false
			break
		}
	}
	return cors.Handler(opts)(h)
}

// NewHTTPServer returns an http.Server for app with request timeouts set.
func NewHTTPServer(cfg *config.Config, app *App) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           CORS(cfg, app.Router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
