// Package api wires the dashboard's HTTP surface: the rendered status
// page, the v1 JSON API and the Prometheus endpoint.
package api

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"detak/internal/config"
	"detak/internal/dashboard/api/middleware"
	av1 "detak/internal/dashboard/api/v1"
	"detak/internal/dashboard/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

//go:embed templates/dashboard.html
var templatesFS embed.FS

// Router handles all routing logic
type Router struct {
	engine  *gin.Engine
	service *service.Service
	logger  *zap.Logger
	loc     *time.Location
}

// NewRouter creates and configures a new router
func NewRouter(cfg *config.Config, svc *service.Service, logger *zap.Logger) (*Router, error) {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Timezone conversion is a pure display concern; everything below
	// the presentation layer stores and compares UTC instants only.
	loc, err := time.LoadLocation(cfg.Dashboard.Timezone)
	if err != nil {
		return nil, err
	}

	r := &Router{
		engine:  gin.New(),
		service: svc,
		logger:  logger,
		loc:     loc,
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"datetimeformat": r.datetimeFormat,
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	r.engine.SetHTMLTemplate(tmpl)

	r.setupMiddleware()
	r.setupRoutes(svc)

	return r, nil
}

// Handler returns the HTTP handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// setupMiddleware configures all middleware
func (r *Router) setupMiddleware() {
	m := middleware.New(r.logger)

	r.engine.Use(m.RequestID())
	r.engine.Use(m.Logger())
	r.engine.Use(m.Recovery())
}

// setupRoutes configures the page, API and metrics routes
func (r *Router) setupRoutes(svc *service.Service) {
	r.engine.GET("/", r.dashboard)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := av1.NewAPI(svc, r.logger)
	api.RegisterRoutes(r.engine.Group("/api/v1"))
}

// dashboard renders the status page
func (r *Router) dashboard(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	snapshots, err := r.service.Status(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Error("Failed to get status", zap.Error(err))
		c.String(http.StatusInternalServerError, "failed to load dashboard")
		return
	}

	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"Services": snapshots,
	})
}

// datetimeFormat converts a UTC instant to the configured display zone.
func (r *Router) datetimeFormat(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.In(r.loc).Format("2006-01-02 15:04:05")
}
