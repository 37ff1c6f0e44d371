// Package v1 implements the dashboard's v1 JSON API.
package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"detak/internal/dashboard/api/response"
	"detak/internal/dashboard/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// API represents the API
type API struct {
	service *service.Service
	logger  *zap.Logger
}

// NewAPI creates new API
func NewAPI(svc *service.Service, logger *zap.Logger) *API {
	return &API{
		service: svc,
		logger:  logger,
	}
}

// RegisterRoutes registers API routes
func (api *API) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/status", api.getStatus)

	agents := r.Group("/agents")
	{
		agents.GET("", api.getAgents)
		agents.PUT("/:id", api.renameAgent)
	}

	r.GET("/health", api.healthCheck)
}

// getStatus handles retrieving the status snapshot sequence
func (api *API) getStatus(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	snapshots, err := api.service.Status(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			api.logger.Info("Client canceled status request")
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			resp.Error(http.StatusGatewayTimeout, errors.New("request timeout"))
			return
		}

		api.logger.Error("Failed to get status",
			zap.Error(err),
			zap.String("client_ip", c.ClientIP()))
		resp.InternalError(errors.New("failed to get status"))
		return
	}

	resp.Success(snapshots)
}

// getAgents handles retrieving all registry records
func (api *API) getAgents(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	agents, err := api.service.Agents(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			api.logger.Info("Client canceled agents request")
			return
		}

		api.logger.Error("Failed to get agents",
			zap.Error(err),
			zap.String("client_ip", c.ClientIP()))
		resp.InternalError(errors.New("failed to get agents"))
		return
	}

	resp.Success(agents)
}

// renameAgent handles the provisioning path: setting an agent's display
// name directly, bypassing the event path. Last write wins.
func (api *API) renameAgent(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	agentID := c.Param("id")
	if agentID == "" {
		resp.BadRequest(errors.New("agent id is required"))
		return
	}

	var req struct {
		ObjectName string `json:"object_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(errors.New("object_name is required"))
		return
	}

	// Renames upsert: an unknown id creates the registry record, the
	// same last-write-wins rule as the event path.
	if err := api.service.RenameAgent(ctx, agentID, req.ObjectName); err != nil {
		api.logger.Error("Failed to rename agent",
			zap.Error(err),
			zap.String("agent_id", agentID))
		resp.InternalError(errors.New("failed to rename agent"))
		return
	}

	resp.Success(gin.H{"status": "success"})
}

// healthCheck handles health check requests
func (api *API) healthCheck(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := api.service.Health(ctx); err != nil {
		resp.Error(http.StatusServiceUnavailable, errors.New("store unreachable"))
		return
	}

	resp.Success(gin.H{"healthy": true})
}
