package api

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/relaypanel/go-relay-backend/internal/certbot"
	"github.com/relaypanel/go-relay-backend/internal/domain"
	"github.com/relaypanel/go-relay-backend/internal/endpoint"
	"github.com/relaypanel/go-relay-backend/internal/proxy"
	"github.com/relaypanel/go-relay-backend/internal/storage"
	"github.com/relaypanel/go-relay-backend/internal/supervisor"
	"github.com/relaypanel/go-relay-backend/pkg/config"
)

// Handlers aggregates all HTTP handlers
type Handlers struct {
	sup     *supervisor.Supervisor
	store   storage.Store
	proxy   *proxy.Manager
	certbot *certbot.Service
	cfg     *config.Config
	logger  *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(sup *supervisor.Supervisor, store storage.Store, prox *proxy.Manager, cb *certbot.Service, cfg *config.Config, logger *zap.Logger) *Handlers {
	return &Handlers{
		sup:     sup,
		store:   store,
		proxy:   prox,
		certbot: cb,
		cfg:     cfg,
		logger:  logger.Named("handlers"),
	}
}

// Status handles the /status and /health endpoints
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "ok",
		"service": "relay-backend",
	})
}

// CreateServerRequest is the payload for server provisioning
type CreateServerRequest struct {
	Name      string `json:"name" binding:"required"`
	Subdomain string `json:"subdomain" binding:"required"`
}

// CreateServer provisions a new socket server: allocates the next port,
// writes the durable record, provisions the proxy rule, and registers a
// live runtime.
func (h *Handlers) CreateServer(c *gin.Context) {
	var req CreateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "Name and subdomain are required"})
		return
	}

	if err := domain.ValidateServerName(req.Name); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	if _, err := h.store.Servers().GetByName(ctx, req.Name); err == nil {
		c.JSON(400, gin.H{"error": "Server already exists"})
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		h.logger.Error("Failed to look up server", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to create server"})
		return
	}

	maxPort, err := h.store.Servers().MaxPort(ctx)
	if err != nil {
		h.logger.Error("Failed to query max port", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to create server"})
		return
	}
	if maxPort < h.cfg.Endpoints.BasePort {
		maxPort = h.cfg.Endpoints.BasePort
	}
	nextPort := maxPort + 1

	server := &domain.Server{
		Name:      req.Name,
		Subdomain: req.Subdomain,
		Port:      nextPort,
		Status:    domain.StatusRunning,
	}
	if err := h.store.Servers().Create(ctx, server); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			c.JSON(400, gin.H{"error": "Server already exists"})
			return
		}
		h.logger.Error("Failed to create server record", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to create server"})
		return
	}

	if err := h.proxy.Provision(ctx, req.Subdomain, nextPort); err != nil {
		h.logger.Error("Failed to provision proxy", zap.String("subdomain", req.Subdomain), zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to configure proxy"})
		return
	}

	if err := h.sup.Create(req.Name, nextPort); err != nil {
		h.logger.Error("Failed to start endpoint runtime", zap.String("server", req.Name), zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to start server"})
		return
	}

	c.JSON(201, gin.H{"message": "Server created", "server": server})
}

// ListServers returns all durable records with live metrics merged in
func (h *Handlers) ListServers(c *gin.Context) {
	statuses, err := h.sup.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list servers", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to list servers"})
		return
	}
	c.JSON(200, statuses)
}

// CreateRoomRequest is the payload for room creation
type CreateRoomRequest struct {
	RoomName string `json:"roomName" binding:"required"`
}

// CreateRoom declares a room on a running server
func (h *Handlers) CreateRoom(c *gin.Context) {
	name := c.Param("name")

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "roomName is required"})
		return
	}

	if err := h.sup.CreateRoom(c.Request.Context(), name, req.RoomName); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(200, gin.H{"message": fmt.Sprintf("Room %s created on server %s", req.RoomName, name)})
}

// SendMessageRequest is the payload for a room broadcast
type SendMessageRequest struct {
	RoomName string `json:"roomName" binding:"required"`
	Message  string `json:"message" binding:"required"`
}

// SendMessageToRoom broadcasts a message to a room
func (h *Handlers) SendMessageToRoom(c *gin.Context) {
	name := c.Param("name")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "roomName and message are required"})
		return
	}

	if err := h.sup.SendToRoom(name, req.RoomName, req.Message); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(200, gin.H{"message": fmt.Sprintf("Message sent to room %s on server %s", req.RoomName, name)})
}

// GetServerLogs returns the runtime log buffer of a running server
func (h *Handlers) GetServerLogs(c *gin.Context) {
	name := c.Param("name")

	logs, err := h.sup.Logs(name)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(200, gin.H{"logs": logs})
}

// GetServerEvents returns the most recent audit events for a server
func (h *Handlers) GetServerEvents(c *gin.Context) {
	name := c.Param("name")

	events, err := h.store.Events().GetByServer(c.Request.Context(), name, 100)
	if err != nil {
		h.logger.Error("Failed to get events", zap.String("server", name), zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to get events"})
		return
	}

	c.JSON(200, gin.H{"events": events})
}

// ManageServerRequest is the payload for lifecycle actions
type ManageServerRequest struct {
	Action string `json:"action" binding:"required"`
	Port   int    `json:"port"`
}

// ManageServer dispatches a lifecycle action on a server
func (h *Handlers) ManageServer(c *gin.Context) {
	name := c.Param("name")

	var req ManageServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "action is required"})
		return
	}

	action, err := domain.ParseAction(req.Action)
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	record, err := h.store.Servers().GetByName(ctx, name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	// Fall back to the port assigned at provisioning time
	if req.Port == 0 {
		req.Port = record.Port
	}

	switch action {
	case domain.ActionStart:
		err = h.sup.Start(ctx, name, req.Port, false)
	case domain.ActionStop:
		err = h.sup.Stop(ctx, name)
	case domain.ActionRestart:
		err = h.sup.Restart(ctx, name, req.Port)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(200, gin.H{"message": fmt.Sprintf("Action %s executed on server %s", action, name)})
}

// DeleteServer tears a server down completely
func (h *Handlers) DeleteServer(c *gin.Context) {
	name := c.Param("name")

	if err := h.sup.Delete(c.Request.Context(), name); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(200, gin.H{"message": fmt.Sprintf("Server %s deleted", name)})
}

// RunCertbotRequest is the payload for certificate issuance
type RunCertbotRequest struct {
	Subdomain string `json:"subdomain" binding:"required"`
}

// RunCertbot requests a TLS certificate for a subdomain
func (h *Handlers) RunCertbot(c *gin.Context) {
	var req RunCertbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "Subdomain is required"})
		return
	}

	if err := h.certbot.Issue(c.Request.Context(), req.Subdomain); err != nil {
		if errors.Is(err, certbot.ErrDisabled) {
			c.JSON(503, gin.H{"error": "Certbot is disabled"})
			return
		}
		h.logger.Error("Failed to run certbot", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to run certbot"})
		return
	}

	c.JSON(200, gin.H{"message": fmt.Sprintf("Certbot executed for %s", req.Subdomain)})
}

// writeError maps supervisor and storage errors to HTTP responses
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(404, gin.H{"error": "Server not found"})
	case errors.Is(err, endpoint.ErrRoomNotFound):
		c.JSON(404, gin.H{"error": "Room not found"})
	case errors.Is(err, supervisor.ErrNotRunning):
		c.JSON(409, gin.H{"error": "Server is not running"})
	case errors.Is(err, supervisor.ErrAlreadyRunning), errors.Is(err, supervisor.ErrAlreadyRegistered):
		c.JSON(409, gin.H{"error": "Server is already running"})
	default:
		h.logger.Error("Operation failed", zap.Error(err))
		c.JSON(500, gin.H{"error": "Internal error"})
	}
}
