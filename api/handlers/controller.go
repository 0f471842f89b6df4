package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/remote-cue-control/backend/internal/ws"
)

// intentTimeout bounds how long a request waits for the controller.
const intentTimeout = 5 * time.Second

// Confirmations answers pending confirmation prompts and exposes the
// activity log.
type Confirmations interface {
	Pending() []ws.Prompt
	Resolve(id string, ok bool) bool
	Activity() []ws.Activity
}

// ControllerHandler exposes operator intents over HTTP.
type ControllerHandler struct {
	intents       ws.Intents
	confirmations Confirmations
}

// NewControllerHandler creates a new ControllerHandler.
func NewControllerHandler(intents ws.Intents, confirmations Confirmations) *ControllerHandler {
	return &ControllerHandler{
		intents:       intents,
		confirmations: confirmations,
	}
}

// ConfirmRequest answers a confirmation prompt.
type ConfirmRequest struct {
	Confirmed *bool `json:"confirmed" binding:"required"`
}

// State handles GET /api/state - returns the controller snapshot.
func (h *ControllerHandler) State(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), intentTimeout)
	defer cancel()

	snap, err := h.intents.Snapshot(ctx)
	if err != nil {
		sendIntentError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Activity handles GET /api/activity - returns the recent activity log.
func (h *ControllerHandler) Activity(c *gin.Context) {
	c.JSON(http.StatusOK, h.confirmations.Activity())
}

// SelectServer handles POST /api/servers/:index/select.
func (h *ControllerHandler) SelectServer(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}
	h.run(c, func(ctx context.Context) error { return h.intents.SelectServerRow(ctx, index) })
}

// SelectCue handles POST /api/cues/:index/select.
func (h *ControllerHandler) SelectCue(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}
	h.run(c, func(ctx context.Context) error { return h.intents.SelectCueRow(ctx, index) })
}

// Go handles POST /api/go - starts the selected cue.
func (h *ControllerHandler) Go(c *gin.Context) {
	h.run(c, h.intents.PressGo)
}

// StopAll handles POST /api/stop/all.
func (h *ControllerHandler) StopAll(c *gin.Context) {
	h.run(c, h.intents.PressStopAll)
}

// StopSelected handles POST /api/stop/selected.
func (h *ControllerHandler) StopSelected(c *gin.Context) {
	h.run(c, h.intents.PressStopSelected)
}

// StopCurrent handles POST /api/stop/current.
func (h *ControllerHandler) StopCurrent(c *gin.Context) {
	h.run(c, h.intents.PressStopCurrent)
}

// Refresh handles POST /api/refresh - refetches the cue list.
func (h *ControllerHandler) Refresh(c *gin.Context) {
	h.run(c, h.intents.PressRefresh)
}

// Disconnect handles POST /api/disconnect. A connected controller asks for
// confirmation first, so 202 means the request was accepted, not completed.
func (h *ControllerHandler) Disconnect(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), intentTimeout)
	defer cancel()

	if err := h.intents.PressDisconnect(ctx); err != nil {
		sendIntentError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// Confirmations handles GET /api/confirmations - lists unanswered prompts.
func (h *ControllerHandler) Confirmations(c *gin.Context) {
	c.JSON(http.StatusOK, h.confirmations.Pending())
}

// Confirm handles POST /api/confirmations/:id - answers a prompt.
func (h *ControllerHandler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	id := c.Param("id")
	if !h.confirmations.Resolve(id, *req.Confirmed) {
		sendError(c, http.StatusNotFound, "CONFIRMATION_NOT_FOUND", "Confirmation "+id+" is not pending")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ControllerHandler) run(c *gin.Context, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), intentTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		sendIntentError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Index must be a non-negative integer")
		return 0, false
	}
	return index, true
}

// RegisterRoutes registers the controller routes on a Gin router group.
func (h *ControllerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/state", h.State)
	rg.GET("/activity", h.Activity)
	rg.POST("/servers/:index/select", h.SelectServer)
	rg.POST("/cues/:index/select", h.SelectCue)
	rg.POST("/go", h.Go)
	rg.POST("/stop/all", h.StopAll)
	rg.POST("/stop/selected", h.StopSelected)
	rg.POST("/stop/current", h.StopCurrent)
	rg.POST("/refresh", h.Refresh)
	rg.POST("/disconnect", h.Disconnect)
	rg.GET("/confirmations", h.Confirmations)
	rg.POST("/confirmations/:id", h.Confirm)
}
