package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/consignments/internal/domain/models"
)

const defaultHeartbeat = 25 * time.Second

// ViewHandler exposes the controller state and its navigation actions.
type ViewHandler struct {
	workspaces Workspaces
	logger     *zap.Logger
	heartbeat  time.Duration
}

// NewViewHandler constructs the view HTTP handler.
func NewViewHandler(workspaces Workspaces, logger *zap.Logger) *ViewHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewHandler{workspaces: workspaces, logger: logger, heartbeat: defaultHeartbeat}
}

// Get renders the current view.
func (h *ViewHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, workspaceFrom(c).Controller.View())
}

type tabRequest struct {
	Tab string `json:"tab"`
}

// SelectTab switches between the dashboard, dues and accounts tabs.
func (h *ViewHandler) SelectTab(c *gin.Context) {
	var req tabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctrl := workspaceFrom(c).Controller
	if err := ctrl.SelectTab(models.Tab(req.Tab)); err != nil {
		respondError(c, h.logger, err, "could not select tab")
		return
	}
	c.JSON(http.StatusOK, ctrl.View())
}

type monthRequest struct {
	Month string `json:"month"`
}

// SelectMonth sets the month shown by the dashboard and accounts tabs.
func (h *ViewHandler) SelectMonth(c *gin.Context) {
	var req monthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctrl := workspaceFrom(c).Controller
	if err := ctrl.SelectMonth(req.Month); err != nil {
		respondError(c, h.logger, err, "could not select month")
		return
	}
	c.JSON(http.StatusOK, ctrl.View())
}

type modalRequest struct {
	ID string `json:"id"`
}

// OpenModal opens the entry form, prefilled when an id is given.
func (h *ViewHandler) OpenModal(c *gin.Context) {
	var req modalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	ctrl := workspaceFrom(c).Controller
	var (
		modal models.Modal
		err   error
	)
	if req.ID == "" {
		modal, err = ctrl.OpenNew()
	} else {
		modal, err = ctrl.OpenEdit(req.ID)
	}
	if err != nil {
		respondError(c, h.logger, err, "could not open form")
		return
	}
	c.JSON(http.StatusOK, modal)
}

// CloseModal discards the entry form.
func (h *ViewHandler) CloseModal(c *gin.Context) {
	workspaceFrom(c).Controller.CloseModal()
	c.Status(http.StatusNoContent)
}

// DismissError clears the last save or delete failure.
func (h *ViewHandler) DismissError(c *gin.Context) {
	workspaceFrom(c).Controller.DismissError()
	c.Status(http.StatusNoContent)
}

// Retry re-subscribes after a load failure.
func (h *ViewHandler) Retry(c *gin.Context) {
	ctrl := workspaceFrom(c).Controller
	if err := ctrl.Retry(); err != nil {
		respondError(c, h.logger, err, "could not retry")
		return
	}
	c.JSON(http.StatusAccepted, ctrl.View())
}

// Events streams the view as server-sent events: once on connect and again
// after every change. Heartbeats keep the workspace from being swept. The
// stream ends once the workspace is no longer signed in as the token's uid.
func (h *ViewHandler) Events(c *gin.Context) {
	ws := workspaceFrom(c)
	uid := c.GetString(tokenUIDKey)
	ctx := c.Request.Context()
	updates := ws.Controller.Updates(ctx)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("view", ws.Controller.View())
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case _, ok := <-updates:
			if !ok || !signedInAs(ws, uid) {
				return false
			}
			c.SSEvent("view", ws.Controller.View())
			return true
		case <-ticker.C:
			if _, err := h.workspaces.Get(ws.ID); err != nil || !signedInAs(ws, uid) {
				return false
			}
			c.SSEvent("ping", time.Now().Unix())
			return true
		}
	})

	h.logger.Debug("event stream closed", zap.String("session_id", ws.ID))
}
