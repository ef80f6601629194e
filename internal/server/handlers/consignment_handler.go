package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/consignments/internal/domain/models"
	"github.com/mamadbah2/consignments/internal/repository/mongodb"
	"github.com/mamadbah2/consignments/internal/service/dashboard"
)

// ConsignmentHandler serves record mutations and the derived views.
type ConsignmentHandler struct {
	logger *zap.Logger
}

// NewConsignmentHandler constructs the consignment HTTP handler.
func NewConsignmentHandler(logger *zap.Logger) *ConsignmentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsignmentHandler{logger: logger}
}

// List returns every loaded record, newest first.
func (h *ConsignmentHandler) List(c *gin.Context) {
	records, err := workspaceFrom(c).Controller.Records()
	if err != nil {
		respondError(c, h.logger, err, dashboard.MessageLoadFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"consignments": records})
}

// Create stores a new record.
func (h *ConsignmentHandler) Create(c *gin.Context) {
	h.save(c, "", http.StatusCreated)
}

// Update overwrites every field of an existing record.
func (h *ConsignmentHandler) Update(c *gin.Context) {
	h.save(c, c.Param("id"), http.StatusOK)
}

func (h *ConsignmentHandler) save(c *gin.Context, id string, status int) {
	var payload models.ConsignmentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	saved, err := workspaceFrom(c).Controller.Save(c.Request.Context(), payload.ToConsignment(id))
	if err != nil {
		h.respondMutationError(c, err, dashboard.MessageSaveFailed)
		return
	}
	c.JSON(status, gin.H{"id": saved})
}

// RequestDelete stages a delete that must be confirmed.
func (h *ConsignmentHandler) RequestDelete(c *gin.Context) {
	ctrl := workspaceFrom(c).Controller
	if err := ctrl.RequestDelete(c.Param("id")); err != nil {
		respondError(c, h.logger, err, dashboard.MessageDeleteFailed)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"pendingDelete": c.Param("id")})
}

// ConfirmDelete issues the staged delete.
func (h *ConsignmentHandler) ConfirmDelete(c *gin.Context) {
	id, err := workspaceFrom(c).Controller.ConfirmDelete(c.Request.Context())
	if err != nil {
		h.respondMutationError(c, err, dashboard.MessageDeleteFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// CancelDelete drops the staged delete.
func (h *ConsignmentHandler) CancelDelete(c *gin.Context) {
	workspaceFrom(c).Controller.CancelDelete()
	c.Status(http.StatusNoContent)
}

// Dashboard returns the KPIs and records of a month.
func (h *ConsignmentHandler) Dashboard(c *gin.Context) {
	view, err := workspaceFrom(c).Controller.Dashboard(c.Query("month"))
	if err != nil {
		respondError(c, h.logger, err, dashboard.MessageLoadFailed)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Dues returns the outstanding balances per consignee.
func (h *ConsignmentHandler) Dues(c *gin.Context) {
	summary, err := workspaceFrom(c).Controller.Dues(c.Query("month"))
	if err != nil {
		respondError(c, h.logger, err, dashboard.MessageLoadFailed)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Accounts returns the collections of a month.
func (h *ConsignmentHandler) Accounts(c *gin.Context) {
	summary, err := workspaceFrom(c).Controller.Accounts(c.Query("month"))
	if err != nil {
		respondError(c, h.logger, err, dashboard.MessageLoadFailed)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// respondMutationError reports store failures with the message the view
// shows, keeping client errors distinguishable.
func (h *ConsignmentHandler) respondMutationError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, dashboard.ErrSignedOut),
		errors.Is(err, dashboard.ErrNoPendingDelete),
		errors.Is(err, mongodb.ErrNotFound),
		errors.Is(err, mongodb.ErrInvalidID):
		respondError(c, h.logger, err, message)
	default:
		h.logger.Error("store mutation failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": message})
	}
}
