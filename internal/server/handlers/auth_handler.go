package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/consignments/internal/domain/models"
	"github.com/mamadbah2/consignments/internal/service/dashboard"
)

// AuthHandler opens workspaces and signs their sessions in and out.
type AuthHandler struct {
	workspaces Workspaces
	tokens     Tokens
	logger     *zap.Logger
}

// NewAuthHandler constructs the authentication HTTP handler.
func NewAuthHandler(workspaces Workspaces, tokens Tokens, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{workspaces: workspaces, tokens: tokens, logger: logger}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string          `json:"token"`
	SessionID string          `json:"sessionId"`
	Identity  models.Identity `json:"identity"`
}

// SignUp creates an account and signs the workspace in.
func (h *AuthHandler) SignUp(c *gin.Context) {
	h.authenticate(c, func(ws *dashboard.Workspace, creds credentials) error {
		return ws.Sessions.SignUp(c.Request.Context(), creds.Email, creds.Password)
	})
}

// SignIn signs the workspace in with existing credentials.
func (h *AuthHandler) SignIn(c *gin.Context) {
	h.authenticate(c, func(ws *dashboard.Workspace, creds credentials) error {
		return ws.Sessions.SignIn(c.Request.Context(), creds.Email, creds.Password)
	})
}

// authenticate reuses the caller's workspace when it presents a valid token,
// otherwise it opens a new one.
func (h *AuthHandler) authenticate(c *gin.Context, call func(*dashboard.Workspace, credentials) error) {
	var creds credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ws, opened := h.resolve(c)
	if err := call(ws, creds); err != nil {
		if opened {
			_ = h.workspaces.Close(ws.ID)
		}
		respondError(c, h.logger, err, "authentication failed")
		return
	}

	current, _ := ws.Sessions.Current()
	signed, err := h.tokens.Issue(ws.ID, current.UID)
	if err != nil {
		respondError(c, h.logger, err, "could not issue token")
		return
	}

	c.JSON(http.StatusOK, authResponse{Token: signed, SessionID: ws.ID, Identity: current})
}

func (h *AuthHandler) resolve(c *gin.Context) (*dashboard.Workspace, bool) {
	if raw := bearerToken(c); raw != "" {
		if claims, err := h.tokens.Verify(raw); err == nil {
			if ws, err := h.workspaces.Get(claims.SessionID); err == nil {
				return ws, false
			}
		}
	}
	return h.workspaces.Open(), true
}

// SignOut clears the identity and discards the workspace.
func (h *AuthHandler) SignOut(c *gin.Context) {
	ws := workspaceFrom(c)
	ws.Sessions.SignOut()
	if err := h.workspaces.Close(ws.ID); err != nil {
		h.logger.Warn("workspace already closed", zap.String("session_id", ws.ID))
	}
	c.Status(http.StatusNoContent)
}
