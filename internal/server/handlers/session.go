package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/consignments/internal/repository/mongodb"
	"github.com/mamadbah2/consignments/internal/service/dashboard"
	"github.com/mamadbah2/consignments/internal/service/reporting"
	"github.com/mamadbah2/consignments/internal/service/session"
	"github.com/mamadbah2/consignments/pkg/clients/identity"
	"github.com/mamadbah2/consignments/pkg/token"
)

const (
	workspaceKey = "workspace"
	tokenUIDKey  = "token_uid"
)

// Workspaces resolves session ids to live workspaces.
type Workspaces interface {
	Open() *dashboard.Workspace
	Get(id string) (*dashboard.Workspace, error)
	Close(id string) error
}

// Tokens issues and verifies the bearer tokens handed to clients.
type Tokens interface {
	Issue(sessionID, uid string) (string, error)
	Verify(raw string) (token.Claims, error)
}

// RequireSession resolves the bearer token to its workspace. Event streams may
// pass the token as the "token" query parameter instead. A token is only
// accepted while the workspace is signed in as the uid it was issued for.
func RequireSession(tokens Tokens, workspaces Workspaces, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := tokens.Verify(raw)
		if err != nil {
			logger.Debug("token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ws, err := workspaces.Get(claims.SessionID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		if !signedInAs(ws, claims.UID) {
			logger.Info("token identity no longer current", zap.String("session_id", ws.ID))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		c.Set(workspaceKey, ws)
		c.Set(tokenUIDKey, claims.UID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.Query("token")
}

func signedInAs(ws *dashboard.Workspace, uid string) bool {
	current, ok := ws.Sessions.Current()
	return ok && uid != "" && current.UID == uid
}

func workspaceFrom(c *gin.Context) *dashboard.Workspace {
	ws, _ := c.MustGet(workspaceKey).(*dashboard.Workspace)
	return ws
}

// respondError maps service errors onto HTTP statuses. fallback is the
// user-facing message for anything unexpected.
func respondError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	status := http.StatusInternalServerError
	message := fallback

	var idErr *identity.Error
	switch {
	case errors.As(err, &idErr):
		status, message = http.StatusUnauthorized, idErr.Message
	case errors.Is(err, session.ErrMissingCredentials):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, identity.ErrTransport):
		status = http.StatusBadGateway
	case errors.Is(err, dashboard.ErrSignedOut):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, dashboard.ErrUnknownRecord), errors.Is(err, mongodb.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, dashboard.ErrUnknownTab), errors.Is(err, reporting.ErrInvalidMonth), errors.Is(err, mongodb.ErrInvalidID):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, dashboard.ErrNoPendingDelete):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, dashboard.ErrNotRunning):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": message})
}
