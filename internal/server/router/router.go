package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/consignments/internal/server/handlers"
)

const requestIDHeader = "X-Request-ID"

// Handlers groups the HTTP handlers and the session middleware.
type Handlers struct {
	Auth           *handlers.AuthHandler
	View           *handlers.ViewHandler
	Consignments   *handlers.ConsignmentHandler
	RequireSession gin.HandlerFunc
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.POST("/auth/signup", h.Auth.SignUp)
	api.POST("/auth/signin", h.Auth.SignIn)

	authed := api.Group("", h.RequireSession)
	authed.POST("/auth/signout", h.Auth.SignOut)

	authed.GET("/view", h.View.Get)
	authed.PUT("/view/tab", h.View.SelectTab)
	authed.PUT("/view/month", h.View.SelectMonth)
	authed.POST("/view/modal", h.View.OpenModal)
	authed.DELETE("/view/modal", h.View.CloseModal)
	authed.DELETE("/view/error", h.View.DismissError)
	authed.POST("/view/retry", h.View.Retry)
	authed.GET("/events", h.View.Events)

	authed.GET("/consignments", h.Consignments.List)
	authed.POST("/consignments", h.Consignments.Create)
	authed.PUT("/consignments/:id", h.Consignments.Update)
	authed.POST("/consignments/:id/delete", h.Consignments.RequestDelete)
	authed.POST("/pending-delete/confirm", h.Consignments.ConfirmDelete)
	authed.DELETE("/pending-delete", h.Consignments.CancelDelete)

	authed.GET("/dashboard", h.Consignments.Dashboard)
	authed.GET("/dues", h.Consignments.Dues)
	authed.GET("/accounts", h.Consignments.Accounts)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
