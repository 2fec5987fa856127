package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/kode4food/argyll/worker"
	"github.com/kode4food/argyll/worker/internal/controller"
	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/log"
)

type (
	// Server implements the HTTP API of the worker
	Server struct {
		handler controller.Handler
		token   string
		check   HealthCheck
	}

	// HealthCheck reports whether the worker's dependencies are reachable
	HealthCheck func(context.Context) error
)

const bearerPrefix = "Bearer "

// NewServer creates a server dispatching operations to h. When token is
// set, operation requests must present it as a bearer credential
func NewServer(h controller.Handler, token string, check HealthCheck) *Server {
	return &Server{
		handler: h,
		token:   token,
		check:   check,
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	router.GET("/health", s.handleHealth)

	v1 := router.Group("/v1")
	v1.Use(s.authenticate)
	{
		v1.POST("/operations/:type", s.handleOperation)
	}

	return router
}

func (s *Server) authenticate(c *gin.Context) {
	if s.token == "" {
		c.Next()
		return
	}
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, bearerPrefix) ||
		strings.TrimPrefix(auth, bearerPrefix) != s.token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{
			Error:  "invalid worker token",
			Status: http.StatusUnauthorized,
		})
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	res := api.HealthResponse{
		Service: worker.Name,
		Version: worker.Version,
		Status:  api.HealthHealthy,
	}
	if s.check != nil {
		if err := s.check(c.Request.Context()); err != nil {
			slog.Warn("Health check failed",
				log.Error(err))
			res.Status = api.HealthUnhealthy
			c.JSON(http.StatusServiceUnavailable, res)
			return
		}
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleOperation(c *gin.Context) {
	op := api.OperationType(strings.ToUpper(c.Param("type")))

	var input any
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusBadRequest,
		})
		return
	}

	res := s.handler.Dispatch(c.Request.Context(), op, input)
	if res.Status != api.OperationOK {
		c.JSON(http.StatusInternalServerError, res)
		return
	}
	c.JSON(http.StatusOK, res)
}
