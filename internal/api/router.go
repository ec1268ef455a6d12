package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/api/handlers"
	"github.com/leozw/ads-guardian/internal/api/middleware"
)

type Server struct {
	Router *gin.Engine
}

type Deps struct {
	Handler   *handlers.Handler
	Validator middleware.TokenValidator
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

func NewServer(mode string, deps Deps) *Server {
	if mode != "" {
		gin.SetMode(mode)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	router := gin.New()

	router.Use(middleware.Logger(deps.Logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	server := &Server{Router: router}
	server.setupRoutes(deps)
	return server
}

func (s *Server) setupRoutes(deps Deps) {
	h := deps.Handler

	s.Router.GET("/health", h.Health)
	s.Router.GET("/ready", h.Ready)
	if deps.Gatherer != nil {
		s.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := s.Router.Group("/api/v1")
	api.Use(middleware.AuthRequired(deps.Validator, deps.Logger))
	api.Use(middleware.Tenant())

	alerts := api.Group("/alerts")
	{
		alerts.GET("", h.ListAlerts)
		alerts.GET("/:id", h.GetAlert)
		alerts.POST("/:id/acknowledge", h.AcknowledgeAlert)
		alerts.POST("/:id/comments", h.AddAlertComment)
	}

	runs := api.Group("/runs")
	{
		runs.GET("/latest", h.LatestRun)
		runs.POST("", h.RequestRun)
	}
}
