package handlers

import (
	"net/http"
	"time"

	"machine_monitor/internal/logger"
	"machine_monitor/internal/service"

	"github.com/gin-contrib/gzip"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	health   healthcheck.Handler
	events   http.Handler
	log      *logger.Logger
}

// NewHandler constructs the HTTP handler. health and events may be nil.
func NewHandler(services *service.Service, health healthcheck.Handler, events http.Handler, log *logger.Logger) *Handler {
	return &Handler{services: services, health: health, events: events, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	if h.log != nil {
		router.Use(ginzap.Ginzap(h.log.Desugar(), time.RFC3339, true))
		router.Use(ginzap.RecoveryWithZap(h.log.Desugar(), true))
	} else {
		router.Use(gin.Recovery())
	}
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/metrics"})))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h.registerSystemRoutes(router)
	h.registerAPIRoutes(router)

	return router
}

func (h *Handler) registerSystemRoutes(r *gin.Engine) {
	r.GET("/health", h.healthz)
	if h.health != nil {
		r.GET("/live", gin.WrapF(h.health.LiveEndpoint))
		r.GET("/ready", gin.WrapF(h.health.ReadyEndpoint))
	}
	r.GET("/ws", h.wsConnect)
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		h.registerMachineRoutes(api)
		h.registerJobRoutes(api)
		h.registerMaintenanceRoutes(api)
	}
}

func (h *Handler) registerMachineRoutes(api *gin.RouterGroup) {
	machines := api.Group("/machines/:id", h.machineRefMiddleware)
	{
		machines.GET("/state", h.getState)
		machines.GET("/intervals", h.getIntervals)
		// Body example: {"at":"2024-01-06T08:00:00Z","source":"gateway"}
		machines.POST("/offline", h.markOffline)
		machines.GET("/oee", h.getMachineOEE)
		machines.GET("/downtime", h.getDowntime)
		machines.GET("/utilization", h.getUtilization)
	}
}

func (h *Handler) registerJobRoutes(api *gin.RouterGroup) {
	api.GET("/jobs/:id/oee", h.getJobOEE)
}

func (h *Handler) registerMaintenanceRoutes(api *gin.RouterGroup) {
	api.POST("/maintenance/heal", h.healAll)
}
