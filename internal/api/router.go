package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prasenjit/mockforge/internal/feed"
	"github.com/prasenjit/mockforge/internal/metrics"
	"github.com/prasenjit/mockforge/internal/proxy"
	"go.uber.org/zap"
)

const clientTokenKey = "clientToken"

// Router handles HTTP routing
type Router struct {
	engine      *gin.Engine
	handler     *Handler
	proxyEngine *proxy.Engine
	feed        *feed.Service
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewRouter creates a new router. feedSvc and m may be nil, which leaves
// the live stream and the metrics endpoint unmounted.
func NewRouter(handler *Handler, proxyEngine *proxy.Engine, feedSvc *feed.Service, m *metrics.Metrics, logger *zap.Logger) *Router {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:      gin.New(),
		handler:     handler,
		proxyEngine: proxyEngine,
		feed:        feedSvc,
		metrics:     m,
		logger:      logger.Named("http"),
	}

	// Setup middleware
	r.engine.Use(recoveryMiddleware(r.logger))
	r.engine.Use(corsMiddleware())
	r.engine.Use(clientTokenMiddleware())
	r.engine.Use(requestLogger(r.logger))

	// Setup routes
	r.setupRoutes()

	return r
}

// setupRoutes configures all routes
func (r *Router) setupRoutes() {
	api := r.engine.Group("/api")
	{
		api.GET("/health", r.handler.HealthCheck)

		// Mocks
		api.GET("/mocks", r.handler.ListMocks)
		api.POST("/mocks", r.handler.CreateMock)
		api.GET("/mocks/export", r.handler.ExportMocks)
		api.POST("/mocks/import", r.handler.ImportMocks)
		api.POST("/mocks/import/openapi", r.handler.ImportOpenAPI)
		api.POST("/mocks/bulk-delete", r.handler.BulkDeleteMocks)
		api.GET("/mocks/:id", r.handler.GetMock)
		api.PUT("/mocks/:id", r.handler.UpdateMock)
		api.DELETE("/mocks/:id", r.handler.DeleteMock)
		api.POST("/mocks/:id/clone", r.handler.CloneMock)

		// Chats
		api.GET("/chats", r.handler.ListChats)
		api.GET("/chats/:id", r.handler.GetChat)
		api.DELETE("/chats/:id", r.handler.DeleteChat)
		api.POST("/chats/:id/apply", r.handler.ApplySuggestion)
		api.POST("/chat", r.handler.SendMessage)

		// Statistics
		api.GET("/stats", r.handler.GetStats)
		api.POST("/stats/reset", r.handler.ResetStats)
		if r.feed != nil {
			api.GET("/stats/stream", gin.WrapH(feed.NewWebSocketHandler(r.feed, r.logger)))
		}
	}

	if r.metrics != nil {
		r.engine.GET("/metrics", gin.WrapH(r.metrics.Handler()))
	}

	// Mock traffic
	mockHandler := gin.WrapH(r.proxyEngine)
	r.engine.Any(proxy.DefaultPrefix, mockHandler)
	r.engine.Any(proxy.DefaultPrefix+"/*path", mockHandler)

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
}

// Handler returns the http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// corsMiddleware adds CORS headers. Preflight requests are answered here;
// plain OPTIONS requests still reach the mocks.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Client-Token")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// clientTokenMiddleware keeps the caller's opaque token on the context
func clientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := c.GetHeader(proxy.ClientTokenHeader); token != "" {
			c.Set(clientTokenKey, token)
		}
		c.Next()
	}
}

// requestLogger logs each request with zap
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if token := c.GetString(clientTokenKey); token != "" {
			fields = append(fields, zap.String("client", token))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Info("request", fields...)
		default:
			logger.Debug("request", fields...)
		}
	}
}

// recoveryMiddleware turns panics into 500 responses and logs them
func recoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stack"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}
