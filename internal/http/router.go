package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trustlens/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas base.
// ping verifica la base de datos en /healthz; puede ser nil.
func NewRouter(
	logger *zap.Logger,
	jwtSvc *service.JWTService,
	uploadH *UploadHandler,
	analysisH *AnalysisHandler,
	ping func(ctx context.Context) error,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		if ping != nil {
			if err := ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := r.Group("/", JWTAuthMiddleware(jwtSvc))

	uploads := authed.Group("/uploads")
	uploads.POST("", uploadH.Submit)
	uploads.GET("", uploadH.List)
	uploads.GET("/:id/progress", uploadH.Progress)
	uploads.GET("/:id/result", uploadH.Result)
	uploads.DELETE("/:id", uploadH.Delete)

	authed.GET("/analysis/:id", analysisH.Get)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
