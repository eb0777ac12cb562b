package handlers

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skincheck-api/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

type RouterOptions struct {
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	// Gatherer backs /metrics. The route is not registered when nil.
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

// NewRouter mounts the API:
//
//	GET  /health
//	POST /detection/predict
//	GET  /weather/weather
//	GET  /metrics
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		loggingMiddleware(log.Named("http")),
		cors.New(corsConfig(opts.AllowedOrigins)),
	)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware())
	}

	r.GET("/health", h.Health)
	r.POST("/detection/predict", h.Predict)
	r.GET("/weather/weather", h.Weather)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", requestIDHeader}
	config.ExposeHeaders = []string{requestIDHeader}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return config
}

// requestIDMiddleware keeps a caller supplied X-Request-ID or assigns one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestID(c *gin.Context) zap.Field {
	return zap.String("request_id", c.GetString(requestIDHeader))
}

func loggingMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			requestID(c),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("request failed", fields...)
			return
		}
		log.Info("request", fields...)
	}
}
