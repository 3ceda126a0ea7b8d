package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/slotbook/internal/middleware"
	"github.com/jwalitptl/slotbook/pkg/httputil"
	"github.com/jwalitptl/slotbook/pkg/metrics"
	"github.com/jwalitptl/slotbook/pkg/validator"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type MetricsHandler interface {
	RegisterRoutes(gin.IRoutes)
}

type Router struct {
	engine *gin.Engine
	health Handler
	api    []Handler
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type RouterConfig struct {
	Mode           string
	RateLimit      rate.Limit
	RateBurst      int
	RequestTimeout time.Duration
	MaxBodySize    int64
	HSTS           bool
	CORS           CORSConfig
}

// NewRouter builds the engine and its middleware chain. health is mounted
// outside the rate limiter so health checks are never throttled.
func NewRouter(
	logger zerolog.Logger,
	m *metrics.Metrics,
	metricsH MetricsHandler,
	health Handler,
	config RouterConfig,
	api ...Handler,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	binding.Validator = validator.Default()

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Recovery(logger),
		middleware.Metrics(m),
		middleware.SecurityHeaders(middleware.SecurityConfig{HSTS: config.HSTS, HSTSMaxAge: 31536000}),
		cors.New(corsConfig(config.CORS)),
	)

	engine.NoRoute(func(c *gin.Context) {
		httputil.AbortWithStatus(c, http.StatusNotFound, "route not found")
	})
	engine.NoMethod(func(c *gin.Context) {
		httputil.AbortWithStatus(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	if metricsH != nil {
		metricsH.RegisterRoutes(engine)
	}

	r := &Router{
		engine: engine,
		health: health,
		api:    api,
	}
	r.setup(config)
	return r
}

func corsConfig(c CORSConfig) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderXRequestID}
	cfg.ExposeHeaders = []string{middleware.HeaderXRequestID}
	cfg.AllowCredentials = c.AllowCredentials
	if c.MaxAge > 0 {
		cfg.MaxAge = c.MaxAge
	}
	if len(c.AllowedOrigins) == 0 || (len(c.AllowedOrigins) == 1 && c.AllowedOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = c.AllowedOrigins
	}
	return cfg
}

func (r *Router) setup(config RouterConfig) {
	if r.health != nil {
		r.health.RegisterRoutes(&r.engine.RouterGroup)
	}

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})
	if config.RateLimit > 0 {
		api.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		}).RateLimit())
	}
	api.Use(
		middleware.SizeLimit(middleware.SizeLimitConfig{
			MaxBodySize:   config.MaxBodySize,
			MaxHeaderSize: middleware.DefaultSizeLimitConfig().MaxHeaderSize,
		}),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
	)

	for _, h := range r.api {
		h.RegisterRoutes(api)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
