package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/layer-3/chainauth/internal/log"
	"github.com/layer-3/chainauth/rpc"
	"github.com/layer-3/chainauth/service"
)

// RouterConfig holds the optional parts of the router.
type RouterConfig struct {
	Logger log.Logger
	// Chains enables the JSON-RPC proxy for each named client.
	Chains       map[string]*rpc.Client
	ProxyMethods []string
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, conf RouterConfig) *gin.Engine {
	if conf.Logger == nil {
		conf.Logger = log.NewNoopLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(conf.Logger.WithName("http")))

	// Create handlers
	handlers := NewAuthHandlers(authService)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/challenge", handlers.Challenge)
		auth.POST("/login", handlers.Login)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(authService))
	{
		api.GET("/me", handlers.Me)
		api.GET("/authorize", handlers.Authorize)

		if len(conf.Chains) > 0 {
			proxy := NewRPCProxy(conf.Chains, conf.ProxyMethods)
			api.POST("/chains/:chain/rpc", proxy.Handle)
		}
	}

	if conf.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(conf.Gatherer, promhttp.HandlerOpts{})))
	}

	return router
}
