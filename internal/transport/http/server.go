package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relayhub/internal/auth"
	"github.com/vovakirdan/relayhub/internal/config"
	"github.com/vovakirdan/relayhub/internal/core"
)

// NewServer builds an HTTP server with health, metrics, websocket and REST routes.
// A nil gatherer disables /metrics.
func NewServer(
	hub *core.Hub,
	authService *auth.Service,
	cfg *config.Config,
	gatherer prometheus.Gatherer,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	apiHandlers := NewAPIHandlers(authService, logger)
	hubHandlers := NewHubHandlers(hub, logger)
	limiter := RateLimitMiddleware(cfg.RateLimitPerMinute, logger)

	api := router.Group("/api")
	{
		// Public routes
		api.POST("/auth/nonce", limiter, apiHandlers.Nonce)
		api.POST("/auth/login", limiter, apiHandlers.Login)

		api.GET("/hub", hubHandlers.Info)
		api.GET("/messages/:id", hubHandlers.GetMessage)
		api.GET("/messages/:id/challenge", hubHandlers.GetChallenge)
		api.GET("/chains/:id", hubHandlers.GetChain)
		api.GET("/chains/:id/fee", hubHandlers.GetChainFee)
		api.GET("/relayers/:address", hubHandlers.GetRelayer)
		api.GET("/payouts/:address", hubHandlers.GetPayouts)

		// Protected routes
		protected := api.Group("")
		protected.Use(limiter, AuthMiddleware(authService, logger))
		{
			protected.POST("/initialize", hubHandlers.Initialize)
			protected.POST("/messages", hubHandlers.SendMessage)
			protected.POST("/messages/:id/confirm", hubHandlers.ConfirmDelivery)
			protected.POST("/messages/:id/challenge", hubHandlers.ChallengeMessage)
			protected.POST("/messages/:id/finalize", hubHandlers.FinalizeMessage)
			protected.POST("/relayers/register", hubHandlers.RegisterRelayer)
			protected.POST("/relayers/exit", hubHandlers.ExitRelayer)
			protected.POST("/chains", hubHandlers.AddChain)
			protected.POST("/chains/:id/disable", hubHandlers.DisableChain)
			protected.POST("/treasury/withdraw", hubHandlers.WithdrawFees)
			protected.POST("/owner", hubHandlers.TransferOwnership)
		}
	}

	// The websocket upgrade hijacks the connection, which gin refuses once
	// its writer is wrapped, so /ws bypasses the router.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
