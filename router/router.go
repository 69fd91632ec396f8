package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yeremiapane/retail-sync/controllers"
	"github.com/yeremiapane/retail-sync/middlewares"
	"github.com/yeremiapane/retail-sync/utils"
	"golang.org/x/time/rate"
)

type Options struct {
	JWTSecret []byte
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	// TriggerLimit and TriggerBurst bound manual sync requests per client.
	TriggerLimit rate.Limit
	TriggerBurst int
	// CORSOrigin is the dashboard origin allowed to call the API.
	CORSOrigin string
}

func SetupRouter(sync *controllers.SyncController, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(opts.CORSOrigin))

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if opts.TriggerLimit == 0 {
		opts.TriggerLimit = rate.Limit(1)
	}
	if opts.TriggerBurst == 0 {
		opts.TriggerBurst = 3
	}
	triggerLimiter := middlewares.NewRateLimiter(opts.TriggerLimit, opts.TriggerBurst)

	api := r.Group("/api")
	{
		api.GET("/health", sync.Health)

		syncRoutes := api.Group("/sync")
		syncRoutes.Use(middlewares.AuthMiddleware(opts.JWTSecret))
		{
			syncRoutes.GET("/status", sync.Status)
			syncRoutes.GET("/dead-letters", sync.DeadLetters)

			admin := syncRoutes.Group("")
			admin.Use(middlewares.RequireRole(utils.RoleAdmin))
			{
				admin.POST("/run", triggerLimiter.RateLimit(), sync.Trigger)
				admin.POST("/dead-letters/requeue", sync.Requeue)
			}
		}
	}

	ws := r.Group("/ws")
	ws.Use(middlewares.WebSocketAuthMiddleware(opts.JWTSecret))
	{
		ws.GET("/sync", sync.EventsWS)
	}

	return r
}
