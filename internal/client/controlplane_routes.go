package client

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openmined/kbsync/internal/client/controlplane"
	"github.com/openmined/kbsync/internal/client/handlers"
	"github.com/openmined/kbsync/internal/client/middleware"
	"github.com/openmined/kbsync/internal/version"
)

func SetupRoutes(deps *RouteDeps, cfg *controlplane.CPServerConfig) (http.Handler, error) {
	r := gin.New()

	rate := cfg.RateLimit
	if rate == "" {
		rate = controlplane.DefaultRateLimit
	}
	rateLimiter, err := middleware.RateLimiter(rate)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	syncH := handlers.NewSyncHandler(deps.Scheduler, deps.Events)
	eventsH := handlers.NewEventsHandler(deps.Events, cfg.AllowOrigins...)
	recordsH := handlers.NewRecordsHandler(deps.Records, deps.Scheduler)
	messagesH := handlers.NewMessagesHandler(deps.Messages)
	statusH := handlers.NewStatusHandler(deps.Info, deps.Scheduler)
	logsH := handlers.NewLogsHandler(cfg.LogFile)

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.SecureHeaders())
	r.Use(middleware.CORS(cfg.AllowOrigins...))
	r.Use(middleware.Gzip())

	r.GET("/", IndexHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(rateLimiter)
	v1.Use(middleware.TokenAuth(middleware.TokenAuthConfig{Token: cfg.AuthToken}))
	{
		v1.GET("/status", statusH.Status)
		v1.GET("/logs", logsH.GetLogs)
		v1.GET("/messages", messagesH.List)

		v1Sync := v1.Group("/sync")
		{
			v1Sync.GET("/status", syncH.Status)
			v1Sync.GET("/events", eventsH.Stream)
			v1Sync.POST("/full", syncH.FullSync)
			v1Sync.POST("/quick", syncH.QuickSync)
			v1Sync.POST("/messages", syncH.DownloadMessages)
			v1Sync.POST("/pause", syncH.Pause)
			v1Sync.POST("/resume", syncH.Resume)
			v1Sync.PUT("/interval", syncH.SetInterval)
		}

		v1Kb := v1.Group("/kb/:guid")
		{
			v1Kb.GET("/records/:id", recordsH.Get)
			v1Kb.PUT("/records/:id", recordsH.Put)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ControlPlaneError{
			ErrorCode: handlers.ErrCodeNotFound,
			Error:     "not found",
		})
	})

	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, handlers.ControlPlaneError{
			ErrorCode: handlers.ErrCodeBadRequest,
			Error:     "method not allowed",
		})
	})

	return r.Handler(), nil
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func IndexHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app":     version.AppName,
		"version": version.Version,
		"detail":  version.Detailed(),
	})
}
