package main

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/maresto/inventory_backend/catalogsync"
	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/metrics"
	"github.com/maresto/inventory_backend/middlewares"
	"github.com/maresto/inventory_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// newRouter wires every route. ready gates app endpoints until dependencies are up.
func newRouter(s config.Settings, svc *catalogsync.Service, ready func() bool) *gin.Engine {
	logger := config.GetLogger()

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		// Always allow the readiness check.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if !ready() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	if s.Otel.Enabled {
		r.Use(otelgin.Middleware(s.Otel.ServiceName))
	}
	r.Use(cors.New(corsConfig(s)))
	if rl := rateLimiterFromEnv(); rl != nil {
		r.Use(rl.RateLimitMiddleware)
	}
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	if s.Metrics.Enabled {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	r.POST("/pubsub/catalog-sync", catalogsync.PubSubPushHandler())

	api := r.Group("/", middlewares.AuthMiddleware())
	api.POST("/branch", createBranchHandler(svc))
	api.GET("/branches", getBranchesHandler())
	api.GET("/users", getUsersHandler())

	branch := api.Group("/branches/:id", middlewares.BranchMiddleware())
	branch.GET("", getBranchHandler())
	branch.PATCH("", updateBranchHandler())
	branch.GET("/sync", syncBranchHandler(svc))
	branch.GET("/specifications", getSpecificationsHandler())
	branch.POST("/specifications", createSpecificationHandler())
	branch.GET("/specifications/export", exportLedgerHandler())
	branch.PATCH("/specification/:specId", updateSpecificationHandler())
	branch.DELETE("/specification/:specId", deleteSpecificationHandler())
	branch.POST("/specification/:specId/purchase", purchaseSpecificationHandler())
	branch.GET("/specification/:specId/histories", getSpecificationHistoriesHandler())
	branch.GET("/products", getProductsHandler())
	branch.PUT("/set-product-specification", setProductSpecificationHandler())
	branch.POST("/transaction", createTransactionHandler())
	branch.POST("/bulk-transaction", bulkCreateTransactionHandler())
	branch.GET("/transaction/:transactionId", getTransactionHandler())

	r.NoRoute(customNotFoundHandler)
	return r
}

// corsConfig requires an explicit allowlist in production and allows all origins elsewhere.
func corsConfig(s config.Settings) cors.Config {
	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(s.CorsAllowedOrigins)
	if s.IsProduction() {
		if allowedOrigins == "" {
			// deny all when production has no allowlist
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.CorrelationIdHeader)
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", middlewares.CorrelationIdHeader)
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	return corsConfig
}

// customErrorLogger logs only requests that recorded errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"path":           c.FullPath(),
				"status":         c.Writer.Status(),
				"correlation_id": cid,
			}).Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
