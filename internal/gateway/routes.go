package gateway

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/openmined/chunksync/internal/remote"
	"github.com/openmined/chunksync/internal/version"
	slogGin "github.com/samber/slog-gin"
)

func SetupRoutes(store remote.ChunkStore, config *Config) (http.Handler, error) {
	r := gin.New()

	h := &Handler{store: store}
	if config.CacheSize > 0 {
		h.store = NewCachedStore(store, config.CacheSize, config.CacheTTL)
	}

	httpLogger := slog.Default().WithGroup("http")
	r.Use(slogGin.NewWithConfig(httpLogger, slogGin.Config{
		DefaultLevel:     slog.LevelDebug,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
	}))
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.BestSpeed))
	r.Use(cors.Default())
	r.Use(SecurityHeaders())

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)

	v1 := r.Group("/api/v1")
	if config.RateLimit != "" {
		limit, err := RateLimiter(config.RateLimit)
		if err != nil {
			return nil, err
		}
		v1.Use(limit)
	}
	v1.Use(BearerAuth(config.Token, config.JWTSecret))
	{
		v1.GET("/resources", h.ResourceInfo)
		v1.DELETE("/resources", h.RemoveResource)
		v1.GET("/resources/chunk", h.GetChunk)
		v1.PUT("/resources/chunk", h.SetChunk)
		v1.POST("/resources/append", h.AppendChunk)
	}

	r.NoRoute(func(c *gin.Context) {
		c.PureJSON(http.StatusNotFound, remote.APIError{
			Code:    remote.CodeInvalidRequest,
			Message: "not found",
		})
	})

	return r.Handler(), nil
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
