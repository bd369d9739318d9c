package gateway

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/remote"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func RateLimiter(formattedRate string) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		return nil, fmt.Errorf("%w: rate limit %q: %w", errs.ErrInvalidConfiguration, formattedRate, err)
	}
	instance := limiter.New(memory.NewStore(), rate)
	return mgin.NewMiddleware(
		instance,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.PureJSON(http.StatusTooManyRequests, remote.APIError{
				Code:    remote.CodeRateLimited,
				Message: "rate limit exceeded",
			})
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			c.PureJSON(http.StatusInternalServerError, remote.APIError{
				Code:    remote.CodeInternalError,
				Message: err.Error(),
			})
		}),
	), nil
}

const (
	bearerPrefix      = "Bearer "
	authHeader        = "Authorization"
	subjectContextKey = "subject"
)

// BearerAuth checks the bearer token of every request. With a jwt secret the
// token must be a valid gateway JWT; otherwise it must equal the static
// token. Neither set leaves the API open.
func BearerAuth(token, jwtSecret string) gin.HandlerFunc {
	if token == "" && jwtSecret == "" {
		slog.Info("gateway auth disabled")
		return func(ctx *gin.Context) {
			ctx.Next()
		}
	}

	return func(ctx *gin.Context) {
		got, ok := strings.CutPrefix(ctx.GetHeader(authHeader), bearerPrefix)
		if !ok || got == "" {
			abortWithError(ctx, http.StatusUnauthorized, remote.CodeAccessDenied, errors.New("authorization header must be Bearer {token}"))
			return
		}

		if jwtSecret != "" {
			claims, err := ParseToken(got, jwtSecret)
			if err != nil {
				abortWithError(ctx, http.StatusUnauthorized, remote.CodeAccessDenied, err)
				return
			}
			ctx.Set(subjectContextKey, claims.Subject)
			ctx.Next()
			return
		}

		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			abortWithError(ctx, http.StatusUnauthorized, remote.CodeAccessDenied, errors.New("invalid bearer token"))
			return
		}
		ctx.Next()
	}
}

func SecurityHeaders() gin.HandlerFunc {
	return secure.New(secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		IENoOpen:           true,
		ReferrerPolicy:     "no-referrer",
	})
}
