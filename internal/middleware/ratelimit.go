package middleware

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/journal-api/internal/service"
	appErrors "github.com/noah-isme/journal-api/pkg/errors"
	"github.com/noah-isme/journal-api/pkg/response"
)

type hitCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimitOptions configures a per client fixed window limit.
type RateLimitOptions struct {
	Scope  string
	Limit  int64
	Window time.Duration
}

// RateLimit throttles callers by client IP. Counter failures let the request through.
func RateLimit(counter hitCounter, opts RateLimitOptions, metrics *service.MetricsService, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	return func(c *gin.Context) {
		if counter == nil || opts.Limit <= 0 {
			c.Next()
			return
		}

		count, reset, err := counter.Hit(c.Request.Context(), opts.Scope+":"+c.ClientIP(), opts.Window)
		if err != nil {
			logger.Warn("rate limit counter unavailable", zap.String("scope", opts.Scope), zap.Error(err))
			c.Next()
			return
		}

		remaining := opts.Limit - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(opts.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > opts.Limit {
			retryAfter := int(math.Ceil(reset.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			path := c.FullPath()
			if path == "" {
				path = c.Request.URL.Path
			}
			metrics.ObserveRateLimited(path)
			response.Abort(c, appErrors.WithDetails(appErrors.ErrRateLimited, map[string]interface{}{
				"retry_after_seconds": retryAfter,
			}))
			return
		}
		c.Next()
	}
}
