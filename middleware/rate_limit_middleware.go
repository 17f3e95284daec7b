package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"ssb-rpc/message"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitMiddleware 创建一个基于令牌桶算法的限流中间件
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request, w ReplyWriter) error {
			if !limiter.Allow() {
				return ErrRateLimited
			}
			return next(ctx, req, w)
		}
	}
}
