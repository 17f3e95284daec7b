package middleware

import (
	"context"
	"time"

	"ssb-rpc/logging"
	"ssb-rpc/message"
)

func LoggingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request, w ReplyWriter) error {
			start := time.Now()
			err := next(ctx, req, w)
			duration := time.Since(start)
			logging.Log.Infof("%s %s took %s", req.Type, req.Method(), duration)
			if err != nil {
				logging.Log.Errorf("%s failed: %v", req.Method(), err)
			}
			return err
		}
	}
}
