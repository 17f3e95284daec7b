package middleware

import (
	"context"
	"errors"
	"time"

	"ssb-rpc/message"
)

var ErrTimeout = errors.New("request timed out")

func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request, w ReplyWriter) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- next(ctx, req, w)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				return ErrTimeout
			}
		}
	}
}
