package middleware

import (
	"context"

	"ssb-rpc/message"
)

// ReplyWriter sends values back to the caller: the single answer of an async
// call, or each item of a source.
type ReplyWriter interface {
	Send(v any) error
}

// HandlerFunc serves one request. A returned error is sent to the caller as
// the error object ending the call.
type HandlerFunc func(ctx context.Context, req *message.Request, w ReplyWriter) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
