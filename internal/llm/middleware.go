package llm

import (
	"context"
	"time"
)

type CompleteFunc func(ctx context.Context, req Request) (Response, error)

type Middleware interface {
	WrapComplete(next CompleteFunc) CompleteFunc
}

// MiddlewareFunc adapts a plain function to Middleware. A nil Complete passes through.
type MiddlewareFunc struct {
	Complete func(ctx context.Context, req Request, next CompleteFunc) (Response, error)
}

func (m MiddlewareFunc) WrapComplete(next CompleteFunc) CompleteFunc {
	if m.Complete == nil {
		return next
	}
	return func(ctx context.Context, req Request) (Response, error) {
		return m.Complete(ctx, req, next)
	}
}

func applyMiddlewareComplete(base CompleteFunc, mw []Middleware) CompleteFunc {
	h := base
	for i := len(mw) - 1; i >= 0; i-- {
		if mw[i] == nil {
			continue
		}
		h = mw[i].WrapComplete(h)
	}
	return h
}

// Timeout bounds each completion call, including any retries wrapped inside it.
func Timeout(d time.Duration) Middleware {
	return MiddlewareFunc{Complete: func(ctx context.Context, req Request, next CompleteFunc) (Response, error) {
		if d <= 0 {
			return next(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		resp, err := next(ctx, req)
		if err != nil && ctx.Err() != nil {
			return Response{}, WrapContextError(req.Provider, err)
		}
		return resp, err
	}}
}
