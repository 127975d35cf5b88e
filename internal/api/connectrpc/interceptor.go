package connectrpc

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
)

// TraceHeader carries the trace id between client and server.
const TraceHeader = "X-Trace-ID"

// NewTraceInterceptor propagates trace ids. On the client side it stamps
// outgoing requests with the trace id from the context, or a fresh one. On the
// server side it puts the incoming id (or a fresh one) into the context and
// echoes it on the response.
func NewTraceInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				if req.Header().Get(TraceHeader) == "" {
					id := observability.TraceIDFromContext(ctx)
					if id == "" {
						id = uuid.NewString()
					}
					req.Header().Set(TraceHeader, id)
				}
				return next(ctx, req)
			}

			id := req.Header().Get(TraceHeader)
			if id == "" {
				id = uuid.NewString()
			}
			resp, err := next(observability.ContextWithTraceID(ctx, id), req)
			if err != nil {
				var cerr *connect.Error
				if errors.As(err, &cerr) {
					cerr.Meta().Set(TraceHeader, id)
				}
				return resp, err
			}
			resp.Header().Set(TraceHeader, id)
			return resp, nil
		}
	}
}
