package grpc

import (
	"context"
	"net"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/ratelimit"
)

// RetryAfterHeader carries whole seconds until the client may retry.
const RetryAfterHeader = "retry-after"

// Limiter decides whether a client may start another run.
// *ratelimit.Limiter satisfies it.
type Limiter interface {
	Allow(client string) ratelimit.Result
}

// RateLimitInterceptor rejects Execute calls once a client exceeds its
// window. Other methods, health checks included, pass through.
func RateLimitInterceptor(limiter Limiter, logger Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if info.FullMethod != ExecuteMethod {
			return handler(ctx, req)
		}

		client := clientKey(ctx)
		res := limiter.Allow(client)
		if res.Allowed {
			return handler(ctx, req)
		}

		retrySeconds := int(res.RetryAfter.Seconds() + 0.999)
		logger.Warn("grpc_rate_limited",
			"client", client,
			"window", res.Window,
			"current", res.Current,
			"limit", res.Limit,
			"retry_after_s", retrySeconds,
		)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RetryAfterHeader, strconv.Itoa(retrySeconds)))
		return nil, ResourceExhausted(res.Window, res.Limit)
	}
}

// clientKey identifies the caller by peer host, so reconnecting from a new
// port does not reset the window.
func clientKey(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
