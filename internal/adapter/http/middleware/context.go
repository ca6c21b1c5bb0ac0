package middleware

import (
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/iho/saleledger/internal/domain"
)

const (
	// ActorHeader names the operator performing the request.
	ActorHeader = "X-Actor-ID"
	// RequestIDHeader echoes the request ID back to the caller.
	RequestIDHeader = "X-Request-ID"
)

// RequestContext copies the chi request ID and the acting operator into the
// request context, where use cases and audit entries pick them up. It must
// run after chi's RequestID middleware.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if id := chimiddleware.GetReqID(ctx); id != "" {
			ctx = domain.WithRequestID(ctx, id)
			w.Header().Set(RequestIDHeader, id)
		}

		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			ctx = domain.WithActor(ctx, actor)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
