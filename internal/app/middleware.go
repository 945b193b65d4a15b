package app

import (
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/campfirelabs/campfire/internal/platform/errors"
	"github.com/campfirelabs/campfire/internal/platform/httpjson"
	"github.com/campfirelabs/campfire/internal/platform/ratelimit"
	"github.com/campfirelabs/campfire/internal/platform/requestctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const rateLimitWindow = time.Hour

// tokenVerifier validates an access token and returns its identity.
type tokenVerifier interface {
	VerifyAccessToken(token string) (string, error)
}

// withTracing opens a server span around each request. Spans go to the
// globally registered tracer provider, so they stay no-ops until tracing
// setup installs one.
func withTracing(next http.Handler) http.Handler {
	tracer := otel.Tracer("github.com/campfirelabs/campfire/internal/app")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), endpointKey(r),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			),
		)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withSessionIdentity resolves a Bearer access token into the request
// context. Requests without a token pass through unauthenticated; handlers
// that need an identity reject them individually.
func withSessionIdentity(verifier tokenVerifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			identity, err := verifier.VerifyAccessToken(strings.TrimSpace(token))
			if err != nil {
				httpjson.WriteError(w, apperrors.New(apperrors.CodeAuthCredentialDenied, "session token is not valid"))
				return
			}
			r = r.WithContext(requestctx.WithIdentity(r.Context(), identity))
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit charges every mutating request against two quota subjects:
// the authenticated identity when present and the network origin always. A
// limit of zero disables the middleware.
func withRateLimit(limiter ratelimit.Limiter, limitPerHour int, next http.Handler) http.Handler {
	if limitPerHour <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		endpoint := endpointKey(r)
		subjects := []string{"origin:" + originHost(r)}
		if identity := requestctx.IdentityFromContext(r.Context()); identity != "" {
			subjects = append(subjects, "identity:"+identity)
		}

		for _, subject := range subjects {
			decision, err := limiter.Allow(r.Context(), endpoint, subject, limitPerHour, rateLimitWindow)
			if err != nil {
				// Fail open: quota accounting must not take the API down.
				log.Printf("rate limit check: %v", err)
				continue
			}
			if !decision.Allowed {
				seconds := int(decision.RetryAfter / time.Second)
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				httpjson.WriteError(w, apperrors.WithMetadata(
					apperrors.CodeRateLimited,
					"too many requests, slow down",
					map[string]string{"RetryAfterSeconds": strconv.Itoa(seconds)},
				))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// endpointKey buckets requests by method and top-level resource so record
// IDs in the path do not splinter the quota.
func endpointKey(r *http.Request) string {
	segments := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 3)
	resource := segments[0]
	if len(segments) > 1 {
		resource += "/" + segments[1]
	}
	return r.Method + " /" + resource
}

func originHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
