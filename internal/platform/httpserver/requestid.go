package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation id on requests and responses.
const RequestIDHeader = "X-Request-Id"

// Inbound ids longer than this are treated as absent so a hostile
// client cannot stuff arbitrary blobs into logs.
const maxRequestIDLen = 128

type ctxKeyRequestID struct{}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return v
}

// RequestIDMiddleware reuses a sane inbound X-Request-Id or mints a
// fresh UUID, echoes it on the response, and stores it in the context.
func RequestIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := sanitizeRequestID(r.Header.Get(RequestIDHeader))
			if rid == "" {
				rid = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, rid)
			ctx := context.WithValue(r.Context(), ctxKeyRequestID{}, rid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sanitizeRequestID returns the trimmed id, or "" when it is too long
// or contains anything outside printable ASCII.
func sanitizeRequestID(rid string) string {
	rid = strings.TrimSpace(rid)
	if len(rid) > maxRequestIDLen {
		return ""
	}
	for _, c := range rid {
		if c < '!' || c > '~' {
			return ""
		}
	}
	return rid
}
