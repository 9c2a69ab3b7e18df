package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// UploaderHeader carries the authenticated uploader id set by the fronting gateway.
const UploaderHeader = "X-Uploader-ID"

type contextKey string

const uploaderIDKey contextKey = "uploaderID"

// ContextWithUploaderID returns a new context that carries the authenticated uploader.
func ContextWithUploaderID(ctx context.Context, id int64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, uploaderIDKey, id)
}

// UploaderIDFromContext retrieves the authenticated uploader from the context, if any.
func UploaderIDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(uploaderIDKey).(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

// Uploader copies a valid UploaderHeader into the request context. Requests without it
// pass through unchanged.
func Uploader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(UploaderHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "invalid "+UploaderHeader, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUploaderID(r.Context(), id)))
	})
}
