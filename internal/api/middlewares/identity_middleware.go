package middleware

import (
	"context"
	"net/http"
)

// Identity headers set by the authenticating proxy, in order of preference.
var identityHeaders = []string{"X-Auth-Request-Email", "User-Email"}

type identityKey struct{}

// Identity attaches the caller's raw identity header to the request context.
// A header that is present but empty is kept as an empty string so that it is
// rejected later instead of treated as a local development request.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, name := range identityHeaders {
			if values, ok := r.Header[http.CanonicalHeaderKey(name)]; ok {
				raw := ""
				if len(values) > 0 {
					raw = values[0]
				}
				r = r.WithContext(WithIdentity(r.Context(), &raw))
				break
			}
		}
		next.ServeHTTP(w, r)
	})
}

func WithIdentity(ctx context.Context, raw *string) context.Context {
	return context.WithValue(ctx, identityKey{}, raw)
}

// IdentityFrom returns the raw identity header, or nil when none was sent.
func IdentityFrom(ctx context.Context) *string {
	raw, _ := ctx.Value(identityKey{}).(*string)
	return raw
}
