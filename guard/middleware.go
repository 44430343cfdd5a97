package guard

import (
	"context"
	"net/http"

	"github.com/MrEthical07/civiclens/session"
)

type sessionContextKey struct{}

// SessionFromContext returns the session admitted by Middleware.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return s, ok && s != nil
}

// Middleware gates next on the current view of src. Requests arriving while the
// session initializes get 503 with Retry-After; anonymous requests are redirected to
// fallback with 303 See Other.
func Middleware(src interface{ View() session.View }, fallback string) func(http.Handler) http.Handler {
	if fallback == "" {
		fallback = DefaultFallback
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if src == nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}

			v := src.View()
			switch v.Phase {
			case session.PhaseAuthenticated:
				ctx := context.WithValue(r.Context(), sessionContextKey{}, v.Session)
				next.ServeHTTP(w, r.WithContext(ctx))
			case session.PhaseAnonymous:
				http.Redirect(w, r, fallback, http.StatusSeeOther)
			default:
				w.Header().Set("Retry-After", "1")
				http.Error(w, "session initializing", http.StatusServiceUnavailable)
			}
		})
	}
}
