package middleware

import (
	"mime"
	"net/http"

	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
)

// HTTPHardening refuses PUT and DELETE outright and requires POST bodies to
// be declared as application/json.
func HTTPHardening() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPut, http.MethodDelete:
				w.Header().Set("Allow", "GET, POST, OPTIONS")
				pkghttp.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
				return
			case http.MethodPost:
				mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
				if err != nil || mediaType != "application/json" {
					pkghttp.WriteError(w, http.StatusUnsupportedMediaType, "unsupported_media_type",
						"Unsupported Media Type. Must be application/json")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
