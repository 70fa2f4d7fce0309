package versioning

import (
	"net/http"
)

// Response headers
const (
	VersionHeader   = "X-Chatbridge-Version"
	GoVersionHeader = "X-Go-Version"
)

// VersionHeaderMiddleware stamps the running build's version on every response
func VersionHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(VersionHeader, CurrentVersion.String())
		next.ServeHTTP(w, r)
	})
}
