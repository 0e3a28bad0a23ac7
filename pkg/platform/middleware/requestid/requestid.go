// Package requestid assigns every inbound request a correlation id.
package requestid

import (
	"net/http"
	"strings"

	"propertyvet/pkg/requestcontext"

	"github.com/google/uuid"
)

// Header is both read (when a gateway already assigned an id) and echoed back.
const Header = "X-Request-ID"

const maxLen = 128

// Middleware reuses a caller-supplied X-Request-ID when it is sane, otherwise
// generates a UUID, and stores the id in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(Header))
		if id == "" || len(id) > maxLen {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}
