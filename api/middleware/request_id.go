package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/carzavenue/backend/api/responses"
	"github.com/carzavenue/backend/pkg/logger"
)

const (
	requestIDHeader = "X-Request-Id"
	// Request ids land in ledger entry metadata and outbox payloads; keep them bounded.
	maxRequestIDLength = 128
)

// RequestID accepts a caller-supplied X-Request-Id when it is short printable
// ASCII, otherwise mints a uuid. The id is echoed on the response, attached to
// log entries and carried in error envelopes.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if !validRequestID(reqID) {
				reqID = uuid.NewString()
			}

			w.Header().Set(requestIDHeader, reqID)

			ctx := responses.WithRequestID(r.Context(), reqID)
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
