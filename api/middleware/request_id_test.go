package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carzavenue/backend/api/responses"
	pkgerrors "github.com/carzavenue/backend/pkg/errors"
	"github.com/carzavenue/backend/pkg/types"
)

func TestRequestIDEchoedIntoErrorEnvelope(t *testing.T) {
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient funds"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ledger/charges", nil)
	req.Header.Set(requestIDHeader, "charge-req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "charge-req-42", rec.Header().Get(requestIDHeader))
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "charge-req-42", body.Error.RequestID)
}

func TestRequestIDReplacesUnusableHeader(t *testing.T) {
	cases := map[string]string{
		"too long":      strings.Repeat("a", maxRequestIDLength+1),
		"control chars": "abc\x00def",
		"whitespace":    "req 1",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var seen string
			handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = responses.RequestIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
			req.Header[requestIDHeader] = []string{raw}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.NotEqual(t, raw, seen)
			assert.Len(t, seen, 36)
			assert.Equal(t, seen, rec.Header().Get(requestIDHeader))
		})
	}
}
