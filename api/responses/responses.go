package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/carzavenue/backend/pkg/errors"
	"github.com/carzavenue/backend/pkg/logger"
	"github.com/carzavenue/backend/pkg/types"
)

// busyRetryAfter is sent with 503s raised when a ledger account stayed locked
// through every in-process retry. Clients retry with the same idempotency key.
const busyRetryAfter = "1"

type requestIDKey struct{}

// WithRequestID stores the request id so error envelopes can echo it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError renders err as an error envelope. Caller-facing codes keep their
// message; everything else gets the public message for its code. 4xx are
// logged at warn, 5xx at error with postgres diagnostics.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	code := typed.Code()
	meta := pkgerrors.MetadataFor(code)

	msg := meta.PublicMessage
	if callerFacing(code) && typed.Message() != "" {
		msg = typed.Message()
	}

	payload := types.ErrorEnvelope{
		Error: types.APIError{
			Code:      string(code),
			Message:   msg,
			RequestID: RequestIDFromContext(ctx),
		},
	}
	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Error.Details = details
		}
	}

	if code == pkgerrors.CodeDependency {
		w.Header().Set("Retry-After", busyRetryAfter)
	}

	if logg != nil {
		logError(ctx, logg, meta.HTTPStatus, typed, err)
	}

	writeJSON(w, meta.HTTPStatus, payload)
}

func callerFacing(code pkgerrors.Code) bool {
	switch code {
	case pkgerrors.CodeValidation,
		pkgerrors.CodeForbidden,
		pkgerrors.CodeUnauthorized,
		pkgerrors.CodeNotFound,
		pkgerrors.CodeConflict,
		pkgerrors.CodeStateConflict,
		pkgerrors.CodeIdempotency,
		pkgerrors.CodeDependency:
		return true
	}
	return false
}

func logError(ctx context.Context, logg *logger.Logger, status int, typed *pkgerrors.Error, err error) {
	dump := pkgerrors.Dump(err)
	fields := map[string]any{
		"status":      status,
		"error":       dump.TopMessage,
		"error_code":  dump.Code,
		"error_chain": dump.Chain,
	}
	if dump.PGCode != "" {
		fields["pg_code"] = dump.PGCode
		fields["pg_detail"] = dump.PGDetail
		fields["pg_message"] = dump.PGMessage
		fields["pg_table"] = dump.PGTable
		fields["pg_column"] = dump.PGColumn
		fields["pg_constraint"] = dump.PGConstraint
	}
	if dm, ok := typed.Details().(map[string]any); ok {
		// Lock retries and overdraft figures are the useful bits on ledger errors.
		for _, key := range []string{"attempts", "available", "requested"} {
			if v, ok := dm[key]; ok {
				fields[key] = v
			}
		}
	}

	ctx = logg.WithFields(ctx, fields)
	if status < http.StatusInternalServerError {
		logg.Warn(ctx, "request.rejected")
		return
	}
	logg.Error(ctx, "request.error", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
