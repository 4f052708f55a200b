package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeIdempotency, status: http.StatusConflict, publicMsg: "idempotency key reused", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeFollowsWrappedChain(t *testing.T) {
	inner := New(CodeStateConflict, "insufficient balance")
	wrapped := fmt.Errorf("charge package: %w", inner)
	if !IsCode(wrapped, CodeStateConflict) {
		t.Fatalf("expected wrapped error to carry state conflict code")
	}
	if IsCode(wrapped, CodeConflict) {
		t.Fatalf("unexpected conflict match")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(CodeDependency, "lock busy")) {
		t.Fatalf("dependency errors should be retryable")
	}
	if IsRetryable(New(CodeValidation, "bad amount")) {
		t.Fatalf("validation errors should not be retryable")
	}
	if IsRetryable(stdErrors.New("plain")) {
		t.Fatalf("untyped errors should not be retryable")
	}
}

func TestNewfFormatsMessage(t *testing.T) {
	err := Newf(CodeNotFound, "account %d/%s not found", 42, "USD")
	if err.Message() != "account 42/USD not found" {
		t.Fatalf("unexpected message %q", err.Message())
	}
}

func TestSQLStateReadsBothDrivers(t *testing.T) {
	pgxErr := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "ux_ledger_entries_idempotency_key"})
	if got := SQLState(pgxErr); got != "23505" {
		t.Fatalf("expected 23505 got %q", got)
	}
	if got := Constraint(pgxErr); got != "ux_ledger_entries_idempotency_key" {
		t.Fatalf("unexpected constraint %q", got)
	}

	pqErr := &pq.Error{Code: "55P03", Table: "accounts"}
	if got := SQLState(pqErr); got != "55P03" {
		t.Fatalf("expected 55P03 got %q", got)
	}
	if SQLState(stdErrors.New("plain")) != "" {
		t.Fatalf("plain errors have no sqlstate")
	}
}

func TestDumpIncludesChainAndDiagnostics(t *testing.T) {
	err := Wrap(CodeInternal, &pgconn.PgError{Code: "40001", TableName: "ledger_entries"}, "post entry")
	d := Dump(err)
	if d.Code != CodeInternal {
		t.Fatalf("unexpected code %s", d.Code)
	}
	if d.PGCode != "40001" || d.PGTable != "ledger_entries" {
		t.Fatalf("unexpected diagnostics %+v", d)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two chain links got %d", len(d.Chain))
	}
}

func TestDumpReportsColumnFromBothDrivers(t *testing.T) {
	pgxDump := Dump(Wrap(CodeInternal, &pgconn.PgError{Code: "23502", TableName: "ledger_entries", ColumnName: "amount"}, "post entry"))
	if pgxDump.PGColumn != "amount" {
		t.Fatalf("expected pgx column amount got %q", pgxDump.PGColumn)
	}

	pqDump := Dump(fmt.Errorf("update: %w", &pq.Error{Code: "23502", Table: "accounts", Column: "available_balance"}))
	if pqDump.PGColumn != "available_balance" || pqDump.PGTable != "accounts" {
		t.Fatalf("unexpected pq diagnostics %+v", pqDump)
	}

	if Dump(stdErrors.New("plain")).PGColumn != "" {
		t.Fatalf("plain errors carry no column")
	}
}
