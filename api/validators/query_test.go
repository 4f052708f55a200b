package validators

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgerrors "github.com/carzavenue/backend/pkg/errors"
)

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=10&bad=x&big=500", nil)

	got, err := ParseQueryInt(req, "limit", 25, 1, 100)
	if err != nil || got != 10 {
		t.Fatalf("expected 10, got %d (%v)", got, err)
	}
	got, err = ParseQueryInt(req, "missing", 25, 1, 100)
	if err != nil || got != 25 {
		t.Fatalf("expected default 25, got %d (%v)", got, err)
	}
	if _, err := ParseQueryInt(req, "bad", 25, 1, 100); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ParseQueryInt(req, "big", 25, 1, 100); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected range error, got %v", err)
	}
}

func TestParseQueryTime(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?from=2024-05-01T10:00:00%2B02:00&bad=yesterday", nil)

	got, err := ParseQueryTime(req, "from")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("expected %v in UTC, got %v", want, got)
	}

	missing, err := ParseQueryTime(req, "to")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing value, got %v (%v)", missing, err)
	}
	if _, err := ParseQueryTime(req, "bad"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
