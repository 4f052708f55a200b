package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/carzavenue/backend/pkg/db/models"
	"github.com/carzavenue/backend/pkg/enums"
	"github.com/carzavenue/backend/pkg/outbox"
)

type stubBiller struct {
	owner    int64
	listing  *int64
	packages []enums.PackageType
	fallback enums.PackageType
	entry    *models.LedgerEntry
}

func (s *stubBiller) ChargeListingPackages(_ context.Context, ownerID int64, listingID *int64, packages []enums.PackageType, fallback enums.PackageType, _ *outbox.ActorRef) (*models.LedgerEntry, error) {
	s.owner = ownerID
	s.listing = listingID
	s.packages = packages
	s.fallback = fallback
	return s.entry, nil
}

func TestAdminChargeListingPackagesForwardsPackages(t *testing.T) {
	svc := &stubBiller{entry: &models.LedgerEntry{ID: uuid.New(), IdempotencyKey: "100:packages:2:403629155"}}
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/users/42/package-charges", strings.NewReader(`{"listingId":100,"packages":["QUICK_FILTER","ECONOM"]}`))
	req = withUserParam(req, "42")
	resp := httptest.NewRecorder()
	AdminChargeListingPackages(svc, nil)(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.owner != 42 || svc.listing == nil || *svc.listing != 100 {
		t.Fatalf("unexpected owner/listing %d/%v", svc.owner, svc.listing)
	}
	if len(svc.packages) != 2 || svc.packages[0] != enums.PackageTypeQuickFilter {
		t.Fatalf("unexpected packages %v", svc.packages)
	}
}

func TestAdminChargeListingPackagesRejectsUnknownPackage(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/users/42/package-charges", strings.NewReader(`{"packages":["VIP"]}`))
	req = withUserParam(req, "42")
	resp := httptest.NewRecorder()
	AdminChargeListingPackages(&stubBiller{}, nil)(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminChargeListingPackagesNothingToBill(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/users/42/package-charges", strings.NewReader(`{"packages":[]}`))
	req = withUserParam(req, "42")
	resp := httptest.NewRecorder()
	AdminChargeListingPackages(&stubBiller{}, nil)(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data any `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data != nil {
		t.Fatalf("expected null data, got %v", envelope.Data)
	}
}
