package controllers

import (
	"context"
	"net/http"

	"github.com/carzavenue/backend/api/responses"
	"github.com/carzavenue/backend/api/validators"
	"github.com/carzavenue/backend/internal/ledger"
	"github.com/carzavenue/backend/pkg/db/models"
	"github.com/carzavenue/backend/pkg/enums"
	"github.com/carzavenue/backend/pkg/logger"
	"github.com/carzavenue/backend/pkg/outbox"
)

// PackageBiller charges listing owners for paid listing packages.
type PackageBiller interface {
	ChargeListingPackages(ctx context.Context, ownerID int64, listingID *int64, packages []enums.PackageType, fallback enums.PackageType, actor *outbox.ActorRef) (*models.LedgerEntry, error)
}

type packageChargeRequest struct {
	ListingID *int64   `json:"listingId" validate:"omitempty,gt=0"`
	Packages  []string `json:"packages" validate:"max=8,dive,oneof=ECONOM QUICK_FILTER"`
	Fallback  string   `json:"fallback" validate:"omitempty,oneof=ECONOM QUICK_FILTER"`
}

// AdminChargeListingPackages bills the listing owner for the listed packages.
// The idempotency key derives from the listing and package set, so saving the
// same listing twice charges once. Nothing to bill yields a null entry.
func AdminChargeListingPackages(svc PackageBiller, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ownerID, err := pathUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req packageChargeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		packages := make([]enums.PackageType, 0, len(req.Packages))
		for _, pkg := range req.Packages {
			packages = append(packages, enums.PackageType(pkg))
		}

		entry, err := svc.ChargeListingPackages(ctx, ownerID, req.ListingID, packages, enums.PackageType(req.Fallback), callerRef(r))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if entry == nil {
			responses.WriteSuccess(w, nil)
			return
		}
		responses.WriteSuccess(w, ledger.NewLedgerEntryView(*entry))
	}
}
