package ledger

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/shopspring/decimal"

	"github.com/carzavenue/backend/pkg/config"
	"github.com/carzavenue/backend/pkg/db/models"
	"github.com/carzavenue/backend/pkg/enums"
	pkgerrors "github.com/carzavenue/backend/pkg/errors"
	"github.com/carzavenue/backend/pkg/outbox"
)

const (
	packageKeyMaxLength = 64

	listingReferenceType     = "listing"
	packageFallbackReference = "package"
)

// PackageCharger bills listing owners for the paid package types attached to a listing.
type PackageCharger struct {
	ledger    Service
	unitPrice decimal.Decimal
}

// NewPackageCharger wires the listing package flow onto the ledger engine.
func NewPackageCharger(ledger Service, cfg config.LedgerConfig) (*PackageCharger, error) {
	if ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger service is required")
	}
	if !cfg.PackageUnitPrice.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "package unit price must be positive")
	}
	return &PackageCharger{ledger: ledger, unitPrice: cfg.PackageUnitPrice}, nil
}

// ChargeListingPackages charges ownerID unit price × package count in the
// default currency. Saving the same listing with the same packages again is a
// replay of the first charge. It returns nil when there is nothing to bill.
func (c *PackageCharger) ChargeListingPackages(ctx context.Context, ownerID int64, listingID *int64, packages []enums.PackageType, fallback enums.PackageType, actor *outbox.ActorRef) (*models.LedgerEntry, error) {
	resolved := ResolvePackageTypes(packages, fallback)
	if len(resolved) == 0 {
		return nil, nil
	}

	referenceID := packageFallbackReference
	if listingID != nil {
		referenceID = strconv.FormatInt(*listingID, 10)
	}

	total := c.unitPrice.Mul(decimal.NewFromInt(int64(len(resolved))))
	return c.ledger.ChargePackage(ctx, PostEntryInput{
		UserID:         ownerID,
		Currency:       c.ledger.NormalizeCurrency(""),
		Amount:         total,
		ReferenceType:  listingReferenceType,
		ReferenceID:    referenceID,
		IdempotencyKey: PackageIdempotencyKey(referenceID, resolved),
		Actor:          actor,
	})
}

// ResolvePackageTypes drops blanks and duplicates, keeping first-seen order.
// An empty result falls back to the single fallback type when one is given.
func ResolvePackageTypes(packages []enums.PackageType, fallback enums.PackageType) []enums.PackageType {
	seen := make(map[enums.PackageType]struct{}, len(packages))
	resolved := make([]enums.PackageType, 0, len(packages))
	for _, pkg := range packages {
		if pkg == "" {
			continue
		}
		if _, ok := seen[pkg]; ok {
			continue
		}
		seen[pkg] = struct{}{}
		resolved = append(resolved, pkg)
	}
	if len(resolved) > 0 {
		return resolved
	}
	if fallback != "" {
		return []enums.PackageType{fallback}
	}
	return nil
}

// PackageIdempotencyKey derives the charge key for a set of packages:
// "<referenceID>:packages:<count>:<abs(hash)>" cut to 64 characters. The hash
// is the 32-bit polynomial string hash (h = 31*h + c over UTF-16 units) of the
// sorted names joined with ".", so keys written by the legacy listing service
// stay stable.
func PackageIdempotencyKey(referenceID string, packages []enums.PackageType) string {
	names := make([]string, 0, len(packages))
	for _, pkg := range packages {
		names = append(names, string(pkg))
	}
	sort.Strings(names)

	joined := strings.Join(names, ".")
	if joined == "" {
		joined = "packages"
	}

	hash := stringHash32(joined)
	if hash < 0 {
		// -MinInt32 overflows back to MinInt32, matching the legacy abs.
		hash = -hash
	}

	key := referenceID + ":packages:" + strconv.Itoa(len(packages)) + ":" + strconv.FormatInt(int64(hash), 10)
	if len(key) > packageKeyMaxLength {
		key = key[:packageKeyMaxLength]
	}
	return key
}

func stringHash32(value string) int32 {
	var h int32
	for _, unit := range utf16.Encode([]rune(value)) {
		h = 31*h + int32(unit)
	}
	return h
}
