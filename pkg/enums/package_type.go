package enums

import "fmt"

// PackageType identifies a paid listing feature.
type PackageType string

const (
	// PackageTypeEconom is the default package a listing carries when the
	// seller picks nothing else. It is billed like any other package.
	PackageTypeEconom      PackageType = "ECONOM"
	PackageTypeQuickFilter PackageType = "QUICK_FILTER"
)

var validPackageTypes = []PackageType{
	PackageTypeEconom,
	PackageTypeQuickFilter,
}

// IsValid reports whether the package type is recognized.
func (p PackageType) IsValid() bool {
	for _, candidate := range validPackageTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePackageType converts raw input into PackageType.
func ParsePackageType(value string) (PackageType, error) {
	for _, candidate := range validPackageTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid package type %q", value)
}
