package enums

import "fmt"

// LedgerEntryType classifies the business reason behind a ledger entry.
type LedgerEntryType string

const (
	LedgerEntryTypePackageCharge LedgerEntryType = "PACKAGE_CHARGE"
	LedgerEntryTypeTopUp         LedgerEntryType = "TOPUP"
	LedgerEntryTypeRefund        LedgerEntryType = "REFUND"
	LedgerEntryTypeAdjustment    LedgerEntryType = "ADJUSTMENT"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryTypePackageCharge,
	LedgerEntryTypeTopUp,
	LedgerEntryTypeRefund,
	LedgerEntryTypeAdjustment,
}

// String implements fmt.Stringer.
func (t LedgerEntryType) String() string {
	return string(t)
}

// IsValid reports whether the value matches a known entry type.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}
