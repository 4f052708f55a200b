package enums

import "fmt"

// LedgerDirection carries the sign of a ledger entry amount.
type LedgerDirection string

const (
	// LedgerDirectionDebit reduces the available balance.
	LedgerDirectionDebit LedgerDirection = "DEBIT"
	// LedgerDirectionCredit increases the available balance.
	LedgerDirectionCredit LedgerDirection = "CREDIT"
)

var validLedgerDirections = []LedgerDirection{
	LedgerDirectionDebit,
	LedgerDirectionCredit,
}

// String implements fmt.Stringer.
func (d LedgerDirection) String() string {
	return string(d)
}

// IsValid reports whether the direction is recognized.
func (d LedgerDirection) IsValid() bool {
	for _, candidate := range validLedgerDirections {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseLedgerDirection converts raw input into LedgerDirection.
func ParseLedgerDirection(value string) (LedgerDirection, error) {
	for _, candidate := range validLedgerDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger direction %q", value)
}
