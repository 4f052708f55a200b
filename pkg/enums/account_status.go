package enums

import "fmt"

// AccountStatus represents the lifecycle state of a balance account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
)

var validAccountStatuses = []AccountStatus{
	AccountStatusActive,
	AccountStatusSuspended,
}

// IsValid reports whether the status is recognized.
func (s AccountStatus) IsValid() bool {
	for _, candidate := range validAccountStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAccountStatus converts raw input into AccountStatus.
func ParseAccountStatus(value string) (AccountStatus, error) {
	for _, candidate := range validAccountStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid account status %q", value)
}
