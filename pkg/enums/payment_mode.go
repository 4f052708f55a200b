package enums

import (
	"fmt"
	"strings"
)

// PaymentMode selects which gateway key set is active.
type PaymentMode string

const (
	PaymentModeTest PaymentMode = "TEST"
	PaymentModeLive PaymentMode = "LIVE"
)

// IsValid reports whether the mode is recognized.
func (m PaymentMode) IsValid() bool {
	return m == PaymentModeTest || m == PaymentModeLive
}

// ParsePaymentMode converts raw input into PaymentMode. Matching is case-insensitive.
func ParsePaymentMode(value string) (PaymentMode, error) {
	mode := PaymentMode(strings.ToUpper(strings.TrimSpace(value)))
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid payment mode %q", value)
	}
	return mode, nil
}
