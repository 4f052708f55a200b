package enums

// LedgerEntryStatus tracks whether an entry counts toward the balance.
type LedgerEntryStatus string

const (
	LedgerEntryStatusPosted LedgerEntryStatus = "POSTED"
)

// IsValid reports whether the status is recognized.
func (s LedgerEntryStatus) IsValid() bool {
	return s == LedgerEntryStatusPosted
}
