package enums

// OutboxDLQErrorReason records why a ledger event left the publish loop.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// No publisher is wired for the event's topic; replaying needs a config change.
	OutboxDLQReasonUnroutable OutboxDLQErrorReason = "unroutable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable, OutboxDLQReasonUnroutable:
		return true
	}
	return false
}

// Replayable reports whether re-enqueueing the event without operator changes
// could succeed.
func (r OutboxDLQErrorReason) Replayable() bool {
	return r == OutboxDLQReasonMaxAttempts
}
