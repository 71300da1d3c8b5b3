package shared

import "fmt"

var (
	// Provider-side throttling: the upstream rejected the call. Retryable.
	ErrRateLimited = fmt.Errorf("provider rate limited")

	// Local admission control gave up before a token became available.
	// Distinct from ErrRateLimited so callers can tell local exhaustion
	// from upstream throttling.
	ErrAdmissionDeadline = fmt.Errorf("rate limit admission deadline exceeded")

	// Terminal per provider: the issue does not exist there. Never retried.
	ErrNotFound = fmt.Errorf("issue not found")

	// Transient upstream failures.
	ErrUnavailable = fmt.Errorf("provider unavailable")
	ErrTimeout     = fmt.Errorf("provider call timed out")

	// Every configured provider failed for one fetch.
	ErrAllProvidersUnavailable = fmt.Errorf("all providers unavailable")

	// Data-integrity violations. Never absorbed, always surfaced.
	ErrDuplicateKey      = fmt.Errorf("duplicate key")
	ErrInvalidTransition = fmt.Errorf("invalid ownership transition")

	// Lookup misses on the collection graph.
	ErrSeriesNotFound = fmt.Errorf("series not found")
	ErrIssueNotFound  = fmt.Errorf("issue not known")
)
