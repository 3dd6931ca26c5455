package domain

import "time"

// CredentialState enumerates a Credential's load-balancing state.
type CredentialState string

const (
	CredentialAvailable   CredentialState = "available"
	CredentialCoolingDown CredentialState = "cooling_down"
)

// Credential is an opaque secret granting access to one logical quota on
// the Analysis Service.
type Credential struct {
	ID            string
	Secret        string
	State         CredentialState
	InFlight      int
	LastUsedAt    time.Time
	CooldownUntil time.Time
	ErrorCount    int
}

// PoolStatus summarizes the Credential Pool for progress reporting.
type PoolStatus struct {
	Total        int
	Available    int
	CoolingDown  int
	InFlightSum  int
	MaxConcurrency int
}
