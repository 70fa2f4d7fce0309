package models

import "time"

// SessionState is the liveness state of one provider channel.
type SessionState string

const (
	SessionLoggedOut     SessionState = "logged_out"
	SessionAwaitingLogin SessionState = "awaiting_login"
	SessionReady         SessionState = "ready"
	SessionExpired       SessionState = "expired"
)

// Usable reports whether a dispatch may be attempted in this state.
func (s SessionState) Usable() bool {
	return s == SessionReady
}

// ProviderSession tracks the last observed liveness of one provider.
// Mutated by the session registry as probes run; read by the
// orchestrator before dispatch.
type ProviderSession struct {
	ProviderID  string       `json:"provider_id"`
	State       SessionState `json:"state"`
	LastChecked time.Time    `json:"last_checked"`
	Detail      string       `json:"detail,omitempty"`
}
