package models

// Identity is an authenticated user as reported by the identity provider.
type Identity struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	IDToken      string `json:"-"`
	RefreshToken string `json:"-"`
}

// SessionState enumerates the two states a session can be in.
type SessionState string

const (
	SessionSignedOut SessionState = "signedOut"
	SessionSignedIn  SessionState = "signedIn"
)

// SessionEvent reports a session transition. Identity is set only when State
// is SessionSignedIn.
type SessionEvent struct {
	State    SessionState
	Identity *Identity
}

// SignedIn reports whether the event carries an identity.
func (e SessionEvent) SignedIn() bool {
	return e.State == SessionSignedIn && e.Identity != nil
}
