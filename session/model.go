package session

import (
	"encoding/json"

	"github.com/MrEthical07/civiclens/identity"
)

// Session is the signed-in user as last reported by the identity provider. Values are
// replaced, never mutated, so a *Session obtained from a View may be shared.
type Session struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// FromIdentity converts a provider identity. A nil identity yields nil.
func FromIdentity(id *identity.Identity) *Session {
	if id == nil {
		return nil
	}
	return &Session{UID: id.UID, Email: id.Email, DisplayName: id.DisplayName}
}

// Label returns the display name, falling back to the email.
func (s *Session) Label() string {
	if s == nil {
		return ""
	}
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Email
}

// Phase is the manager's state.
type Phase uint8

const (
	PhaseInitializing Phase = iota
	PhaseAuthenticated
	PhaseAnonymous
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// View is the observable session state.
type View struct {
	Session *Session
	// Loading is true until the provider's first notification and never again after.
	Loading bool
	Phase   Phase
	// Transition counts phase changes since initialization.
	Transition uint64
	// Notice is the user-facing message for the last provider error, cleared on the
	// next phase change.
	Notice string
}

// Authenticated reports whether a session is present.
func (v View) Authenticated() bool {
	return v.Phase == PhaseAuthenticated
}

func initialView() View {
	return View{Loading: true, Phase: PhaseInitializing}
}

// Persisted keys.
const (
	KeyAuthUser        = "authUser"
	KeyUserEmail       = "@user_email"
	KeyUserDisplayName = "@user_displayName"
)

// Snapshot is the persisted hint of the last signed-in user.
type Snapshot struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// SnapshotOf returns the snapshot for s.
func SnapshotOf(s *Session) Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return Snapshot{Email: s.Email, DisplayName: s.DisplayName}
}

func (s Snapshot) encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
