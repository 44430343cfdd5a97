// Package identity defines the identity-provider collaborator consumed by the session
// manager, along with two implementations: an in-process provider used for development
// and tests, and an adapter over a WebSocket push stream.
//
// Providers push state; they are never polled. A listener registered with Subscribe is
// called once with the current state and again on every change, in order.
package identity

import "context"

// Identity is the user reported by a provider.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Clone returns a copy of i, or nil.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// Listener receives identity state. A nil identity means signed out.
type Listener func(*Identity)

// Provider pushes identity state changes to subscribers.
type Provider interface {
	// Subscribe registers fn and returns a function that removes it. The returned
	// function is safe to call more than once.
	Subscribe(fn Listener) (unsubscribe func())
}

// Authenticator is implemented by providers that accept credentials. Results are
// observed through Subscribe, not through the return value.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password, displayName string) error
	SignOut(ctx context.Context) error
}
