package identity

import (
	"context"
	"net/mail"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const defaultMaxFailures = 5

type account struct {
	uid         string
	email       string
	displayName string
	credential  string
	failures    int
}

// MemoryProvider is an in-process Provider and Authenticator backed by an argon2id
// credential table. Subscribers receive the current state immediately and every later
// change in order, each on its own goroutine.
type MemoryProvider struct {
	mu          sync.Mutex
	params      HashParams
	maxFailures int
	accounts    map[string]*account
	current     *Identity
	failNext    *ProviderError
	subs        fanout
}

// MemoryOption configures a MemoryProvider.
type MemoryOption func(*MemoryProvider)

// WithHashParams overrides the credential hashing parameters.
func WithHashParams(p HashParams) MemoryOption {
	return func(m *MemoryProvider) { m.params = p }
}

// WithMaxFailures sets how many consecutive wrong passwords lock an account. Zero
// disables locking.
func WithMaxFailures(n int) MemoryOption {
	return func(m *MemoryProvider) { m.maxFailures = n }
}

// NewMemoryProvider returns an empty provider with nobody signed in.
func NewMemoryProvider(opts ...MemoryOption) (*MemoryProvider, error) {
	m := &MemoryProvider{
		params:      DefaultHashParams(),
		maxFailures: defaultMaxFailures,
		accounts:    make(map[string]*account),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.params.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Subscribe implements Provider.
func (m *MemoryProvider) Subscribe(fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs.add(fn, m.current, true)
}

// Current returns the signed-in identity, or nil.
func (m *MemoryProvider) Current() *Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

// Subscribers reports the number of live subscriptions.
func (m *MemoryProvider) Subscribers() int {
	return m.subs.len()
}

// SetIdentity replaces the current state without credentials and notifies subscribers.
func (m *MemoryProvider) SetIdentity(id *Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(id.Clone())
}

// FailNext makes the next SignIn or SignUp fail with code.
func (m *MemoryProvider) FailNext(code Code) {
	m.mu.Lock()
	m.failNext = NewProviderError(code)
	m.mu.Unlock()
}

// SignUp implements Authenticator. The new account is signed in.
func (m *MemoryProvider) SignUp(ctx context.Context, email, password, displayName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email = normalizeEmail(email)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if !validEmail(email) {
		return NewProviderError(CodeInvalidEmail)
	}
	if len(password) < minPasswordLen {
		return NewProviderError(CodeWeakPassword)
	}
	if _, exists := m.accounts[email]; exists {
		return NewProviderError(CodeEmailInUse)
	}

	credential, err := hashPassword(m.params, password)
	if err != nil {
		return &ProviderError{Code: CodeInternal, Err: err}
	}
	acct := &account{
		uid:         uuid.NewString(),
		email:       email,
		displayName: strings.TrimSpace(displayName),
		credential:  credential,
	}
	m.accounts[email] = acct
	m.setLocked(acct.identity())
	return nil
}

// SignIn implements Authenticator.
func (m *MemoryProvider) SignIn(ctx context.Context, email, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email = normalizeEmail(email)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if !validEmail(email) {
		return NewProviderError(CodeInvalidEmail)
	}
	acct, ok := m.accounts[email]
	if !ok {
		return NewProviderError(CodeUserNotFound)
	}
	if m.maxFailures > 0 && acct.failures >= m.maxFailures {
		return NewProviderError(CodeTooManyRequests)
	}

	match, err := verifyPassword(password, acct.credential)
	if err != nil {
		return &ProviderError{Code: CodeInternal, Err: err}
	}
	if !match {
		acct.failures++
		return NewProviderError(CodeWrongPassword)
	}
	acct.failures = 0
	m.setLocked(acct.identity())
	return nil
}

// SignOut implements Authenticator.
func (m *MemoryProvider) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(nil)
	return nil
}

// Close drops every subscription.
func (m *MemoryProvider) Close() {
	m.subs.closeAll()
}

func (m *MemoryProvider) setLocked(id *Identity) {
	m.current = id
	m.subs.broadcast(id)
}

func (m *MemoryProvider) takeFailure() error {
	if m.failNext == nil {
		return nil
	}
	err := m.failNext
	m.failNext = nil
	return err
}

func (a *account) identity() *Identity {
	return &Identity{UID: a.uid, Email: a.email, DisplayName: a.displayName}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
