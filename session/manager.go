package session

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/MrEthical07/civiclens/identity"
	"github.com/MrEthical07/civiclens/internal/logging"
	"github.com/MrEthical07/civiclens/kvstore"
)

// Hooks observe manager activity. They run on the goroutine applying updates, in apply
// order, and must not block.
type Hooks struct {
	// OnTransition is called when the phase changes.
	OnTransition func(prev, next View)
	// OnProviderError is called with each reported provider error and the notice
	// derived from it.
	OnProviderError func(err error, notice string)
}

// Option configures a Manager.
type Option func(*Manager)

// WithSnapshotWriter persists a snapshot whenever a session is present.
func WithSnapshotWriter(w *SnapshotWriter) Option {
	return func(m *Manager) { m.writer = w }
}

// WithHintStore sets the store PeekHint reads from.
func WithHintStore(s kvstore.Store) Option {
	return func(m *Manager) { m.hints = s }
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = logging.OrDiscard(l) }
}

// WithHooks installs observation hooks.
func WithHooks(h Hooks) Option {
	return func(m *Manager) { m.hooks = h }
}

// Manager is the single owner of session state. See the package documentation for the
// ordering guarantees.
type Manager struct {
	provider identity.Provider
	writer   *SnapshotWriter
	hints    kvstore.Store
	log      *slog.Logger
	hooks    Hooks

	mu          sync.Mutex
	view        View
	ready       chan struct{}
	queue       []func()
	draining    bool
	listeners   map[uint64]func(View)
	nextID      uint64
	initialized bool
	disposed    bool
}

// NewManager returns a manager in the Initializing phase. Nothing happens until
// Initialize is called.
func NewManager(provider identity.Provider, opts ...Option) *Manager {
	m := &Manager{
		provider:  provider,
		log:       logging.Discard(),
		view:      initialView(),
		ready:     make(chan struct{}),
		listeners: make(map[uint64]func(View)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize subscribes to the identity provider. It may be called once per manager;
// later calls return ErrAlreadyInitialized. The returned function unsubscribes and is
// idempotent. Notifications still in flight after it returns are ignored.
func (m *Manager) Initialize() (func(), error) {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil, ErrAlreadyInitialized
	}
	m.initialized = true
	m.mu.Unlock()

	unsubscribe := m.provider.Subscribe(m.receive)
	m.log.Debug("session.subscribed")

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.disposed = true
			m.mu.Unlock()
			unsubscribe()
			m.log.Debug("session.unsubscribed")
		})
	}, nil
}

// View returns the current state.
func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

// Watch registers fn to receive every new View in apply order, starting with the
// current one. It returns a function that removes fn.
func (m *Manager) Watch(fn func(View)) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	m.mu.Unlock()

	m.enqueue(func() {
		m.mu.Lock()
		_, live := m.listeners[id]
		v := m.view
		m.mu.Unlock()
		if live {
			fn(v)
		}
	})

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// WaitReady blocks until the first provider notification has been applied.
func (m *Manager) WaitReady(ctx context.Context) (View, error) {
	select {
	case <-m.ready:
		return m.View(), nil
	case <-ctx.Done():
		return m.View(), ctx.Err()
	}
}

// PeekHint reads the persisted snapshot. Read failures are logged and reported as no
// hint.
func (m *Manager) PeekHint(ctx context.Context) (*Snapshot, bool) {
	if m.hints == nil {
		return nil, false
	}
	s, ok, err := ReadSnapshot(ctx, m.hints)
	if err != nil {
		m.log.Warn("snapshot.read.fail", "err", err)
		return nil, false
	}
	return s, ok
}

// ReportProviderError records the friendly message for err as the view's notice.
func (m *Manager) ReportProviderError(err error) {
	if err == nil {
		return
	}
	notice := identity.FriendlyMessage(err, identity.OpStream)
	m.enqueue(func() {
		m.mu.Lock()
		next := m.view
		next.Notice = notice
		m.view = next
		m.mu.Unlock()

		m.log.Warn("session.provider.error", "err", err)
		if m.hooks.OnProviderError != nil {
			m.hooks.OnProviderError(err, notice)
		}
		m.notify(next)
	})
}

// SignIn forwards credentials to the provider. The resulting session arrives through
// the subscription. Failures are returned as *identity.FriendlyError.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return identity.Friendly(identity.ErrMissingInput, identity.OpSignIn)
	}
	auth, err := m.authenticator()
	if err != nil {
		return identity.Friendly(err, identity.OpSignIn)
	}
	if err := auth.SignIn(ctx, email, password); err != nil {
		m.log.Info("session.sign_in.fail", "err", err)
		return identity.Friendly(err, identity.OpSignIn)
	}
	return nil
}

// SignUp creates an account through the provider.
func (m *Manager) SignUp(ctx context.Context, email, password, displayName string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return identity.Friendly(identity.ErrMissingInput, identity.OpSignUp)
	}
	auth, err := m.authenticator()
	if err != nil {
		return identity.Friendly(err, identity.OpSignUp)
	}
	if err := auth.SignUp(ctx, email, password, strings.TrimSpace(displayName)); err != nil {
		m.log.Info("session.sign_up.fail", "err", err)
		return identity.Friendly(err, identity.OpSignUp)
	}
	return nil
}

// SignOut asks the provider to end the session.
func (m *Manager) SignOut(ctx context.Context) error {
	auth, err := m.authenticator()
	if err != nil {
		return identity.Friendly(err, identity.OpSignOut)
	}
	if err := auth.SignOut(ctx); err != nil {
		return identity.Friendly(err, identity.OpSignOut)
	}
	return nil
}

func (m *Manager) authenticator() (identity.Authenticator, error) {
	auth, ok := m.provider.(identity.Authenticator)
	if !ok {
		return nil, identity.ErrNotSupported
	}
	return auth, nil
}

// receive is the provider listener.
func (m *Manager) receive(id *identity.Identity) {
	sess := FromIdentity(id)
	m.enqueue(func() { m.apply(sess) })
}

func (m *Manager) apply(sess *Session) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	prev := m.view
	next := prev
	next.Session = sess
	next.Loading = false
	next.Phase = PhaseAnonymous
	if sess != nil {
		next.Phase = PhaseAuthenticated
	}
	if next.Phase != prev.Phase {
		next.Transition++
		next.Notice = ""
	}
	m.view = next
	if prev.Loading {
		close(m.ready)
	}
	m.mu.Unlock()

	if next.Phase != prev.Phase {
		m.log.Info("session.transition",
			"from", prev.Phase.String(),
			"to", next.Phase.String(),
			"transition", next.Transition,
		)
		if m.hooks.OnTransition != nil {
			m.hooks.OnTransition(prev, next)
		}
	}
	if sess != nil && m.writer != nil {
		m.writer.Enqueue(SnapshotOf(sess))
	}
	m.notify(next)
}

func (m *Manager) notify(v View) {
	m.mu.Lock()
	ids := make([]uint64, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	slices.Sort(ids)

	for _, id := range ids {
		m.mu.Lock()
		fn, ok := m.listeners[id]
		m.mu.Unlock()
		if ok {
			fn(v)
		}
	}
}

// enqueue runs task after every task enqueued before it. The first caller to find the
// queue idle drains it; everyone else returns immediately.
func (m *Manager) enqueue(task func()) {
	m.mu.Lock()
	m.queue = append(m.queue, task)
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.queue) > 0 {
		next := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()
		m.run(next)
		m.mu.Lock()
	}
	m.draining = false
	m.mu.Unlock()
}

func (m *Manager) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("session.listener.panic", "panic", r)
		}
	}()
	task()
}
