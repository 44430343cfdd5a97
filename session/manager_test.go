package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/civiclens/identity"
	"github.com/MrEthical07/civiclens/kvstore"
)

// syncProvider calls listeners on the emitting goroutine.
type syncProvider struct {
	mu        sync.Mutex
	listeners map[int]identity.Listener
	next      int
}

func newSyncProvider() *syncProvider {
	return &syncProvider{listeners: make(map[int]identity.Listener)}
}

func (p *syncProvider) Subscribe(fn identity.Listener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	id := p.next
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *syncProvider) emit(id *identity.Identity) {
	p.mu.Lock()
	fns := make([]identity.Listener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}

func (p *syncProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

type viewLog struct {
	mu    sync.Mutex
	views []View
}

func (l *viewLog) add(v View) {
	l.mu.Lock()
	l.views = append(l.views, v)
	l.mu.Unlock()
}

func (l *viewLog) all() []View {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]View(nil), l.views...)
}

var ada = &identity.Identity{UID: "u1", Email: "ada@example.com", DisplayName: "Ada"}

func initManager(t *testing.T, p identity.Provider, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(p, opts...)
	dispose, err := m.Initialize()
	require.NoError(t, err)
	t.Cleanup(dispose)
	return m
}

func TestManagerStartsInitializing(t *testing.T) {
	m := NewManager(newSyncProvider())
	v := m.View()
	assert.True(t, v.Loading)
	assert.Equal(t, PhaseInitializing, v.Phase)
	assert.Nil(t, v.Session)
	assert.Zero(t, v.Transition)
}

func TestFirstCallbackResolvesPhase(t *testing.T) {
	cases := []struct {
		name  string
		id    *identity.Identity
		phase Phase
	}{
		{"identity", ada, PhaseAuthenticated},
		{"no identity", nil, PhaseAnonymous},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newSyncProvider()
			m := initManager(t, p)
			p.emit(tc.id)

			v := m.View()
			assert.False(t, v.Loading)
			assert.Equal(t, tc.phase, v.Phase)
			assert.Equal(t, uint64(1), v.Transition)
			assert.Equal(t, tc.id != nil, v.Authenticated())
		})
	}
}

func TestLoadingNeverReverts(t *testing.T) {
	p := newSyncProvider()
	m := initManager(t, p)
	var log viewLog
	defer m.Watch(log.add)()

	p.emit(nil)
	p.emit(ada)
	p.emit(nil)
	p.emit(nil)
	p.emit(ada)

	views := log.all()
	require.Len(t, views, 6)
	assert.True(t, views[0].Loading)
	for _, v := range views[1:] {
		assert.False(t, v.Loading)
	}
	assert.Equal(t, []uint64{0, 1, 2, 3, 3, 4}, transitions(views))
}

func TestSessionCarriesProviderLabels(t *testing.T) {
	p := newSyncProvider()
	m := initManager(t, p)
	p.emit(ada)

	s := m.View().Session
	require.NotNil(t, s)
	assert.Equal(t, "u1", s.UID)
	assert.Equal(t, "ada@example.com", s.Email)
	assert.Equal(t, "Ada", s.Label())
}

func TestInitializeOnlyOnce(t *testing.T) {
	p := newSyncProvider()
	m := NewManager(p)
	dispose, err := m.Initialize()
	require.NoError(t, err)

	_, err = m.Initialize()
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.Equal(t, 1, p.count())

	dispose()
	dispose()
	assert.Equal(t, 0, p.count())

	_, err = m.Initialize()
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestCallbacksAfterDisposeAreIgnored(t *testing.T) {
	p := newSyncProvider()
	m := NewManager(p)
	dispose, err := m.Initialize()
	require.NoError(t, err)

	var late identity.Listener
	p.mu.Lock()
	for _, fn := range p.listeners {
		late = fn
	}
	p.mu.Unlock()

	dispose()
	late(ada)
	assert.True(t, m.View().Loading)
}

func TestReentrantCallbackIsQueued(t *testing.T) {
	p := newSyncProvider()
	m := initManager(t, p)

	var (
		log        viewLog
		duringAuth View
		fired      bool
	)
	defer m.Watch(func(v View) {
		log.add(v)
		if v.Phase == PhaseAuthenticated && !fired {
			fired = true
			p.emit(nil)
			duringAuth = m.View()
		}
	})()

	p.emit(ada)

	assert.Equal(t, PhaseAuthenticated, duringAuth.Phase, "nested callback applied after the listener returned")
	views := log.all()
	require.Len(t, views, 3)
	assert.Equal(t, PhaseInitializing, views[0].Phase)
	assert.Equal(t, PhaseAuthenticated, views[1].Phase)
	assert.Equal(t, PhaseAnonymous, views[2].Phase)
	assert.Equal(t, PhaseAnonymous, m.View().Phase)
}

func TestConcurrentCallbacksApplySerially(t *testing.T) {
	p := newSyncProvider()
	m := initManager(t, p)

	var (
		inFlight int
		overlap  bool
		mu       sync.Mutex
		log      viewLog
	)
	defer m.Watch(func(v View) {
		mu.Lock()
		inFlight++
		if inFlight > 1 {
			overlap = true
		}
		mu.Unlock()
		log.add(v)
		time.Sleep(time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
	})()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				p.emit(ada)
			} else {
				p.emit(nil)
			}
		}(i)
	}
	wg.Wait()
	require.Eventually(t, func() bool { return len(log.all()) == 17 }, 2*time.Second, 5*time.Millisecond)

	assert.False(t, overlap)
	ts := transitions(log.all())
	for i := 1; i < len(ts); i++ {
		assert.GreaterOrEqual(t, ts[i], ts[i-1])
	}
	assert.Equal(t, ts[len(ts)-1], m.View().Transition)
}

func TestWaitReady(t *testing.T) {
	p := newSyncProvider()
	m := initManager(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.WaitReady(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go p.emit(nil)
	v, err := m.WaitReady(context.Background())
	require.NoError(t, err)
	assert.False(t, v.Loading)
}

func TestProviderErrorSetsNoticeUntilPhaseChange(t *testing.T) {
	p := newSyncProvider()
	var hooked []string
	m := initManager(t, p, WithHooks(Hooks{
		OnProviderError: func(_ error, notice string) { hooked = append(hooked, notice) },
	}))
	p.emit(nil)

	m.ReportProviderError(identity.NewProviderError(identity.CodeNetworkRequest))
	assert.Equal(t, "Network error. Please check your connection.", m.View().Notice)
	assert.Equal(t, PhaseAnonymous, m.View().Phase)

	p.emit(nil)
	assert.NotEmpty(t, m.View().Notice, "same phase keeps the notice")

	p.emit(ada)
	assert.Empty(t, m.View().Notice)
	assert.Len(t, hooked, 1)
}

func TestTransitionHook(t *testing.T) {
	p := newSyncProvider()
	var pairs [][2]Phase
	m := initManager(t, p, WithHooks(Hooks{
		OnTransition: func(prev, next View) { pairs = append(pairs, [2]Phase{prev.Phase, next.Phase}) },
	}))
	p.emit(ada)
	p.emit(ada)
	p.emit(nil)

	assert.Equal(t, [][2]Phase{
		{PhaseInitializing, PhaseAuthenticated},
		{PhaseAuthenticated, PhaseAnonymous},
	}, pairs)
	assert.Equal(t, uint64(2), m.View().Transition)
}

func TestAuthenticatedCallbackWritesSnapshot(t *testing.T) {
	store := kvstore.NewMemory()
	w := NewSnapshotWriter(store, WriterConfig{})
	p := newSyncProvider()
	m := initManager(t, p, WithSnapshotWriter(w), WithHintStore(store))

	p.emit(nil)
	p.emit(ada)
	w.Close()

	hint, ok := m.PeekHint(context.Background())
	require.True(t, ok)
	assert.Equal(t, Snapshot{Email: "ada@example.com", DisplayName: "Ada"}, *hint)

	email, _, _ := store.Get(context.Background(), KeyUserEmail)
	name, _, _ := store.Get(context.Background(), KeyUserDisplayName)
	assert.Equal(t, "ada@example.com", email)
	assert.Equal(t, "Ada", name)
}

func TestSnapshotFailureDoesNotAffectState(t *testing.T) {
	var failures int
	var mu sync.Mutex
	w := NewSnapshotWriter(failingStore{}, WriterConfig{OnFailure: func(Snapshot, error) {
		mu.Lock()
		failures++
		mu.Unlock()
	}})
	p := newSyncProvider()
	m := initManager(t, p, WithSnapshotWriter(w))

	p.emit(ada)
	w.Close()

	assert.Equal(t, PhaseAuthenticated, m.View().Phase)
	mu.Lock()
	assert.Equal(t, 1, failures)
	mu.Unlock()
	assert.Equal(t, uint64(1), w.Failed())
}

func TestPeekHintTreatsReadErrorsAsAbsent(t *testing.T) {
	m := NewManager(newSyncProvider(), WithHintStore(failingStore{}))
	_, ok := m.PeekHint(context.Background())
	assert.False(t, ok)

	m = NewManager(newSyncProvider())
	_, ok = m.PeekHint(context.Background())
	assert.False(t, ok)
}

func TestSignInThroughMemoryProvider(t *testing.T) {
	ctx := context.Background()
	p, err := identity.NewMemoryProvider()
	require.NoError(t, err)
	defer p.Close()
	m := initManager(t, p)

	_, err = m.WaitReady(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhaseAnonymous, m.View().Phase)

	err = m.SignIn(ctx, "   ", "pw")
	assert.EqualError(t, err, "Email and password are required.")

	require.NoError(t, m.SignUp(ctx, " ada@example.com ", "hunter22", " Ada "))
	require.Eventually(t, func() bool { return m.View().Authenticated() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "Ada", m.View().Session.DisplayName)

	require.NoError(t, m.SignOut(ctx))
	require.Eventually(t, func() bool { return m.View().Phase == PhaseAnonymous }, 2*time.Second, 5*time.Millisecond)

	err = m.SignIn(ctx, "ada@example.com", "wrong-password")
	var fe *identity.FriendlyError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, identity.CodeWrongPassword, fe.Code)
	assert.Equal(t, "Incorrect password. Please try again.", err.Error())

	err = m.SignUp(ctx, "ada@example.com", "hunter22", "")
	assert.EqualError(t, err, "An account with this email already exists.")
}

func TestSignInWithoutAuthenticator(t *testing.T) {
	m := NewManager(newSyncProvider())
	err := m.SignIn(context.Background(), "a@b.co", "hunter22")
	assert.ErrorIs(t, err, identity.ErrNotSupported)
	assert.Equal(t, "Failed to sign in. Please try again.", err.Error())
}

func transitions(views []View) []uint64 {
	out := make([]uint64, len(views))
	for i, v := range views {
		out[i] = v.Transition
	}
	return out
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, kvstore.ErrUnavailable
}

func (failingStore) Set(context.Context, string, string) error {
	return errors.New("disk full")
}
