package guard

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/civiclens/identity"
	"github.com/MrEthical07/civiclens/kvstore"
	"github.com/MrEthical07/civiclens/session"
)

type pushProvider struct {
	mu sync.Mutex
	fn identity.Listener
}

func (p *pushProvider) Subscribe(fn identity.Listener) func() {
	p.mu.Lock()
	p.fn = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.fn = nil
		p.mu.Unlock()
	}
}

func (p *pushProvider) emit(id *identity.Identity) {
	p.mu.Lock()
	fn := p.fn
	p.mu.Unlock()
	if fn != nil {
		fn(id)
	}
}

var ada = &identity.Identity{UID: "u1", Email: "ada@example.com", DisplayName: "Ada"}

func newManager(t *testing.T, opts ...session.Option) (*session.Manager, *pushProvider) {
	t.Helper()
	p := &pushProvider{}
	m := session.NewManager(p, opts...)
	dispose, err := m.Initialize()
	require.NoError(t, err)
	t.Cleanup(dispose)
	return m, p
}

func replaces(h *History) []string {
	var out []string
	for _, op := range h.Ops() {
		if op.Kind == NavReplace {
			out = append(out, op.Route)
		}
	}
	return out
}

func TestRenderInitializingShowsLoading(t *testing.T) {
	h := NewHistory("/dashboard")
	g := New(h, Config{})

	assert.Equal(t, RenderLoading, g.Render(session.View{Loading: true}))
	assert.Empty(t, h.Ops())
}

func TestRenderAuthenticatedAdmits(t *testing.T) {
	h := NewHistory("/dashboard")
	g := New(h, Config{})

	v := session.View{Phase: session.PhaseAuthenticated, Session: &session.Session{UID: "u1"}, Transition: 1}
	assert.Equal(t, RenderProtected, g.Render(v))
	assert.Empty(t, h.Ops())
	last, ok := g.Last()
	assert.True(t, ok)
	assert.Equal(t, RenderProtected, last)
}

func TestAnonymousRedirectsOncePerTransition(t *testing.T) {
	h := NewHistory("/dashboard")
	g := New(h, Config{Fallback: "/login"})

	anon1 := session.View{Phase: session.PhaseAnonymous, Transition: 1}
	assert.Equal(t, RenderNothing, g.Render(anon1))
	assert.Equal(t, RenderNothing, g.Render(anon1))
	assert.Equal(t, RenderNothing, g.Render(anon1))
	assert.Equal(t, []string{"/login"}, replaces(h))

	g.Render(session.View{Phase: session.PhaseAuthenticated, Transition: 2})
	g.Render(session.View{Phase: session.PhaseAnonymous, Transition: 3})
	g.Render(session.View{Phase: session.PhaseAnonymous, Transition: 3})

	assert.Equal(t, []string{"/login", "/login"}, replaces(h))
	for _, op := range h.Ops() {
		assert.NotEqual(t, NavPush, op.Kind)
	}
	assert.Equal(t, 1, h.Depth())
}

func TestAttachFollowsManager(t *testing.T) {
	m, p := newManager(t)
	h := NewHistory("/dashboard")
	var redirects int
	g := New(h, Config{OnRedirect: func(string, session.View) { redirects++ }})

	var outcomes []Outcome
	detach := g.Attach(m, func(o Outcome, _ session.View) { outcomes = append(outcomes, o) })

	p.emit(ada)
	p.emit(nil)
	p.emit(nil)
	p.emit(ada)
	p.emit(nil)
	detach()
	p.emit(ada)
	p.emit(nil)

	assert.Equal(t, []Outcome{
		RenderLoading, RenderProtected, RenderNothing, RenderNothing, RenderProtected, RenderNothing,
	}, outcomes)
	assert.Equal(t, 2, redirects)
	assert.Equal(t, []string{DefaultFallback, DefaultFallback}, replaces(h))
}

func TestPreAdmitWithHint(t *testing.T) {
	store := kvstore.NewMemory()
	require.NoError(t, session.WriteSnapshot(context.Background(), store, session.Snapshot{Email: "ada@example.com"}))
	m, p := newManager(t, session.WithHintStore(store))

	h := NewHistory("/")
	var preadmits []string
	g := New(h, Config{OptimisticPreAdmit: true, OnPreAdmit: func(r string) { preadmits = append(preadmits, r) }})

	assert.True(t, g.PreAdmit(context.Background(), m))
	assert.False(t, g.PreAdmit(context.Background(), m), "at most once")
	assert.Equal(t, DefaultProtected, h.Current())
	assert.Equal(t, []string{DefaultProtected}, preadmits)

	// The provider disagrees: the ordinary anonymous transition rule sends the user back.
	defer g.Attach(m, nil)()
	p.emit(nil)
	assert.Equal(t, DefaultFallback, h.Current())
	assert.Equal(t, []string{DefaultProtected, DefaultFallback}, replaces(h))
}

func TestPreAdmitSkipped(t *testing.T) {
	store := kvstore.NewMemory()
	require.NoError(t, session.WriteSnapshot(context.Background(), store, session.Snapshot{Email: "a@b.co"}))

	t.Run("disabled", func(t *testing.T) {
		m, _ := newManager(t, session.WithHintStore(store))
		h := NewHistory("/")
		assert.False(t, New(h, Config{}).PreAdmit(context.Background(), m))
		assert.Empty(t, h.Ops())
	})

	t.Run("no hint", func(t *testing.T) {
		m, _ := newManager(t, session.WithHintStore(kvstore.NewMemory()))
		h := NewHistory("/")
		assert.False(t, New(h, Config{OptimisticPreAdmit: true}).PreAdmit(context.Background(), m))
		assert.Empty(t, h.Ops())
	})

	t.Run("already resolved", func(t *testing.T) {
		m, p := newManager(t, session.WithHintStore(store))
		p.emit(nil)
		h := NewHistory("/")
		assert.False(t, New(h, Config{OptimisticPreAdmit: true}).PreAdmit(context.Background(), m))
		assert.Empty(t, h.Ops())
	})
}

func TestHistoryStack(t *testing.T) {
	h := NewHistory("")
	var seen []string
	h.OnNavigate(func(_ NavOp, current string) { seen = append(seen, current) })

	h.Replace("/")
	h.Push("/a")
	h.Push("/b")
	h.Back()
	h.Replace("/c")
	h.Back()
	h.Back()

	assert.Equal(t, "/", h.Current())
	assert.Equal(t, 1, h.Depth())
	assert.Equal(t, []string{"/", "/a", "/b", "/a", "/c", "/", "/"}, seen)
	assert.Len(t, h.Ops(), 7)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "loading", RenderLoading.String())
	assert.Equal(t, "protected", RenderProtected.String())
	assert.Equal(t, "nothing", RenderNothing.String())
}
