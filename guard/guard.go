package guard

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrEthical07/civiclens/internal/logging"
	"github.com/MrEthical07/civiclens/session"
)

const (
	DefaultFallback  = "/"
	DefaultProtected = "/dashboard/initialdash"
)

// Outcome is what the protected screen should show.
type Outcome uint8

const (
	RenderLoading Outcome = iota
	RenderProtected
	RenderNothing
)

func (o Outcome) String() string {
	switch o {
	case RenderLoading:
		return "loading"
	case RenderProtected:
		return "protected"
	case RenderNothing:
		return "nothing"
	default:
		return "unknown"
	}
}

// Config tunes a Guard.
type Config struct {
	// Fallback is the route anonymous users are sent to.
	Fallback string
	// Protected is the route optimistically entered by PreAdmit.
	Protected string
	// OptimisticPreAdmit enables PreAdmit.
	OptimisticPreAdmit bool
	Logger             *slog.Logger
	// OnRedirect and OnPreAdmit observe navigation issued by the guard.
	OnRedirect func(route string, v session.View)
	OnPreAdmit func(route string)
}

// Source is a session state publisher, normally a *session.Manager.
type Source interface {
	View() session.View
	Watch(fn func(session.View)) (unwatch func())
}

// HintSource exposes the persisted cold-start hint.
type HintSource interface {
	View() session.View
	PeekHint(ctx context.Context) (*session.Snapshot, bool)
}

// Guard admits or redirects based on session state.
type Guard struct {
	nav Navigator
	cfg Config
	log *slog.Logger

	mu               sync.Mutex
	redirected       bool
	redirectedAt     uint64
	preAdmitted      bool
	lastOutcome      Outcome
	lastOutcomeValid bool
}

// New returns a guard driving nav.
func New(nav Navigator, cfg Config) *Guard {
	if cfg.Fallback == "" {
		cfg.Fallback = DefaultFallback
	}
	if cfg.Protected == "" {
		cfg.Protected = DefaultProtected
	}
	return &Guard{nav: nav, cfg: cfg, log: logging.OrDiscard(cfg.Logger)}
}

// Render maps v to an outcome. Entering the anonymous phase issues one Replace to the
// fallback route; rendering the same transition again issues nothing.
func (g *Guard) Render(v session.View) Outcome {
	switch {
	case v.Loading || v.Phase == session.PhaseInitializing:
		g.remember(RenderLoading)
		return RenderLoading
	case v.Phase == session.PhaseAuthenticated:
		g.remember(RenderProtected)
		return RenderProtected
	}

	g.mu.Lock()
	due := !g.redirected || g.redirectedAt != v.Transition
	if due {
		g.redirected = true
		g.redirectedAt = v.Transition
	}
	g.lastOutcome, g.lastOutcomeValid = RenderNothing, true
	g.mu.Unlock()

	if due {
		g.log.Info("guard.redirect", "route", g.cfg.Fallback, "transition", v.Transition)
		g.nav.Replace(g.cfg.Fallback)
		if g.cfg.OnRedirect != nil {
			g.cfg.OnRedirect(g.cfg.Fallback, v)
		}
	}
	return RenderNothing
}

func (g *Guard) remember(o Outcome) {
	g.mu.Lock()
	g.lastOutcome, g.lastOutcomeValid = o, true
	g.mu.Unlock()
}

// Last returns the most recent outcome, if any render happened.
func (g *Guard) Last() (Outcome, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastOutcome, g.lastOutcomeValid
}

// Attach renders every view published by src, starting with the current one. render,
// if non-nil, receives each outcome. The returned function detaches.
func (g *Guard) Attach(src Source, render func(Outcome, session.View)) func() {
	return src.Watch(func(v session.View) {
		o := g.Render(v)
		if render != nil {
			render(o, v)
		}
	})
}

// PreAdmit optimistically enters the protected route before the provider has
// reported, when enabled and a persisted hint exists. It acts at most once per guard
// and reports whether it navigated. A later anonymous transition is redirected by
// Render as usual.
func (g *Guard) PreAdmit(ctx context.Context, src HintSource) bool {
	if !g.cfg.OptimisticPreAdmit {
		return false
	}
	if v := src.View(); !v.Loading {
		return false
	}
	g.mu.Lock()
	done := g.preAdmitted
	g.mu.Unlock()
	if done {
		return false
	}

	hint, ok := src.PeekHint(ctx)
	if !ok || hint == nil {
		return false
	}
	if v := src.View(); !v.Loading {
		return false
	}

	g.mu.Lock()
	if g.preAdmitted {
		g.mu.Unlock()
		return false
	}
	g.preAdmitted = true
	g.mu.Unlock()

	g.log.Info("guard.preadmit", "route", g.cfg.Protected, "email", hint.Email)
	g.nav.Replace(g.cfg.Protected)
	if g.cfg.OnPreAdmit != nil {
		g.cfg.OnPreAdmit(g.cfg.Protected)
	}
	return true
}
