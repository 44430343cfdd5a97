package civiclens

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/MrEthical07/civiclens/fetch"
	"github.com/MrEthical07/civiclens/guard"
	"github.com/MrEthical07/civiclens/identity"
	"github.com/MrEthical07/civiclens/kvstore"
	"github.com/MrEthical07/civiclens/session"
)

// Client is the assembled client core: one session manager subscribed to one identity
// provider, a route guard following it, and the candidate-endpoint fetch client.
type Client struct {
	cfg      Config
	log      *slog.Logger
	metrics  *Metrics
	events   *eventDispatcher
	renderer func(guard.Outcome, session.View)
	closers  []func() error

	store    kvstore.Store
	provider identity.Provider
	writer   *session.SnapshotWriter
	manager  *session.Manager
	nav      guard.Navigator
	guard    *guard.Guard
	fetcher  *fetch.Client
	feed     *fetch.Feed

	mu      sync.Mutex
	started bool
	closed  bool
	dispose func()
	detach  func()
}

// Start pre-admits from the persisted hint when configured, subscribes to the identity
// provider and attaches the guard. It does not wait for the first identity; use
// WaitReady for that.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.started {
		return ErrAlreadyStarted
	}

	if c.cfg.Guard.OptimisticPreAdmit && c.cfg.Session.PeekHint {
		hintCtx := ctx
		if c.cfg.Session.HintTimeout > 0 {
			var cancel context.CancelFunc
			hintCtx, cancel = context.WithTimeout(ctx, c.cfg.Session.HintTimeout)
			defer cancel()
		}
		c.guard.PreAdmit(hintCtx, c.manager)
	}

	dispose, err := c.manager.Initialize()
	if err != nil {
		return err
	}
	c.dispose = dispose
	c.detach = c.guard.Attach(c.manager, c.renderer)
	c.started = true
	c.log.Info("client.started", "endpoints", len(c.fetcher.Endpoints()))
	return nil
}

// Close releases the subscription, flushes pending snapshots and events and closes
// the collaborators the client created. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	detach, dispose := c.detach, c.dispose
	c.mu.Unlock()

	c.feed.Cancel()
	if detach != nil {
		detach()
	}
	if dispose != nil {
		dispose()
	}
	return c.release()
}

func (c *Client) release() error {
	c.writer.Close()
	c.events.Close()
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// View returns the current session state.
func (c *Client) View() session.View {
	return c.manager.View()
}

// WaitReady blocks until the provider has reported.
func (c *Client) WaitReady(ctx context.Context) (session.View, error) {
	return c.manager.WaitReady(ctx)
}

// Watch registers fn for every session view, starting with the current one.
func (c *Client) Watch(fn func(session.View)) func() {
	return c.manager.Watch(fn)
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() Config {
	return cloneConfig(c.cfg)
}

func (c *Client) Manager() *session.Manager {
	return c.manager
}

func (c *Client) Guard() *guard.Guard {
	return c.guard
}

func (c *Client) Navigator() guard.Navigator {
	return c.nav
}

func (c *Client) Fetcher() *fetch.Client {
	return c.fetcher
}

func (c *Client) Feed() *fetch.Feed {
	return c.feed
}

// Store returns the persisted store, whether injected or built from configuration.
func (c *Client) Store() kvstore.Store {
	return c.store
}

// FetchFeed loads the configured feed path, replacing any load in progress.
func (c *Client) FetchFeed(ctx context.Context) fetch.FeedView {
	return c.feed.Load(ctx)
}

// Fetch requests an arbitrary path through the candidate chain.
func (c *Client) Fetch(ctx context.Context, path string) (*fetch.Result, error) {
	return c.fetcher.Fetch(ctx, path)
}

// SignIn forwards credentials to the identity provider.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	err := c.manager.SignIn(ctx, email, password)
	if err != nil {
		c.metrics.Inc(MetricSignInFailure)
	}
	c.emitAuth(ctx, EventSignIn, email, err)
	return err
}

// SignUp creates an account with the identity provider.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) error {
	err := c.manager.SignUp(ctx, email, password, displayName)
	if err != nil {
		c.metrics.Inc(MetricSignUpFailure)
	}
	c.emitAuth(ctx, EventSignUp, email, err)
	return err
}

func (c *Client) SignOut(ctx context.Context) error {
	err := c.manager.SignOut(ctx)
	c.emitAuth(ctx, EventSignOut, "", err)
	return err
}

func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// EventsDropped reports events discarded by a full dispatcher queue.
func (c *Client) EventsDropped() uint64 {
	return c.events.Dropped()
}

func (c *Client) emitAuth(ctx context.Context, typ, email string, err error) {
	ev := Event{Type: typ, Success: err == nil}
	if email != "" {
		ev.Metadata = map[string]string{"email": email}
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.emit(ctx, ev)
}

func (c *Client) emit(ctx context.Context, ev Event) {
	if c.events == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	c.events.Emit(ctx, ev)
}

func (c *Client) reportProviderError(err error) {
	if c.manager != nil {
		c.manager.ReportProviderError(err)
	}
}

func (c *Client) onTransition(prev, next session.View) {
	ev := Event{
		Type:    EventSessionTransition,
		Success: true,
		Metadata: map[string]string{
			"from":       prev.Phase.String(),
			"to":         next.Phase.String(),
			"transition": strconv.FormatUint(next.Transition, 10),
		},
	}
	switch next.Phase {
	case session.PhaseAuthenticated:
		c.metrics.Inc(MetricSessionAuthenticated)
		ev.UserID = next.Session.UID
	case session.PhaseAnonymous:
		c.metrics.Inc(MetricSessionAnonymous)
	}
	c.emit(context.Background(), ev)
}

func (c *Client) onProviderError(err error, notice string) {
	c.metrics.Inc(MetricProviderError)
	c.emit(context.Background(), Event{
		Type:     EventProviderError,
		Error:    err.Error(),
		Metadata: map[string]string{"notice": notice},
	})
}

func (c *Client) onSnapshotWritten(session.Snapshot) {
	c.metrics.Inc(MetricSnapshotWriteSuccess)
}

func (c *Client) onSnapshotFailed(_ session.Snapshot, err error) {
	c.metrics.Inc(MetricSnapshotWriteFailure)
	c.emit(context.Background(), Event{Type: EventSnapshotWrite, Error: err.Error()})
}

func (c *Client) onSnapshotDropped(session.Snapshot) {
	c.metrics.Inc(MetricSnapshotWriteDropped)
}

func (c *Client) onRedirect(route string, v session.View) {
	c.metrics.Inc(MetricGuardRedirect)
	c.emit(context.Background(), Event{
		Type:     EventGuardRedirect,
		Success:  true,
		Metadata: map[string]string{"route": route, "transition": strconv.FormatUint(v.Transition, 10)},
	})
}

func (c *Client) onPreAdmit(route string) {
	c.metrics.Inc(MetricGuardPreAdmit)
	c.emit(context.Background(), Event{Type: EventGuardPreAdmit, Success: true, Metadata: map[string]string{"route": route}})
}

func (c *Client) onFetchAttempt(a fetch.Attempt) {
	c.metrics.Observe(MetricFetchAttemptLatency, a.Duration)
	if a.Failed() {
		c.metrics.Inc(MetricFetchAttemptFailure)
	}
	ev := Event{
		Type:     EventFetchAttempt,
		CallID:   a.CallID,
		Endpoint: a.Endpoint.Name(),
		Success:  !a.Failed(),
		Error:    a.Detail,
		Metadata: map[string]string{"outcome": string(a.Outcome)},
	}
	if a.Status != 0 {
		ev.Metadata["status"] = strconv.Itoa(a.Status)
	}
	c.emit(context.Background(), ev)
}

func (c *Client) onFetchComplete(callID string, res *fetch.Result, err error) {
	ev := Event{Type: EventFetchComplete, CallID: callID, Success: err == nil}
	switch {
	case err == nil:
		c.metrics.Inc(MetricFetchSuccess)
		ev.Endpoint = res.Endpoint.Name()
		ev.Metadata = map[string]string{"items": strconv.Itoa(len(res.Items))}
	case errors.Is(err, fetch.ErrCanceled):
		c.metrics.Inc(MetricFetchCanceled)
		ev.Error = err.Error()
	default:
		c.metrics.Inc(MetricFetchUnreachable)
		ev.Error = err.Error()
	}
	c.emit(context.Background(), ev)
}
