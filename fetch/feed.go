package fetch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// UnreachableMessage is shown when no candidate answered.
const UnreachableMessage = "Network Error: unable to reach backend on any candidate host"

// FeedState is the screen state of a feed.
type FeedState uint8

const (
	FeedIdle FeedState = iota
	FeedLoading
	FeedReady
	FeedEmpty
	FeedUnreachable
)

func (s FeedState) String() string {
	switch s {
	case FeedIdle:
		return "idle"
	case FeedLoading:
		return "loading"
	case FeedReady:
		return "ready"
	case FeedEmpty:
		return "empty"
	case FeedUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// FeedView is a snapshot of a Feed.
type FeedView struct {
	State     FeedState
	Items     []Item
	Message   string
	Endpoint  Endpoint
	Attempts  []Attempt
	UpdatedAt time.Time
}

// Fetcher is the subset of Client used by Feed.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (*Result, error)
}

// Feed tracks one path's load state. Starting a load cancels any load still running.
type Feed struct {
	fetcher Fetcher
	path    string

	mu       sync.Mutex
	view     FeedView
	gen      uint64
	cancel   context.CancelFunc
	onChange func(FeedView)
}

// NewFeed returns an idle feed for path. onChange, if non-nil, is called with every
// state the feed enters.
func NewFeed(f Fetcher, path string, onChange func(FeedView)) *Feed {
	return &Feed{fetcher: f, path: path, onChange: onChange}
}

// View returns the current state.
func (f *Feed) View() FeedView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

// Load fetches the feed and returns the state it settled in. A load superseded by a
// newer one returns the state current at that moment without overwriting it. A load
// whose ctx ends restores the state it started from.
func (f *Feed) Load(ctx context.Context) FeedView {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.gen++
	gen := f.gen
	f.cancel = cancel
	before := f.view
	loading := before
	loading.State = FeedLoading
	loading.Message = ""
	f.view = loading
	f.mu.Unlock()
	f.changed(loading)

	res, err := f.fetcher.Fetch(ctx, f.path)

	next := FeedView{UpdatedAt: time.Now()}
	var unreachable *UnreachableError
	switch {
	case err == nil:
		next.Items = res.Items
		next.Endpoint = res.Endpoint
		next.Attempts = res.Attempts
		next.State = FeedReady
		if len(res.Items) == 0 {
			next.State = FeedEmpty
		}
	case errors.As(err, &unreachable):
		next.State = FeedUnreachable
		next.Message = UnreachableMessage
		next.Attempts = unreachable.Attempts
	default:
		next = before
	}

	f.mu.Lock()
	if f.gen != gen {
		cur := f.view
		f.mu.Unlock()
		return cur
	}
	f.cancel = nil
	f.view = next
	f.mu.Unlock()
	f.changed(next)
	return next
}

// Refresh is the user-initiated retry; it behaves like Load.
func (f *Feed) Refresh(ctx context.Context) FeedView {
	return f.Load(ctx)
}

// Cancel stops the running load, if any.
func (f *Feed) Cancel() {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Unlock()
}

func (f *Feed) changed(v FeedView) {
	if f.onChange != nil {
		f.onChange(v)
	}
}
