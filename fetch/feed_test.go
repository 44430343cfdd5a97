package fetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetcherFunc func(ctx context.Context, path string) (*Result, error)

func (f fetcherFunc) Fetch(ctx context.Context, path string) (*Result, error) { return f(ctx, path) }

func TestFeedStates(t *testing.T) {
	var states []FeedState
	calls := 0
	f := NewFeed(fetcherFunc(func(ctx context.Context, path string) (*Result, error) {
		calls++
		assert.Equal(t, "/bills/latest?limit=3", path)
		switch calls {
		case 1:
			return nil, &UnreachableError{Attempts: []Attempt{{Endpoint: Endpoint{Label: "A"}, Outcome: OutcomeTimeout}}}
		case 2:
			return &Result{Items: []Item{}}, nil
		default:
			return &Result{Items: []Item{{"title": "X"}}, Endpoint: Endpoint{Label: "C"}}, nil
		}
	}), "/bills/latest?limit=3", func(v FeedView) { states = append(states, v.State) })

	assert.Equal(t, FeedIdle, f.View().State)

	v := f.Load(context.Background())
	assert.Equal(t, FeedUnreachable, v.State)
	assert.Equal(t, UnreachableMessage, v.Message)
	assert.Equal(t, []string{"A:timeout"}, Summaries(v.Attempts))

	v = f.Refresh(context.Background())
	assert.Equal(t, FeedEmpty, v.State)
	assert.Empty(t, v.Message)

	v = f.Refresh(context.Background())
	assert.Equal(t, FeedReady, v.State)
	assert.Equal(t, "X", v.Items[0].DisplayTitle())
	assert.Equal(t, "C", v.Endpoint.Label)

	assert.Equal(t, []FeedState{
		FeedLoading, FeedUnreachable, FeedLoading, FeedEmpty, FeedLoading, FeedReady,
	}, states)
}

func TestFeedNewLoadCancelsPrevious(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	f := NewFeed(fetcherFunc(func(ctx context.Context, _ string) (*Result, error) {
		first := false
		once.Do(func() { first = true })
		if first {
			close(started)
			<-ctx.Done()
			return nil, errors.Join(ErrCanceled, ctx.Err())
		}
		return &Result{Items: []Item{{"title": "fresh"}}}, nil
	}), "/", nil)

	done := make(chan FeedView, 1)
	go func() { done <- f.Load(context.Background()) }()
	<-started

	v := f.Load(context.Background())
	assert.Equal(t, FeedReady, v.State)

	select {
	case old := <-done:
		assert.Contains(t, []FeedState{FeedLoading, FeedReady}, old.State, "superseded load reports the newer load's state")
	case <-time.After(2 * time.Second):
		t.Fatal("first load was not canceled")
	}
	assert.Equal(t, "fresh", f.View().Items[0].DisplayTitle())
}

func TestFeedCanceledLoadRestoresPriorState(t *testing.T) {
	f := NewFeed(fetcherFunc(func(ctx context.Context, _ string) (*Result, error) {
		<-ctx.Done()
		return nil, errors.Join(ErrCanceled, ctx.Err())
	}), "/", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	v := f.Load(ctx)
	require.Equal(t, FeedIdle, v.State)
	assert.Equal(t, FeedIdle, f.View().State)
}

func TestFeedStateString(t *testing.T) {
	assert.Equal(t, "unreachable", FeedUnreachable.String())
	assert.Equal(t, "loading", FeedLoading.String())
}
