package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/civiclens/internal/logging"
	"github.com/MrEthical07/civiclens/kvstore"
)

// WriteSnapshot persists s synchronously. The first failing key aborts the write.
func WriteSnapshot(ctx context.Context, store kvstore.Store, s Snapshot) error {
	encoded, err := s.encode()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	writes := [...]struct{ key, value string }{
		{KeyAuthUser, encoded},
		{KeyUserEmail, s.Email},
		{KeyUserDisplayName, s.DisplayName},
	}
	for _, w := range writes {
		if err := store.Set(ctx, w.key, w.value); err != nil {
			return fmt.Errorf("write %s: %w", w.key, err)
		}
	}
	return nil
}

// ReadSnapshot loads the persisted snapshot. A missing or undecodable value reports
// ok=false without error; only store failures are returned.
func ReadSnapshot(ctx context.Context, store kvstore.Store) (*Snapshot, bool, error) {
	raw, ok, err := store.Get(ctx, KeyAuthUser)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", KeyAuthUser, err)
	}
	if !ok || raw == "" {
		return nil, false, nil
	}
	var s Snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, false, nil
	}
	return &s, true, nil
}

// WriterConfig tunes a SnapshotWriter.
type WriterConfig struct {
	BufferSize   int
	WriteTimeout time.Duration
	Logger       *slog.Logger
	// OnWritten and OnFailure run on the writer goroutine; OnDropped runs on the
	// enqueueing goroutine.
	OnWritten func(Snapshot)
	OnFailure func(Snapshot, error)
	OnDropped func(Snapshot)
}

// SnapshotWriter persists snapshots on a single background goroutine. Writes complete
// in enqueue order, so for every key the last enqueued snapshot wins. Failures are
// logged and reported, never retried.
type SnapshotWriter struct {
	store     kvstore.Store
	cfg       WriterConfig
	log       *slog.Logger
	ch        chan Snapshot
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewSnapshotWriter starts a writer over store.
func NewSnapshotWriter(store kvstore.Store, cfg WriterConfig) *SnapshotWriter {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 16
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	w := &SnapshotWriter{
		store: store,
		cfg:   cfg,
		log:   logging.OrDiscard(cfg.Logger),
		ch:    make(chan Snapshot, cfg.BufferSize),
		done:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *SnapshotWriter) run() {
	defer w.wg.Done()
	for {
		select {
		case s := <-w.ch:
			w.write(s)
		case <-w.done:
			for {
				select {
				case s := <-w.ch:
					w.write(s)
				default:
					return
				}
			}
		}
	}
}

func (w *SnapshotWriter) write(s Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
	defer cancel()

	if err := WriteSnapshot(ctx, w.store, s); err != nil {
		w.failed.Add(1)
		w.log.Warn("snapshot.write.fail", "email", s.Email, "err", err)
		if w.cfg.OnFailure != nil {
			w.cfg.OnFailure(s, err)
		}
		return
	}
	w.log.Debug("snapshot.write.ok", "email", s.Email)
	if w.cfg.OnWritten != nil {
		w.cfg.OnWritten(s)
	}
}

// Enqueue schedules s without blocking. It reports false when the writer is closed or
// its queue is full; a full queue counts as a drop.
func (w *SnapshotWriter) Enqueue(s Snapshot) bool {
	if w == nil || w.closed.Load() {
		return false
	}
	select {
	case w.ch <- s:
		return true
	case <-w.done:
		return false
	default:
		w.dropped.Add(1)
		w.log.Warn("snapshot.write.dropped", "email", s.Email)
		if w.cfg.OnDropped != nil {
			w.cfg.OnDropped(s)
		}
		return false
	}
}

// Close drains queued snapshots and stops the writer. Safe to call more than once.
func (w *SnapshotWriter) Close() {
	if w == nil {
		return
	}
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		close(w.done)
		w.wg.Wait()
	})
}

// Dropped returns the number of snapshots rejected by a full queue.
func (w *SnapshotWriter) Dropped() uint64 {
	if w == nil {
		return 0
	}
	return w.dropped.Load()
}

// Failed returns the number of snapshots whose write failed.
func (w *SnapshotWriter) Failed() uint64 {
	if w == nil {
		return 0
	}
	return w.failed.Load()
}
