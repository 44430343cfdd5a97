package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrEthical07/civiclens/idtoken"
	"github.com/MrEthical07/civiclens/internal/logging"
)

const (
	FrameIdentity  = "identity"
	FrameSignedOut = "signed_out"
	FrameError     = "error"
)

// Frame is one message on the identity stream.
type Frame struct {
	Type    string `json:"type"`
	IDToken string `json:"id_token,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// StreamConfig configures a StreamProvider.
type StreamConfig struct {
	URL            string
	Header         http.Header
	Verifier       *idtoken.Verifier
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	ReadLimit      int64
	Logger         *slog.Logger
	// OnError receives coded failures: error frames, rejected tokens and lost
	// connections. It is called from the stream goroutine.
	OnError func(error)
}

// StreamProvider adapts a WebSocket identity push stream to Provider. The stream is
// opened with the first subscription and closed with the last. Until the server sends
// its first frame no state is delivered.
type StreamProvider struct {
	cfg StreamConfig
	log *slog.Logger

	mu      sync.Mutex
	current *Identity
	known   bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	subs    fanout
}

// NewStreamProvider validates cfg and returns an idle provider.
func NewStreamProvider(cfg StreamConfig) (*StreamProvider, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("identity stream url is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("identity stream requires a token verifier")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 64 << 10
	}
	return &StreamProvider{cfg: cfg, log: logging.OrDiscard(cfg.Logger)}, nil
}

// Subscribe implements Provider.
func (s *StreamProvider) Subscribe(fn Listener) func() {
	s.mu.Lock()
	remove := s.subs.add(fn, s.current, s.known)
	if s.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		go s.run(ctx)
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			remove()
			s.mu.Lock()
			if s.subs.len() == 0 && s.cancel != nil {
				s.cancel()
				s.cancel = nil
			}
			s.mu.Unlock()
		})
	}
}

// Close stops the stream and drops every subscription.
func (s *StreamProvider) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.subs.closeAll()
	s.wg.Wait()
}

func (s *StreamProvider) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("identity.stream.disconnected", "url", s.cfg.URL, "close_status", websocket.CloseStatus(err), "err", err)
		s.report(&ProviderError{Code: CodeNetworkRequest, Err: err})

		t := time.NewTimer(s.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *StreamProvider) session(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, s.cfg.URL, &websocket.DialOptions{HTTPHeader: s.cfg.Header})
	cancel()
	if err != nil {
		return fmt.Errorf("dial identity stream: %w", err)
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(s.cfg.ReadLimit)
	s.log.Info("identity.stream.connected", "url", s.cfg.URL)

	for {
		mt, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if mt != websocket.MessageText && mt != websocket.MessageBinary {
			continue
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.log.Warn("identity.stream.frame.invalid", "err", err)
			continue
		}
		s.handle(frame)
	}
}

func (s *StreamProvider) handle(frame Frame) {
	switch frame.Type {
	case FrameIdentity:
		claims, err := s.cfg.Verifier.Parse(frame.IDToken)
		if err != nil {
			s.log.Warn("identity.stream.token.rejected", "err", err)
			s.report(&ProviderError{Code: CodeInvalidCredentials, Err: err})
			return
		}
		s.set(&Identity{UID: claims.Subject, Email: claims.Email, DisplayName: claims.Name})
	case FrameSignedOut:
		s.set(nil)
	case FrameError:
		code := Code(frame.Code)
		if code == "" {
			code = CodeInternal
		}
		var cause error
		if frame.Message != "" {
			cause = errors.New(frame.Message)
		}
		s.report(&ProviderError{Code: code, Err: cause})
	default:
		s.log.Debug("identity.stream.frame.ignored", "type", frame.Type)
	}
}

func (s *StreamProvider) set(id *Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = id
	s.known = true
	s.subs.broadcast(id)
}

func (s *StreamProvider) report(err error) {
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}
