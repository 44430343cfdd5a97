package civiclens

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/civiclens/fetch"
	"github.com/MrEthical07/civiclens/guard"
	"github.com/MrEthical07/civiclens/identity"
	"github.com/MrEthical07/civiclens/idtoken"
	"github.com/MrEthical07/civiclens/internal/logging"
	"github.com/MrEthical07/civiclens/kvstore"
	"github.com/MrEthical07/civiclens/session"
)

// Builder assembles a Client. Every collaborator is optional; missing ones are built
// from the configuration.
type Builder struct {
	config    Config
	provider  identity.Provider
	store     kvstore.Store
	navigator guard.Navigator
	transport fetch.Transport
	logger    *slog.Logger
	eventSink EventSink
	renderer  func(guard.Outcome, session.View)

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithIdentityProvider overrides Identity.Mode.
func (b *Builder) WithIdentityProvider(p identity.Provider) *Builder {
	b.provider = p
	return b
}

// WithStore overrides Store.Backend. The caller keeps ownership of s.
func (b *Builder) WithStore(s kvstore.Store) *Builder {
	b.store = s
	return b
}

// WithNavigator sets the navigator driven by the guard. Defaults to a guard.History.
func (b *Builder) WithNavigator(n guard.Navigator) *Builder {
	b.navigator = n
	return b
}

// WithTransport replaces the net/http transport.
func (b *Builder) WithTransport(t fetch.Transport) *Builder {
	b.transport = t
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

// WithRenderer receives every guard outcome once the client is started.
func (b *Builder) WithRenderer(fn func(guard.Outcome, session.View)) *Builder {
	b.renderer = fn
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the client. A Builder builds once.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:      cfg,
		log:      logging.OrDiscard(b.logger),
		metrics:  NewMetrics(cfg.Metrics),
		renderer: b.renderer,
	}
	c.events = newEventDispatcher(cfg.Events, b.eventSink)

	ok := false
	defer func() {
		if !ok {
			c.release()
		}
	}()

	store := b.store
	if store == nil {
		s, closers, err := openStore(cfg.Store)
		if err != nil {
			return nil, err
		}
		store = s
		c.closers = append(c.closers, closers...)
	}
	c.store = store

	provider := b.provider
	if provider == nil {
		p, closer, err := buildProvider(cfg.Identity, c.log, c.reportProviderError)
		if err != nil {
			return nil, err
		}
		provider = p
		c.closers = append(c.closers, closer)
	}
	c.provider = provider

	opts := []session.Option{
		session.WithLogger(c.log),
		session.WithHooks(session.Hooks{
			OnTransition:    c.onTransition,
			OnProviderError: c.onProviderError,
		}),
	}
	if cfg.Snapshot.Enabled {
		c.writer = session.NewSnapshotWriter(store, session.WriterConfig{
			BufferSize:   cfg.Snapshot.BufferSize,
			WriteTimeout: cfg.Snapshot.WriteTimeout,
			Logger:       c.log,
			OnWritten:    c.onSnapshotWritten,
			OnFailure:    c.onSnapshotFailed,
			OnDropped:    c.onSnapshotDropped,
		})
		opts = append(opts, session.WithSnapshotWriter(c.writer))
	}
	if cfg.Session.PeekHint {
		opts = append(opts, session.WithHintStore(store))
	}
	c.manager = session.NewManager(provider, opts...)

	c.nav = b.navigator
	if c.nav == nil {
		c.nav = guard.NewHistory("")
	}
	c.guard = guard.New(c.nav, guard.Config{
		Fallback:           cfg.Guard.Fallback,
		Protected:          cfg.Guard.Protected,
		OptimisticPreAdmit: cfg.Guard.OptimisticPreAdmit && cfg.Session.PeekHint,
		Logger:             c.log,
		OnRedirect:         c.onRedirect,
		OnPreAdmit:         c.onPreAdmit,
	})

	endpoints, err := fetch.ParseEndpoints(cfg.Fetch.Endpoints)
	if err != nil {
		return nil, err
	}
	transport := b.transport
	if transport == nil {
		transport = fetch.NewHTTPTransport(nil, cfg.Fetch.UserAgent)
	}
	c.fetcher, err = fetch.NewClient(transport, fetch.Config{
		Endpoints:  endpoints,
		Timeout:    cfg.Fetch.Timeout,
		ItemsField: cfg.Fetch.ItemsField,
		Logger:     c.log,
		Observer:   fetch.ObserverFuncs{Attempt: c.onFetchAttempt, Complete: c.onFetchComplete},
	})
	if err != nil {
		return nil, err
	}
	c.feed = fetch.NewFeed(c.fetcher, cfg.Fetch.Path, nil)

	b.built = true
	ok = true
	return c, nil
}

func openStore(cfg StoreConfig) (kvstore.Store, []func() error, error) {
	switch cfg.Backend {
	case StoreMemory:
		return kvstore.NewMemory(), nil, nil
	case StoreSQLite:
		s, err := kvstore.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, []func() error{s.Close}, nil
	case StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return kvstore.NewRedis(rdb, cfg.RedisPrefix, cfg.RedisTTL), []func() error{rdb.Close}, nil
	case StoreMiniredis:
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded redis: %w", err)
		}
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		closers := []func() error{
			rdb.Close,
			func() error { mr.Close(); return nil },
		}
		return kvstore.NewRedis(rdb, cfg.RedisPrefix, cfg.RedisTTL), closers, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func buildProvider(cfg IdentityConfig, log *slog.Logger, onError func(error)) (identity.Provider, func() error, error) {
	switch cfg.Mode {
	case IdentityMemory:
		p, err := identity.NewMemoryProvider()
		if err != nil {
			return nil, nil, err
		}
		return p, func() error { p.Close(); return nil }, nil
	case IdentityStream:
		vcfg := idtoken.Config{
			Issuer:   cfg.Issuer,
			Audience: cfg.Audience,
			Leeway:   cfg.Leeway,
		}
		switch cfg.SigningMethod {
		case "hs256":
			vcfg.SigningMethod = idtoken.MethodHS256
			vcfg.PrivateKey = []byte(cfg.SharedSecret)
		default:
			vcfg.SigningMethod = idtoken.MethodEd25519
			vcfg.PublicKey = []byte(cfg.PublicKey)
		}
		verifier, err := idtoken.NewVerifier(vcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("identity token verifier: %w", err)
		}
		p, err := identity.NewStreamProvider(identity.StreamConfig{
			URL:            cfg.StreamURL,
			Verifier:       verifier,
			ReconnectDelay: cfg.ReconnectDelay,
			Logger:         log,
			OnError:        onError,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, func() error { p.Close(); return nil }, nil
	default:
		return nil, nil, errors.New("unknown identity mode")
	}
}
