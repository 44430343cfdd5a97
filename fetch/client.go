package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/civiclens/internal/logging"
)

// DefaultTimeout bounds each attempt when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Result is the outcome of a successful call.
type Result struct {
	CallID   string
	Endpoint Endpoint
	// Document is the whole decoded response object.
	Document map[string]any
	Items    []Item
	// Attempts holds every attempt of the call, the successful one last.
	Attempts []Attempt
}

// Observer receives call diagnostics. Methods run on the calling goroutine.
type Observer interface {
	OnAttempt(a Attempt)
	OnComplete(callID string, res *Result, err error)
}

// ObserverFuncs adapts functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Attempt  func(Attempt)
	Complete func(callID string, res *Result, err error)
}

func (o ObserverFuncs) OnAttempt(a Attempt) {
	if o.Attempt != nil {
		o.Attempt(a)
	}
}

func (o ObserverFuncs) OnComplete(callID string, res *Result, err error) {
	if o.Complete != nil {
		o.Complete(callID, res, err)
	}
}

// Config tunes a Client.
type Config struct {
	Endpoints  []Endpoint
	Timeout    time.Duration
	ItemsField string
	Header     http.Header
	Logger     *slog.Logger
	Observer   Observer
}

// Client tries candidate endpoints in order until one succeeds.
type Client struct {
	transport  Transport
	endpoints  []Endpoint
	timeout    time.Duration
	itemsField string
	header     http.Header
	log        *slog.Logger
	observer   Observer
}

// NewClient copies cfg.Endpoints; later changes to the caller's slice have no effect.
func NewClient(t Transport, cfg Config) (*Client, error) {
	if t == nil {
		return nil, errors.New("fetch: transport is required")
	}
	if len(cfg.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	for _, ep := range cfg.Endpoints {
		if err := ep.validate(); err != nil {
			return nil, err
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ItemsField == "" {
		cfg.ItemsField = DefaultItemsField
	}
	obs := cfg.Observer
	if obs == nil {
		obs = ObserverFuncs{}
	}
	return &Client{
		transport:  t,
		endpoints:  append([]Endpoint(nil), cfg.Endpoints...),
		timeout:    cfg.Timeout,
		itemsField: cfg.ItemsField,
		header:     cfg.Header.Clone(),
		log:        logging.OrDiscard(cfg.Logger),
		observer:   obs,
	}, nil
}

// Endpoints returns a copy of the candidate list.
func (c *Client) Endpoints() []Endpoint {
	return append([]Endpoint(nil), c.endpoints...)
}

// Timeout returns the per-attempt timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Fetch requests path from each candidate in order and returns the first decodable
// response. Candidates after the successful one are never contacted.
//
// If every candidate fails the error is an *UnreachableError. If ctx ends first the
// in-flight attempt is abandoned, no further candidates are tried and the error wraps
// ErrCanceled together with the context's cause.
func (c *Client) Fetch(ctx context.Context, path string) (*Result, error) {
	callID := uuid.NewString()
	attempts := make([]Attempt, 0, len(c.endpoints))

	for i, ep := range c.endpoints {
		if ctx.Err() != nil {
			return nil, c.canceled(ctx, callID, attempts)
		}

		a, res, canceled := c.try(ctx, callID, i, ep, path)
		if canceled {
			return nil, c.canceled(ctx, callID, attempts)
		}
		attempts = append(attempts, a)
		c.observer.OnAttempt(a)

		if a.Failed() {
			c.log.Warn("fetch.attempt.fail",
				"call_id", callID,
				"endpoint", ep.Name(),
				"outcome", string(a.Outcome),
				"status", a.Status,
				"duration", a.Duration,
				"err", a.Detail,
			)
			continue
		}

		res.Attempts = attempts
		c.log.Info("fetch.ok",
			"call_id", callID,
			"endpoint", ep.Name(),
			"items", len(res.Items),
			"attempts", len(attempts),
		)
		c.observer.OnComplete(callID, res, nil)
		return res, nil
	}

	err := &UnreachableError{CallID: callID, Attempts: attempts}
	c.log.Warn("fetch.unreachable", "call_id", callID, "attempts", Summaries(attempts))
	c.observer.OnComplete(callID, nil, err)
	return nil, err
}

type reply struct {
	resp *Response
	err  error
}

// try runs one attempt. canceled reports that the caller's context ended, in which
// case the attempt is not recorded.
func (c *Client) try(ctx context.Context, callID string, index int, ep Endpoint, path string) (Attempt, *Result, bool) {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	a := Attempt{CallID: callID, Index: index, Endpoint: ep}

	// Buffered so an abandoned request can still deliver and exit.
	done := make(chan reply, 1)
	go func() {
		resp, err := c.transport.Request(actx, ep, path, RequestOptions{Timeout: c.timeout, Header: c.header})
		done <- reply{resp: resp, err: err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-actx.Done():
		if ctx.Err() != nil {
			return a, nil, true
		}
		a.Outcome = OutcomeTimeout
		a.Detail = fmt.Sprintf("no response within %s", c.timeout)
		a.Duration = time.Since(start)
		return a, nil, false
	}
	a.Duration = time.Since(start)
	if ctx.Err() != nil {
		return a, nil, true
	}

	if r.err != nil {
		var te *TransportError
		switch {
		case errors.As(r.err, &te):
			a.Outcome = te.Kind
		case errors.Is(r.err, context.DeadlineExceeded):
			a.Outcome = OutcomeTimeout
		default:
			a.Outcome = OutcomeConnection
		}
		a.Detail = r.err.Error()
		return a, nil, false
	}
	if r.resp == nil {
		a.Outcome = OutcomeConnection
		a.Detail = "no response"
		return a, nil, false
	}

	a.Status = r.resp.Status
	if r.resp.Status < 200 || r.resp.Status > 299 {
		a.Outcome = OutcomeStatus
		a.Detail = http.StatusText(r.resp.Status)
		return a, nil, false
	}

	doc, items, err := decodeDocument(r.resp.Body, c.itemsField)
	if err != nil {
		a.Outcome = OutcomeDecode
		a.Detail = err.Error()
		return a, nil, false
	}

	a.Outcome = OutcomeOK
	return a, &Result{CallID: callID, Endpoint: ep, Document: doc, Items: items}, false
}

func (c *Client) canceled(ctx context.Context, callID string, attempts []Attempt) error {
	err := fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
	c.log.Info("fetch.canceled", "call_id", callID, "attempts", len(attempts))
	c.observer.OnComplete(callID, nil, err)
	return err
}
