package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const defaultMaxBody = 4 << 20

// RequestOptions apply to a single transport request.
type RequestOptions struct {
	Timeout time.Duration
	Header  http.Header
}

// Response is a completed HTTP exchange, whatever its status.
type Response struct {
	Status int
	Body   []byte
}

// Transport performs one request against one endpoint. Implementations return
// *TransportError for failures that produced no HTTP status and must honour ctx.
type Transport interface {
	Request(ctx context.Context, ep Endpoint, path string, opts RequestOptions) (*Response, error)
}

// HTTPTransport is the net/http Transport.
type HTTPTransport struct {
	client    *http.Client
	maxBody   int64
	userAgent string
}

// NewHTTPTransport wraps client, or a fresh client when nil.
func NewHTTPTransport(client *http.Client, userAgent string) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{client: client, maxBody: defaultMaxBody, userAgent: userAgent}
}

// Request implements Transport.
func (t *HTTPTransport) Request(ctx context.Context, ep Endpoint, path string, opts RequestOptions) (*Response, error) {
	target, err := joinURL(ep.Base, path)
	if err != nil {
		return nil, &TransportError{Kind: OutcomeConnection, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &TransportError{Kind: OutcomeConnection, Err: err}
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	client := t.client
	if opts.Timeout > 0 {
		c := *t.client
		c.Timeout = opts.Timeout
		client = &c
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Kind: classify(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return nil, &TransportError{Kind: classify(ctx, err), Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > t.maxBody {
		return nil, &TransportError{Kind: OutcomeConnection, Err: fmt.Errorf("response body exceeds %d bytes", t.maxBody)}
	}
	return &Response{Status: resp.StatusCode, Body: body}, nil
}

func classify(ctx context.Context, err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeConnection
}
