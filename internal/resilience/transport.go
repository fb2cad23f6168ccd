package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Transport is an http.RoundTripper guarded by a Breaker. Transport errors and
// 5xx responses count as failures; caller cancellation does not. Requests are
// never retried.
type Transport struct {
	Base    http.RoundTripper
	Breaker *Breaker
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Breaker == nil {
		return base.RoundTrip(req)
	}
	ctx := req.Context()
	if !t.Breaker.Allow(ctx) {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Host, ErrOpenCircuit)
	}
	resp, err := base.RoundTrip(req)
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)):
		t.Breaker.Abandon()
	case err != nil:
		t.Breaker.Report(ctx, false)
	case resp.StatusCode >= http.StatusInternalServerError:
		t.Breaker.Report(ctx, false)
	default:
		t.Breaker.Report(ctx, true)
	}
	return resp, err
}
