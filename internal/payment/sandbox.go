package payment

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Sandbox is an in-process Provider for local development and tests. It issues
// deterministic-looking session ids and never contacts a network service.
type Sandbox struct {
	BaseURL string
	// Paid controls CheckoutSessionPaid; nil means every session is paid.
	Paid func(sessionID string) bool

	mu       sync.Mutex
	requests []CheckoutRequest
	byID     map[string]CheckoutRequest
}

func (s *Sandbox) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if len(req.Items) == 0 {
		return CheckoutSession{}, errors.New("sandbox: no line items")
	}
	id := "cs_sandbox_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	s.mu.Lock()
	s.requests = append(s.requests, req)
	if s.byID == nil {
		s.byID = map[string]CheckoutRequest{}
	}
	s.byID[id] = req
	s.mu.Unlock()

	base := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if base == "" {
		base = "https://checkout.sandbox.invalid"
	}
	return CheckoutSession{ID: id, URL: base + "/pay/" + id}, nil
}

func (s *Sandbox) CheckoutSessionPaid(_ context.Context, sessionID string) (bool, error) {
	if !strings.HasPrefix(sessionID, "cs_sandbox_") {
		return false, nil
	}
	if s.Paid == nil {
		return true, nil
	}
	return s.Paid(sessionID), nil
}

// Requests returns the checkout requests received so far.
func (s *Sandbox) Requests() []CheckoutRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CheckoutRequest(nil), s.requests...)
}

// Pay simulates the hosted payment page: the last path segment names the session
// and the browser is sent to its success URL.
func (s *Sandbox) Pay(w http.ResponseWriter, r *http.Request) {
	id := path.Base(r.URL.Path)
	s.mu.Lock()
	req, ok := s.byID[id]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	target := strings.ReplaceAll(req.SuccessURL, "{CHECKOUT_SESSION_ID}", id)
	http.Redirect(w, r, target, http.StatusSeeOther)
}
