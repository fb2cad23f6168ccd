package session

import (
	"context"
	"encoding/json"
	"maps"
)

// CartKey is the session field holding the cart.
const CartKey = "cart"

// Session is a server-side session: a bag of JSON values keyed by name.
type Session struct {
	id       string
	values   map[string]json.RawMessage
	modified bool
	fresh    bool
}

// New returns an empty, unsaved session with the given id.
func New(id string) *Session {
	return &Session{id: id, values: map[string]json.RawMessage{}, fresh: true}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// IsNew reports whether the session has not been persisted yet.
func (s *Session) IsNew() bool { return s.fresh }

// Modified reports whether the session must be persisted.
func (s *Session) Modified() bool { return s.modified }

// MarkModified flags the session for persistence.
func (s *Session) MarkModified() { s.modified = true }

// Raw returns the stored JSON for key.
func (s *Session) Raw(key string) ([]byte, bool) {
	v, ok := s.values[key]
	return v, ok
}

// SetRaw stores already-encoded JSON under key. It does not mark the session modified.
func (s *Session) SetRaw(key string, data []byte) {
	s.values[key] = json.RawMessage(data)
}

// Get decodes the value stored under key into dst and reports whether it existed.
func (s *Session) Get(key string, dst any) (bool, error) {
	raw, ok := s.values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, err
	}
	return true, nil
}

// Set encodes v under key and marks the session modified.
func (s *Session) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.values[key] = data
	s.modified = true
	return nil
}

// Delete removes key and marks the session modified.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.modified = true
	}
}

// CartData implements cart.SessionStore.
func (s *Session) CartData() ([]byte, bool) { return s.Raw(CartKey) }

// SetCartData implements cart.SessionStore.
func (s *Session) SetCartData(data []byte) { s.SetRaw(CartKey, data) }

func (s *Session) snapshot() map[string]json.RawMessage {
	return maps.Clone(s.values)
}

type ctxKey struct{}

// WithSession stores s on the context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request session. When the session middleware did not run it
// returns a detached empty session so read paths never fail.
func FromContext(ctx context.Context) *Session {
	if ctx != nil {
		if s, ok := ctx.Value(ctxKey{}).(*Session); ok && s != nil {
			return s
		}
	}
	return New("")
}
