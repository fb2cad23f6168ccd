package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultCookieName = "sessionid"
	defaultTTL        = 14 * 24 * time.Hour
	defaultPrefix     = "session:"
)

// Manager loads and persists sessions in Redis, identified by a cookie.
type Manager struct {
	Client     *redis.Client
	TTL        time.Duration
	CookieName string
	Secure     bool
	SameSite   http.SameSite
	Prefix     string
	Logger     zerolog.Logger
}

func (m *Manager) ttl() time.Duration {
	if m.TTL <= 0 {
		return defaultTTL
	}
	return m.TTL
}

func (m *Manager) cookieName() string {
	if strings.TrimSpace(m.CookieName) == "" {
		return defaultCookieName
	}
	return m.CookieName
}

func (m *Manager) key(id string) string {
	prefix := m.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return prefix + id
}

// Load returns the session referenced by the request cookie, or a new one when the cookie
// is absent or the stored session has expired.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	if m == nil || m.Client == nil {
		return nil, errors.New("session manager not configured")
	}
	cookie, err := r.Cookie(m.cookieName())
	if err != nil || !validID(cookie.Value) {
		return New(uuid.NewString()), nil
	}
	data, err := m.Client.Get(ctx, m.key(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return New(uuid.NewString()), nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	values := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &values); err != nil {
		m.Logger.Warn().Err(err).Msg("discard undecodable session")
		return New(uuid.NewString()), nil
	}
	return &Session{id: cookie.Value, values: values}, nil
}

// Commit persists a modified session and (re)issues the cookie. It must run before the
// response body is written. Unmodified sessions are left alone.
func (m *Manager) Commit(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if s == nil || !s.Modified() {
		return nil
	}
	if m == nil || m.Client == nil {
		return errors.New("session manager not configured")
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	data, err := json.Marshal(s.snapshot())
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := m.Client.Set(ctx, m.key(s.id), data, m.ttl()).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.modified = false
	s.fresh = false
	m.setCookie(w, s.id, int(m.ttl().Seconds()))
	return nil
}

// Rotate moves the session data to a fresh id, used on login to prevent fixation.
func (m *Manager) Rotate(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	if m != nil && m.Client != nil && s.id != "" && !s.fresh {
		if err := m.Client.Del(ctx, m.key(s.id)).Err(); err != nil {
			return fmt.Errorf("rotate session: %w", err)
		}
	}
	s.id = uuid.NewString()
	s.modified = true
	return nil
}

// Destroy deletes the stored session, empties it, and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if m == nil || s == nil {
		return nil
	}
	if m.Client != nil && s.id != "" {
		if err := m.Client.Del(ctx, m.key(s.id)).Err(); err != nil {
			return fmt.Errorf("destroy session: %w", err)
		}
	}
	s.values = map[string]json.RawMessage{}
	s.modified = false
	s.fresh = true
	s.id = uuid.NewString()
	m.setCookie(w, "", -1)
	return nil
}

// Middleware attaches the request session to the context. Redis failures fall back to an
// empty session so catalog browsing keeps working.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Load(r.Context(), r)
		if err != nil {
			m.Logger.Error().Err(err).Msg("load session")
			s = New(uuid.NewString())
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

func (m *Manager) setCookie(w http.ResponseWriter, value string, maxAge int) {
	sameSite := m.SameSite
	if sameSite == http.SameSiteDefaultMode {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName(),
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: sameSite,
	})
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
