package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/auth"
)

type memStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]auth.User
	hashes map[string]string
}

func newMemStore() *memStore {
	return &memStore{users: map[string]auth.User{}, hashes: map[string]string{}}
}

func (m *memStore) CreateUser(_ context.Context, username, email, hash string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[username]; exists {
		return auth.User{}, auth.ErrUsernameTaken
	}
	m.nextID++
	u := auth.User{ID: m.nextID, Username: username, Email: email, CreatedAt: time.Now().UTC()}
	m.users[username] = u
	m.hashes[username] = hash
	return u, nil
}

func (m *memStore) UserByUsername(_ context.Context, username string) (auth.User, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return auth.User{}, "", auth.ErrUserNotFound
	}
	return u, m.hashes[username], nil
}

func (m *memStore) UserByID(_ context.Context, id int64) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrUserNotFound
}

var cheapParams = &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newService(t *testing.T, store auth.Store) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(auth.Config{
		Store:          store,
		Secret:         "test-secret",
		AccessTokenTTL: time.Hour,
		HashParams:     cheapParams,
	})
	require.NoError(t, err)
	return svc
}
