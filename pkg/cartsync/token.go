package cartsync

import (
	"strings"
	"sync"
)

// TokenProvider supplies the API token of the signed-in user. An empty token means the cart is anonymous
// and lives only on this device.
type TokenProvider interface {
	Token() string
}

// MemoryTokenStore holds the token in memory.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryTokenStore(token string) *MemoryTokenStore {
	return &MemoryTokenStore{token: strings.TrimSpace(token)}
}

func (s *MemoryTokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemoryTokenStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
}

func (s *MemoryTokenStore) Clear() {
	s.Set("")
}
