// token_store.go
// --------------
// Persistent storage for the access/refresh token pair. The store holds zero
// or one pair; Set replaces the whole pair atomically and Clear wipes it.
//
// Two implementations ship with the package: MemoryTokenStore for tests and
// short-lived processes, and KeyringTokenStore backed by the OS keyring.
package resilientclient

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/zalando/go-keyring"
)

// ErrNoTokenPair indicates the store holds no tokens.
var ErrNoTokenPair = errors.New("no token pair stored")

// TokenPair is the short-lived bearer credential plus the long-lived refresh
// credential that rotates it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// ExpiresWithin reports whether the access token is a JWT whose exp claim
// falls inside the given window. Opaque (non-JWT) tokens report false, so
// their lifecycle is driven entirely by 401 responses.
func (p TokenPair) ExpiresWithin(window time.Duration) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(p.AccessToken, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return time.Until(claims.ExpiresAt.Time) <= window
}

// TokenStore persists the token pair. Get returns ErrNoTokenPair when the
// store is empty. Implementations must serialize writes; the executor and
// refresh coordinator call them from concurrent goroutines.
type TokenStore interface {
	Get() (*TokenPair, error)
	Set(pair TokenPair) error
	Clear() error
}

// MemoryTokenStore is a mutex-guarded in-process TokenStore.
type MemoryTokenStore struct {
	mu   sync.Mutex
	pair *TokenPair
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Get() (*TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pair == nil {
		return nil, ErrNoTokenPair
	}
	pair := *s.pair
	return &pair, nil
}

func (s *MemoryTokenStore) Set(pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = &pair
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = nil
	return nil
}

const (
	// Key names within the keyring service, not credentials.
	accessTokenKey  = "access-token"  // #nosec G101
	refreshTokenKey = "refresh-token" // #nosec G101
)

// KeyringTokenStore persists the pair in the OS keyring under two keys of a
// single service name.
type KeyringTokenStore struct {
	// Service namespaces the keyring entries, e.g. "stridetrack".
	Service string
}

func NewKeyringTokenStore(service string) *KeyringTokenStore {
	return &KeyringTokenStore{Service: service}
}

func (s *KeyringTokenStore) Get() (*TokenPair, error) {
	access, err := keyring.Get(s.Service, accessTokenKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNoTokenPair
		}
		return nil, fmt.Errorf("keyring read: %w", err)
	}
	refresh, err := keyring.Get(s.Service, refreshTokenKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNoTokenPair
		}
		return nil, fmt.Errorf("keyring read: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *KeyringTokenStore) Set(pair TokenPair) error {
	if err := keyring.Set(s.Service, accessTokenKey, pair.AccessToken); err != nil {
		return fmt.Errorf("keyring write: %w", err)
	}
	if err := keyring.Set(s.Service, refreshTokenKey, pair.RefreshToken); err != nil {
		return fmt.Errorf("keyring write: %w", err)
	}
	return nil
}

func (s *KeyringTokenStore) Clear() error {
	for _, key := range []string{accessTokenKey, refreshTokenKey} {
		if err := keyring.Delete(s.Service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("keyring delete: %w", err)
		}
	}
	return nil
}
