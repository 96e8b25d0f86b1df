// Package tokenstore persists the session credential between runs.
//
// The store never inspects token contents. All operations are synchronous and local.
package tokenstore

import "sync"

// Fixed storage keys for the two halves of a credential
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
)

// Credential is the opaque bearer token pair issued at login
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Empty reports whether the credential carries no access token
func (c Credential) Empty() bool {
	return c.AccessToken == ""
}

// Store persists a single credential.
//
// Load returns ok=false with a nil error when nothing is stored.
type Store interface {
	Save(cred Credential) error
	Load() (Credential, bool, error)
	Clear() error
}

// MemoryStore keeps the credential in process memory.
// It backs tests and one-shot runs that must not touch disk.
type MemoryStore struct {
	mu   sync.RWMutex
	cred Credential
	set  bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save replaces the stored credential
func (m *MemoryStore) Save(cred Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = cred
	m.set = !cred.Empty()
	return nil
}

// Load returns the stored credential
func (m *MemoryStore) Load() (Credential, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred, m.set, nil
}

// Clear removes the stored credential
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = Credential{}
	m.set = false
	return nil
}
