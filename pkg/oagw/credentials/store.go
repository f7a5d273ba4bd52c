// Package credentials holds the in-process credential store: opaque
// secret material keyed by credential id, read by auth plugins at
// request time and never returned to callers.
package credentials

import (
	"fmt"
	"sync"

	oagwerrors "github.com/stacklok/oagw/pkg/errors"
	"github.com/stacklok/oagw/pkg/oagw"
)

// Store is the process-lifetime credential map. It carries no
// persistence: restarting the gateway loses every credential not
// reloaded from config at startup (spec.md §3 "credentials" config key).
type Store struct {
	mu   sync.RWMutex
	byID map[string]oagw.Credential
}

// NewStore constructs an empty credential store.
func NewStore() *Store {
	return &Store{byID: make(map[string]oagw.Credential)}
}

// Put inserts or replaces the credential under id.
func (s *Store) Put(id string, cred oagw.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred.ID = id
	s.byID[id] = cred
}

// Get returns the credential for id, or NotFound.
func (s *Store) Get(id string) (oagw.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.byID[id]
	if !ok {
		return oagw.Credential{}, oagwerrors.NewNotFoundError(fmt.Sprintf("credential %q not found", id), nil)
	}
	return cred, nil
}

// Delete removes id, if present. Deleting an id no plugin references is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

// Has reports whether id is currently stored, without exposing the secret.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// LoadFromConfig seeds the store from the raw string map the config
// loader produces (spec.md §6 "credentials"), tagging every entry "opaque".
func (s *Store) LoadFromConfig(raw map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, secret := range raw {
		s.byID[id] = oagw.Credential{ID: id, Secret: []byte(secret), Kind: "opaque"}
	}
}
