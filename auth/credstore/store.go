/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package credstore holds the access credential for a bridge session.
//
// A credential is either absent or assumed good enough to attempt one
// call; expiry and revocation are discovered reactively when an API call
// comes back 401, not tracked proactively. Credentials are never
// persisted by this process.
package credstore

import (
	"sync"
	"time"
)

// Credential is an access token together with the metadata recorded when
// it was issued. The token is opaque to the bridge.
type Credential struct {
	Token      string
	ObtainedAt time.Time
	Scopes     []string
}

// Store is the per-session credential holder. Writes happen only at the
// terminal transitions of an auth flow (issue, invalidate); reads happen
// on every outbound API call, so the lock is a RWMutex.
type Store struct {
	mu   sync.RWMutex
	cred *Credential
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Set installs a credential, replacing any previous one.
func (s *Store) Set(cred Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = &cred
}

// Get returns the current credential. The second return is false when no
// credential has been issued or the last one was invalidated.
func (s *Store) Get() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return Credential{}, false
	}
	return *s.cred, true
}

// Invalidate drops the current credential. Called when an API response
// indicates the token is no longer honored.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
}
