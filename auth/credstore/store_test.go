/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package credstore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStoreLifecycle(t *testing.T) {
	s := NewStore()

	_, ok := s.Get()
	require.False(t, ok, "empty store reported a credential")

	cred := Credential{
		Token:      "gho_testtoken",
		ObtainedAt: time.Now(),
		Scopes:     []string{"repo"},
	}
	s.Set(cred)

	got, ok := s.Get()
	require.True(t, ok, "expected a credential after Set")
	require.Equal(t, cred.Token, got.Token)
	require.Equal(t, cred.Scopes, got.Scopes)

	s.Invalidate()
	_, ok = s.Get()
	require.False(t, ok, "expected no credential after Invalidate")
}

func TestStoreReplacesCredential(t *testing.T) {
	s := NewStore()
	s.Set(Credential{Token: "first"})
	s.Set(Credential{Token: "second"})

	got, ok := s.Get()
	require.True(t, ok, "expected a credential")
	require.Equal(t, "second", got.Token)
}

func TestStoreConcurrentReaders(t *testing.T) {
	s := NewStore()
	s.Set(Credential{Token: "shared"})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got, ok := s.Get(); !ok || got.Token != "shared" {
				t.Errorf("Get() = (%q, %v), want (shared, true)", got.Token, ok)
			}
		}()
	}
	wg.Wait()
}
