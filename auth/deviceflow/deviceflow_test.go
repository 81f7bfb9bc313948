/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package deviceflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"chainguard.dev/gitbridge/auth/credstore"
)

// fakeAuthHost simulates GitHub's device-code and token endpoints. The
// token endpoint replays the scripted responses in order, serving the
// last one repeatedly.
type fakeAuthHost struct {
	mu        sync.Mutex
	responses []map[string]any
	polls     int
	expiresIn int
	interval  int
}

func (f *fakeAuthHost) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/device/code", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		if got := r.PostFormValue("client_id"); got != "test-client" {
			t.Errorf("client_id = %q, want test-client", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"device_code":      "dc-123",
			"user_code":        "ABCD-1234",
			"verification_uri": "https://github.com/login/device",
			"expires_in":       f.expiresIn,
			"interval":         f.interval,
		})
	})
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		idx := min(f.polls, len(f.responses)-1)
		f.polls++
		json.NewEncoder(w).Encode(f.responses[idx])
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestController(t *testing.T, host *fakeAuthHost) (*Controller, *credstore.Store) {
	t.Helper()
	srv := host.server(t)
	store := credstore.NewStore()
	c := NewController("test-client", store,
		WithEndpoints(srv.URL+"/login/device/code", srv.URL+"/login/oauth/access_token"))
	return c, store
}

func TestStart(t *testing.T) {
	host := &fakeAuthHost{expiresIn: 900, interval: 5}
	c, _ := newTestController(t, host)

	session, err := c.Start(context.Background(), []string{"repo"})
	if err != nil {
		t.Fatal(err)
	}
	if session.DeviceCode != "dc-123" {
		t.Errorf("DeviceCode = %q, want dc-123", session.DeviceCode)
	}
	if session.UserCode != "ABCD-1234" {
		t.Errorf("UserCode = %q, want ABCD-1234", session.UserCode)
	}
	if session.Status != StatusPending {
		t.Errorf("Status = %q, want %q", session.Status, StatusPending)
	}
	if session.Interval != 5*time.Second {
		t.Errorf("Interval = %v, want 5s", session.Interval)
	}
	if c.Session() != session {
		t.Error("controller is not tracking the started session")
	}
}

func TestStartAbandonsPriorSession(t *testing.T) {
	host := &fakeAuthHost{expiresIn: 900, interval: 5}
	c, _ := newTestController(t, host)

	first, err := c.Start(context.Background(), []string{"repo"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Start(context.Background(), []string{"repo"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Session() == first {
		t.Error("controller still tracks the abandoned session")
	}
	if c.Session() != second {
		t.Error("controller does not track the new session")
	}
}

func TestStartMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unexpected": true}`))
	}))
	t.Cleanup(srv.Close)

	c := NewController("test-client", credstore.NewStore(),
		WithEndpoints(srv.URL, srv.URL))

	_, err := c.Start(context.Background(), nil)
	var initErr *InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("Start() error = %v, want InitError", err)
	}
}

func TestPollApproved(t *testing.T) {
	host := &fakeAuthHost{
		expiresIn: 900,
		interval:  1,
		responses: []map[string]any{
			{"error": "authorization_pending"},
			{"error": "authorization_pending"},
			{"access_token": "gho_issued", "token_type": "bearer", "scope": "repo,read:org"},
		},
	}
	c, store := newTestController(t, host)

	session, err := c.Start(context.Background(), []string{"repo"})
	if err != nil {
		t.Fatal(err)
	}
	session.Interval = 5 * time.Millisecond

	cred, err := c.Poll(context.Background(), session)
	if err != nil {
		t.Fatal(err)
	}
	if cred.Token != "gho_issued" {
		t.Errorf("Token = %q, want gho_issued", cred.Token)
	}
	if len(cred.Scopes) != 2 {
		t.Errorf("Scopes = %v, want two entries", cred.Scopes)
	}
	if session.Status != StatusApproved {
		t.Errorf("Status = %q, want %q", session.Status, StatusApproved)
	}

	// The credential landed in the store and the session was discarded.
	stored, ok := store.Get()
	if !ok || stored.Token != "gho_issued" {
		t.Errorf("store credential = (%q, %v), want (gho_issued, true)", stored.Token, ok)
	}
	if c.Session() != nil {
		t.Error("session still tracked after approval")
	}
}

func TestPollSlowDown(t *testing.T) {
	host := &fakeAuthHost{
		expiresIn: 900,
		interval:  1,
		responses: []map[string]any{
			{"error": "slow_down", "interval": 10},
			{"access_token": "gho_issued", "token_type": "bearer", "scope": "repo"},
		},
	}
	c, _ := newTestController(t, host)

	session, err := c.Start(context.Background(), []string{"repo"})
	if err != nil {
		t.Fatal(err)
	}
	before := session.Interval
	session.ExpiresAt = time.Now().Add(time.Minute)

	// Drive one poll directly to observe the backoff without sleeping
	// through the enlarged interval.
	tok, err := c.pollOnce(context.Background(), session)
	if err != nil {
		t.Fatal(err)
	}
	if tok != nil {
		t.Fatal("pollOnce returned a token on slow_down")
	}
	if session.Status != StatusSlowDown {
		t.Errorf("Status = %q, want %q", session.Status, StatusSlowDown)
	}
	if session.Interval <= before {
		t.Errorf("Interval = %v, want greater than %v", session.Interval, before)
	}
}

func TestPollDenied(t *testing.T) {
	host := &fakeAuthHost{
		expiresIn: 900,
		interval:  1,
		responses: []map[string]any{{"error": "access_denied"}},
	}
	c, store := newTestController(t, host)

	session, err := c.Start(context.Background(), []string{"repo"})
	if err != nil {
		t.Fatal(err)
	}
	session.Interval = 5 * time.Millisecond

	_, err = c.Poll(context.Background(), session)
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("Poll() error = %v, want DeniedError", err)
	}
	if denied.UserCode != "ABCD-1234" {
		t.Errorf("DeniedError.UserCode = %q, want ABCD-1234", denied.UserCode)
	}
	if session.Status != StatusDenied {
		t.Errorf("Status = %q, want %q", session.Status, StatusDenied)
	}
	if _, ok := store.Get(); ok {
		t.Error("store holds a credential after denial")
	}
	if c.Session() != nil {
		t.Error("session still tracked after denial")
	}
}

func TestPollExpired(t *testing.T) {
	host := &fakeAuthHost{
		expiresIn: 900,
		interval:  1,
		responses: []map[string]any{{"error": "authorization_pending"}},
	}
	c, store := newTestController(t, host)

	session, err := c.Start(context.Background(), []string{"repo"})
	if err != nil {
		t.Fatal(err)
	}
	session.ExpiresAt = time.Now().Add(-time.Second)

	_, err = c.Poll(context.Background(), session)
	var expired *ExpiredError
	if !errors.As(err, &expired) {
		t.Fatalf("Poll() error = %v, want ExpiredError", err)
	}
	if session.Status != StatusExpired {
		t.Errorf("Status = %q, want %q", session.Status, StatusExpired)
	}
	if _, ok := store.Get(); ok {
		t.Error("store holds a credential after expiry")
	}
}

// newControllerWithTokenHandler wires a controller against the standard
// device-code endpoint and a custom token endpoint.
func newControllerWithTokenHandler(t *testing.T, handler http.HandlerFunc) *Controller {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/device/code", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"device_code":      "dc-123",
			"user_code":        "ABCD-1234",
			"verification_uri": "https://github.com/login/device",
			"expires_in":       900,
			"interval":         1,
		})
	})
	mux.HandleFunc("/login/oauth/access_token", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewController("test-client", credstore.NewStore(),
		WithEndpoints(srv.URL+"/login/device/code", srv.URL+"/login/oauth/access_token"))
}

func TestPollRejectsConcurrentPoll(t *testing.T) {
	firstPoll := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	c := newControllerWithTokenHandler(t, func(w http.ResponseWriter, r *http.Request) {
		// Hold the first poll open so the second caller arrives while
		// it is in flight.
		once.Do(func() {
			close(firstPoll)
			<-release
		})
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "gho_issued", "token_type": "bearer", "scope": "repo",
		})
	})

	session, err := c.Start(context.Background(), []string{"repo"})
	if err != nil {
		t.Fatal(err)
	}
	session.Interval = time.Millisecond

	type pollResult struct {
		cred credstore.Credential
		err  error
	}
	done := make(chan pollResult, 1)
	go func() {
		cred, err := c.Poll(context.Background(), session)
		done <- pollResult{cred, err}
	}()

	<-firstPoll
	if _, err := c.Poll(context.Background(), session); !errors.Is(err, ErrPollInProgress) {
		t.Errorf("second Poll() error = %v, want ErrPollInProgress", err)
	}
	// The rejected caller must not have torn down the session the first
	// poller is still working on.
	if c.Session() != session {
		t.Error("rejected Poll discarded the in-flight session")
	}

	close(release)
	res := <-done
	if res.err != nil {
		t.Fatal(res.err)
	}
	if res.cred.Token != "gho_issued" {
		t.Errorf("Token = %q, want gho_issued", res.cred.Token)
	}
}

func TestPollTerminalErrorsWithHTTP400(t *testing.T) {
	// RFC 8628 hosts deliver token errors with HTTP 400; the state
	// machine must still terminate on them.
	for _, tc := range []struct {
		name     string
		oauthErr string
		check    func(t *testing.T, err error)
	}{
		{"access denied", "access_denied", func(t *testing.T, err error) {
			var denied *DeniedError
			if !errors.As(err, &denied) {
				t.Fatalf("Poll() error = %v, want DeniedError", err)
			}
		}},
		{"expired token", "expired_token", func(t *testing.T, err error) {
			var expired *ExpiredError
			if !errors.As(err, &expired) {
				t.Fatalf("Poll() error = %v, want ExpiredError", err)
			}
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := newControllerWithTokenHandler(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]any{"error": tc.oauthErr})
			})

			session, err := c.Start(context.Background(), []string{"repo"})
			if err != nil {
				t.Fatal(err)
			}
			session.Interval = time.Millisecond

			_, err = c.Poll(context.Background(), session)
			tc.check(t, err)
		})
	}
}

func TestPollOnceRetriesServerError(t *testing.T) {
	c := newControllerWithTokenHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"message": "upstream unavailable"})
	})

	session, err := c.Start(context.Background(), []string{"repo"})
	if err != nil {
		t.Fatal(err)
	}
	session.ExpiresAt = time.Now().Add(time.Minute)

	// A 5xx with no OAuth error body is transport noise; the loop keeps
	// ticking rather than terminating.
	tok, err := c.pollOnce(context.Background(), session)
	if err != nil {
		t.Fatalf("pollOnce() error = %v, want nil", err)
	}
	if tok != nil {
		t.Fatal("pollOnce() returned a token from a 503")
	}
}

func TestPollCancelled(t *testing.T) {
	host := &fakeAuthHost{
		expiresIn: 900,
		interval:  1,
		responses: []map[string]any{{"error": "authorization_pending"}},
	}
	c, store := newTestController(t, host)

	session, err := c.Start(context.Background(), []string{"repo"})
	if err != nil {
		t.Fatal(err)
	}
	session.Interval = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = c.Poll(ctx, session)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Poll() error = %v, want context.Canceled", err)
	}
	// Cancellation abandons the session without a partial credential.
	if _, ok := store.Get(); ok {
		t.Error("store holds a credential after cancellation")
	}
	if c.Session() != nil {
		t.Error("session still tracked after cancellation")
	}
}
