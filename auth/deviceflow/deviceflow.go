/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package deviceflow implements the OAuth 2.0 Device Authorization Grant
// against GitHub's device endpoints.
//
// The flow needs only a public client ID: no client secret is ever stored
// or transmitted. The user code and verification URI are surfaced to the
// human operator out-of-band (the operator log), never through the agent
// channel, so the agent cannot relay the verification step faster than a
// human can act on it.
package deviceflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chainguard.dev/gitbridge/auth/credstore"
	"github.com/chainguard-dev/clog"
)

const (
	// DefaultDeviceCodeURL is GitHub's device authorization endpoint.
	DefaultDeviceCodeURL = "https://github.com/login/device/code"
	// DefaultTokenURL is GitHub's token endpoint.
	DefaultTokenURL = "https://github.com/login/oauth/access_token"

	grantType = "urn:ietf:params:oauth:grant-type:device_code"
)

// Status is the state of a device authorization session.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSlowDown Status = "slow_down"
	StatusApproved Status = "approved"
	StatusExpired  Status = "expired"
	StatusDenied   Status = "denied"
)

// Session is the state of one device authorization attempt. It is created
// by Start, mutated only by Poll, and discarded on any terminal status.
type Session struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	ExpiresAt       time.Time
	Interval        time.Duration
	Status          Status
}

// Option configures a Controller.
type Option func(*Controller)

// WithEndpoints overrides the device-code and token endpoints. Used by
// tests and GitHub Enterprise deployments.
func WithEndpoints(deviceCodeURL, tokenURL string) Option {
	return func(c *Controller) {
		c.deviceCodeURL = deviceCodeURL
		c.tokenURL = tokenURL
	}
}

// WithHTTPClient overrides the HTTP client used for both endpoints.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Controller) {
		c.client = hc
	}
}

// Controller drives the device-flow state machine and writes the
// resulting credential into the Store. At most one Session is tracked at
// a time: starting a new flow abandons the previous one (the protocol
// offers no server-side cancellation).
type Controller struct {
	clientID      string
	deviceCodeURL string
	tokenURL      string
	client        *http.Client
	store         *credstore.Store

	mu      sync.Mutex
	current *Session
	polling bool
}

// NewController returns a Controller for the given public client ID,
// writing issued credentials to store.
func NewController(clientID string, store *credstore.Store, opts ...Option) *Controller {
	c := &Controller{
		clientID:      clientID,
		deviceCodeURL: DefaultDeviceCodeURL,
		tokenURL:      DefaultTokenURL,
		client:        http.DefaultClient,
		store:         store,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// deviceCodeResponse is the wire shape of the device authorization
// endpoint's response.
type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// tokenResponse is the wire shape of the token endpoint's response. On a
// pending or failed poll, Error is set and AccessToken is empty.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
	Interval    int    `json:"interval"`
}

// Start begins a device authorization flow for the requested scopes. Any
// in-flight session is abandoned. The user code and verification URI are
// logged for the operator; callers relaying the session to an agent must
// not include them.
func (c *Controller) Start(ctx context.Context, scopes []string) (*Session, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("scope", strings.Join(scopes, " "))

	body, status, err := c.postForm(ctx, c.deviceCodeURL, form)
	if err != nil {
		return nil, &InitError{Err: err}
	}
	if status != http.StatusOK {
		return nil, &InitError{Err: fmt.Errorf("%s returned %d: %s", c.deviceCodeURL, status, string(body))}
	}

	var dc deviceCodeResponse
	if err := json.Unmarshal(body, &dc); err != nil {
		return nil, &InitError{Err: fmt.Errorf("parsing device code response: %w", err)}
	}
	if dc.DeviceCode == "" {
		return nil, &InitError{Err: fmt.Errorf("device code missing from response")}
	}
	if dc.Interval <= 0 {
		dc.Interval = 5
	}

	session := &Session{
		DeviceCode:      dc.DeviceCode,
		UserCode:        dc.UserCode,
		VerificationURI: dc.VerificationURI,
		ExpiresAt:       time.Now().Add(time.Duration(dc.ExpiresIn) * time.Second),
		Interval:        time.Duration(dc.Interval) * time.Second,
		Status:          StatusPending,
	}

	c.mu.Lock()
	if c.current != nil {
		clog.FromContext(ctx).With("user_code", c.current.UserCode).
			Info("Abandoning unresolved device session")
	}
	c.current = session
	c.mu.Unlock()

	clog.FromContext(ctx).With("verification_uri", session.VerificationURI).
		With("user_code", session.UserCode).
		With("expires_at", session.ExpiresAt.Format(time.RFC3339)).
		Info("Device flow started; have the operator enter the code")

	return session, nil
}

// Session returns the currently tracked session, or nil if none.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Poll polls the token endpoint at the session's interval until the flow
// resolves. It honors server-directed backoff (slow_down) and has no
// upper bound beyond the host-issued expiry; callers wanting a hard
// deadline cancel ctx. On approval the credential is written to the
// store, the session is discarded, and the credential returned. On any
// terminal failure the session is discarded and a typed error returned.
// Cancellation between ticks abandons the session without issuing a
// partial credential.
//
// A session has a single poller: the session is mutated only by the
// poll loop, so a second concurrent Poll is rejected with
// ErrPollInProgress rather than racing the first.
func (c *Controller) Poll(ctx context.Context, session *Session) (credstore.Credential, error) {
	c.mu.Lock()
	if c.polling {
		c.mu.Unlock()
		return credstore.Credential{}, ErrPollInProgress
	}
	c.polling = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.polling = false
		c.mu.Unlock()
	}()

	log := clog.FromContext(ctx)

	for {
		if !time.Now().Before(session.ExpiresAt) {
			session.Status = StatusExpired
			c.discard(session)
			return credstore.Credential{}, &ExpiredError{ExpiredAt: session.ExpiresAt}
		}

		tok, err := c.pollOnce(ctx, session)
		if err != nil {
			c.discard(session)
			return credstore.Credential{}, err
		}
		if tok != nil {
			session.Status = StatusApproved
			cred := credstore.Credential{
				Token:      tok.AccessToken,
				ObtainedAt: time.Now(),
				Scopes:     splitScopes(tok.Scope),
			}
			c.store.Set(cred)
			c.discard(session)
			log.Info("Device flow approved, credential issued")
			return cred, nil
		}

		select {
		case <-ctx.Done():
			c.discard(session)
			return credstore.Credential{}, ctx.Err()
		case <-time.After(session.Interval):
		}
	}
}

// pollOnce makes one token-endpoint request. It returns a non-nil token
// on approval, (nil, nil) when polling should continue, and a terminal
// error otherwise. slow_down increases the session interval in place.
func (c *Controller) pollOnce(ctx context.Context, session *Session) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("device_code", session.DeviceCode)
	form.Set("grant_type", grantType)

	body, status, err := c.postForm(ctx, c.tokenURL, form)
	if err != nil {
		// Transient transport trouble during a poll is not terminal;
		// the next tick retries.
		clog.FromContext(ctx).With("error", err.Error()).Warn("Token poll failed, will retry")
		return nil, nil
	}

	// Token errors may arrive with HTTP 400 on standards-following
	// hosts; the error field in the body decides, not the status.
	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		clog.FromContext(ctx).With("error", err.Error()).Warn("Unparseable token response, will retry")
		return nil, nil
	}
	if status != http.StatusOK && tok.Error == "" {
		clog.FromContext(ctx).With("status", status).Warn("Token endpoint unavailable, will retry")
		return nil, nil
	}

	switch tok.Error {
	case "":
		if tok.AccessToken == "" {
			return nil, nil
		}
		return &tok, nil
	case "authorization_pending":
		session.Status = StatusPending
		return nil, nil
	case "slow_down":
		session.Status = StatusSlowDown
		increment := 5 * time.Second
		if tok.Interval > 0 {
			increment = time.Duration(tok.Interval)*time.Second - session.Interval
			if increment < 0 {
				increment = 5 * time.Second
			}
		}
		session.Interval += increment
		return nil, nil
	case "expired_token":
		session.Status = StatusExpired
		return nil, &ExpiredError{ExpiredAt: session.ExpiresAt}
	case "access_denied":
		session.Status = StatusDenied
		return nil, &DeniedError{UserCode: session.UserCode}
	default:
		session.Status = StatusDenied
		return nil, &DeniedError{UserCode: session.UserCode, Reason: tok.Error}
	}
}

// discard drops the session from the controller if it is still current.
func (c *Controller) discard(session *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == session {
		c.current = nil
	}
}

// postForm posts the form and returns the response body and status.
// The error covers request construction and transport failures only;
// callers interpret the status, since RFC 8628 hosts deliver token
// errors with HTTP 400 while github.com answers 200.
func (c *Controller) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("posting to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func splitScopes(s string) []string {
	if s == "" {
		return nil
	}
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}
