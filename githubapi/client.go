/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package githubapi is the shared transport plumbing for talking to
// GitHub: authenticated client construction, transient-failure retry
// with bounded backoff, and error classification. Authoritative 4xx
// rejections (stale SHA, denied auth, validation failures) are never
// retried; only 5xx and connection-level failures are.
package githubapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// Clients bundles the REST and GraphQL clients that share one token.
type Clients struct {
	REST    *github.Client
	GraphQL *githubv4.Client
}

// Option configures client construction.
type Option func(*settings)

type settings struct {
	baseURL    string
	graphqlURL string
}

// WithBaseURL points the REST client at a non-default API root. Used by
// tests and GitHub Enterprise deployments.
func WithBaseURL(u string) Option {
	return func(s *settings) { s.baseURL = u }
}

// WithGraphQLURL points the GraphQL client at a non-default endpoint.
func WithGraphQLURL(u string) Option {
	return func(s *settings) { s.graphqlURL = u }
}

// NewClients builds REST and GraphQL clients authenticated with the
// given access token. The token rides in the Authorization header via an
// oauth2 static token source; it never appears in URLs or bodies.
func NewClients(ctx context.Context, token string, opts ...Option) (*Clients, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	hc := oauth2.NewClient(ctx, ts)

	rest := github.NewClient(hc)
	if s.baseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(s.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing base URL: %w", err)
		}
		rest.BaseURL = base
	}

	var gql *githubv4.Client
	if s.graphqlURL != "" {
		gql = githubv4.NewEnterpriseClient(s.graphqlURL, hc)
	} else {
		gql = githubv4.NewClient(hc)
	}

	return &Clients{REST: rest, GraphQL: gql}, nil
}
