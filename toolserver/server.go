/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package toolserver exposes the bridge's operations as named,
// schema-described tools over a JSON/HTTP channel.
//
// Each tool call is a single request/response. The access token rides in
// the Authorization header, never in tool arguments, so it cannot leak
// into logs or the agent's context window. Malformed input is rejected
// before it reaches any component.
package toolserver

import (
	"errors"
	"net/http"
	"strings"

	"chainguard.dev/gitbridge/auth/credstore"
	"chainguard.dev/gitbridge/auth/deviceflow"
	"chainguard.dev/gitbridge/githubapi"
	"github.com/chainguard-dev/clog"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var toolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gitbridge_tool_invocations_total",
	Help: "Tool invocations by tool name and outcome.",
}, []string{"tool", "outcome"})

// errNoCredential is returned by repository tools invoked without a
// bearer token while no device flow has issued a credential either.
var errNoCredential = errors.New("no access credential: supply a bearer token or complete the device flow")

// Definition describes one tool to the calling agent.
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Schema      *jsonschema.Schema `json:"input_schema"`
}

// Invocation is one validated tool call.
type Invocation struct {
	Args map[string]any
	// Token is the bearer token from the Authorization header, if any.
	Token string
}

// Tool pairs a definition with its handler.
type Tool struct {
	Def     Definition
	Handler func(ctx *gin.Context, inv *Invocation) (any, error)
}

// Option configures a Server.
type Option func(*Server)

// WithClientOptions forwards options to every GitHub client the server
// constructs. Tests use this to point at a fake API.
func WithClientOptions(opts ...githubapi.Option) Option {
	return func(s *Server) {
		s.clientOpts = opts
	}
}

// Server is the explicit session context for one bridge: the credential
// store, the device-flow controller writing into it, and the tool table.
// Multiple servers can coexist in one process without cross-talk.
type Server struct {
	store      *credstore.Store
	controller *deviceflow.Controller
	clientOpts []githubapi.Option
	tools      map[string]Tool
	order      []string
}

// New constructs a Server around the given controller and store.
func New(controller *deviceflow.Controller, store *credstore.Store, opts ...Option) *Server {
	s := &Server{
		store:      store,
		controller: controller,
		tools:      map[string]Tool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerAll()
	return s
}

// register adds a tool to the dispatch table, preserving registration
// order for listings.
func (s *Server) register(t Tool) {
	s.tools[t.Def.Name] = t
	s.order = append(s.order, t.Def.Name)
}

// Definitions returns the tool definitions in registration order.
func (s *Server) Definitions() []Definition {
	defs := make([]Definition, 0, len(s.order))
	for _, name := range s.order {
		defs = append(defs, s.tools[name].Def)
	}
	return defs
}

// Handler returns the HTTP handler serving the tool surface.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/tools", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tools": s.Definitions()})
	})
	r.POST("/tools/:name", s.invoke)

	return r
}

// requestLogger tags each request with an ID and a context logger.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		log := clog.FromContext(c.Request.Context()).
			With("request_id", id).
			With("path", c.Request.URL.Path)
		c.Header("X-Request-ID", id)
		c.Request = c.Request.WithContext(clog.WithLogger(c.Request.Context(), log))
		c.Next()
	}
}

func (s *Server) invoke(c *gin.Context) {
	name := c.Param("name")
	log := clog.FromContext(c.Request.Context()).With("tool", name)

	tool, ok := s.tools[name]
	if !ok {
		toolInvocations.WithLabelValues(name, "unknown").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": errorBody{
			Kind:    "InvalidArgumentError",
			Message: "unknown tool: " + name,
		}})
		return
	}

	args := map[string]any{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&args); err != nil {
			toolInvocations.WithLabelValues(name, "invalid").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{
				Kind:    "InvalidArgumentError",
				Message: "request body is not a JSON object: " + err.Error(),
			}})
			return
		}
	}

	if err := validateRequired(tool.Def.Schema, args); err != nil {
		toolInvocations.WithLabelValues(name, "invalid").Inc()
		status, body := classify(err)
		c.JSON(status, gin.H{"error": body})
		return
	}

	inv := &Invocation{Args: args, Token: bearerToken(c.Request)}

	result, err := tool.Handler(c, inv)
	if err != nil {
		// A 401 against the stored credential means it is no longer
		// valid; drop it so the next call prompts a fresh device flow.
		if inv.Token == "" && githubapi.IsUnauthorized(err) {
			s.store.Invalidate()
			log.Info("Stored credential rejected upstream; invalidated")
		}
		status, body := classify(err)
		toolInvocations.WithLabelValues(name, body.Kind).Inc()
		log.With("kind", body.Kind).With("error", err.Error()).Warn("Tool call failed")
		c.JSON(status, gin.H{"error": body})
		return
	}

	toolInvocations.WithLabelValues(name, "ok").Inc()
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// validateRequired rejects calls missing any schema-required argument.
func validateRequired(schema *jsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			return &InvalidArgumentError{Field: name, Reason: "required"}
		}
	}
	return nil
}

// bearerToken pulls the access token out of the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// clientsFor builds the GitHub client pair for one invocation. The
// header token wins; absent that, the credential issued by the device
// flow is used.
func (s *Server) clientsFor(c *gin.Context, inv *Invocation) (*githubapi.Clients, error) {
	token := inv.Token
	if token == "" {
		cred, ok := s.store.Get()
		if !ok {
			return nil, errNoCredential
		}
		token = cred.Token
	}
	return githubapi.NewClients(c.Request.Context(), token, s.clientOpts...)
}
