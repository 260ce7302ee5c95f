// Package server wires the HTTP surface: routes, the authentication
// middleware chain, and per-route rate limiting.
package server

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/pulsetrack/pulsetrack/auth"
	"github.com/pulsetrack/pulsetrack/internal/config"
	"github.com/pulsetrack/pulsetrack/ratelimit"
	"github.com/pulsetrack/pulsetrack/sessions"
)

// Limiters holds the named rate-limiter tiers routes choose from.
type Limiters struct {
	Strict *ratelimit.Limiter
	Auth   *ratelimit.Limiter
	API    *ratelimit.Limiter
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	flow     *auth.Flow
	sessions *sessions.Manager
	limiters Limiters
}

func New(cfg config.Config, flow *auth.Flow, sessionManager *sessions.Manager, limiters Limiters) (*Server, error) {
	if flow == nil {
		return nil, errors.New("[Server New] flow is required")
	}
	if sessionManager == nil {
		return nil, errors.New("[Server New] session manager is required")
	}
	if limiters.Strict == nil || limiters.Auth == nil || limiters.API == nil {
		return nil, errors.New("[Server New] strict, auth, and api limiters are required")
	}

	s := &Server{
		mux:      http.NewServeMux(),
		config:   cfg,
		flow:     flow,
		sessions: sessionManager,
		limiters: limiters,
	}
	s.env = cfg.Env

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			log.Debug().Str("method", parts[0]).Str("path", parts[1]).Msg("route registered")
		} else {
			log.Debug().Str("path", parts[0]).Msg("route registered")
		}
	}
}
