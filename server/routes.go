package server

func (s *Server) initRoutes() {
	// OAuth entry and callback. Rate limited before anything else runs;
	// no authentication required.
	s.RegisterRouteFunc("GET "+RouteAuthGoogle,
		Chain(s.flow.Initiate, s.baseMiddleware(s.RateLimit(s.limiters.Auth))...))
	s.RegisterRouteFunc("GET "+RouteAuthCallback,
		Chain(s.flow.Callback, s.baseMiddleware(s.RateLimit(s.limiters.Auth))...))

	// Session-facing API. CSRF runs before auth so a cross-site POST is
	// rejected without touching the session store.
	s.RegisterRouteFunc("POST "+RouteAuthLogout,
		Chain(s.flow.Logout, s.baseMiddleware(s.RateLimit(s.limiters.API), CSRF, s.OptionalAuth)...))
	s.RegisterRouteFunc("GET "+RouteAuthUser,
		Chain(s.UserHandler(), s.baseMiddleware(s.RateLimit(s.limiters.API), s.OptionalAuth)...))
	s.RegisterRouteFunc("POST "+RouteAuthRefresh,
		Chain(s.RefreshHandler(), s.baseMiddleware(s.RateLimit(s.limiters.Strict), CSRF, s.RequireAuth)...))

	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthzHandler())
}

// baseMiddleware prepends the stages every route carries (request
// logging, panic recovery) to the route-specific ones.
func (s *Server) baseMiddleware(mw ...Middleware) []Middleware {
	base := []Middleware{s.LoggingMiddleware, s.RecoverMiddleware}
	return append(base, mw...)
}
