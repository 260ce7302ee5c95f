package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes
	RouteAuthGoogle   = "/auth/google"
	RouteAuthCallback = "/auth/google/callback"
	RouteAuthLogout   = "/auth/logout"
	RouteAuthUser     = "/auth/user"
	RouteAuthRefresh  = "/auth/refresh"

	// Operational Routes
	RouteHealthz = "/healthz"
)
