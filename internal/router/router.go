package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/stayops/ota-bridge/internal/handler"    // import the handlers that implement business logic
	"github.com/stayops/ota-bridge/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance: the health probe and the channel-facing
// amendment webhook.  Channel managers authenticate at the network
// layer, not with tenant JWTs, so the ingestion route stays outside the
// protected group.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler, a *handler.AmendmentHandler) {
	e.GET("/healthz", h.Health)
	e.POST("/webhooks/ota/amendments", a.Receive)
}

// RegisterAuth registers the token exchange route and the protected
// /v1 group.  Unauthenticated operations live under /v1/auth, while
// protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) *echo.Group {
	g := e.Group("/v1/auth")
	// Exchange a tenant API key for a short-lived access token.
	g.POST("/token", a.Token)

	// All handlers registered on this group run JWTAuth first; both
	// tenant roles may reach protected endpoints, with finer checks
	// applied per route group.
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("ADMIN", "REVIEWER"))
	auth.GET("/me", a.Me)
	return auth
}

// RegisterAmendments registers the manual review surface: approve,
// reject and history listing.  The group must already carry JWTAuth.
func RegisterAmendments(auth *echo.Group, a *handler.AmendmentHandler) {
	auth.POST("/ota/amendments/:bookingId/:amendmentId/approve", a.Approve)
	auth.POST("/ota/amendments/:bookingId/:amendmentId/reject", a.Reject)
	auth.GET("/ota/amendments/:bookingId", a.List)
}

// RegisterEndpoints registers the webhook endpoint admin API.  Write
// operations require the ADMIN role; reads are open to reviewers too.
func RegisterEndpoints(auth *echo.Group, h *handler.EndpointHandler) {
	admin := middleware.RequireRole("ADMIN")
	auth.POST("/webhooks/endpoints", h.Create, admin)
	auth.GET("/webhooks/endpoints", h.List)
	auth.GET("/webhooks/endpoints/:id", h.Get)
	auth.PUT("/webhooks/endpoints/:id", h.Update, admin)
	auth.DELETE("/webhooks/endpoints/:id", h.Deactivate, admin)
	auth.GET("/webhooks/endpoints/:id/stats", h.Stats)
}
