package routes

import (
	handlers "zoomgo/internal/handlers/shared"
	"zoomgo/internal/middleware"
	"zoomgo/pkg/auth"
	"zoomgo/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Bookings *handlers.BookingHandler
	Profiles *handlers.ProfileHandler
	Streams  *handlers.StreamHandler
	Health   *handlers.HealthHandler
}

type Options struct {
	Verifier       auth.TokenVerifier
	RateLimiter    middleware.WindowCounter
	RateLimit      int
	AllowedOrigins []string
	Logger         *logger.Logger
}

// SetupRoutes registers the rider API. Everything under /api/v1 requires a
// verified bearer token.
func SetupRoutes(r *gin.Engine, h Handlers, opts Options) {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	r.Use(
		middleware.RequestIDMiddleware(),
		middleware.LoggingMiddleware(opts.Logger),
		middleware.CORSMiddleware(opts.AllowedOrigins),
	)

	r.GET("/health", h.Health.Health)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(opts.Verifier, opts.Logger))
	if opts.RateLimiter != nil {
		api.Use(middleware.RateLimitMiddleware(opts.RateLimiter, opts.RateLimit, opts.Logger))
	}

	bookings := api.Group("/bookings")
	{
		bookings.POST("", h.Bookings.RequestBooking)
		bookings.GET("", h.Bookings.ListBookings)
		bookings.GET("/stream", h.Streams.StreamBookings)
		bookings.POST("/:id/approve", h.Bookings.ApproveBooking)
	}

	profile := api.Group("/profile")
	{
		profile.POST("", h.Profiles.CreateProfile)
		profile.GET("", h.Profiles.GetProfile)
		profile.GET("/greeting", h.Profiles.GetGreeting)
		profile.PUT("/contact", h.Profiles.UpdateContact)
	}
}
