package api

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"eventhive/cmd/middleware"
	"eventhive/internal/auth"
	"eventhive/internal/dto"
	"eventhive/internal/service"
)

type Routers struct {
	Service  service.Service
	Verifier *auth.Verifier
	Logger   *zerolog.Logger
	// Ping reports storage health for /healthz. Optional.
	Ping func(ctx context.Context) error
	Mode string
}

func NewRouters(r *Routers) *ginext.Engine {
	mode := r.Mode
	if mode == "" {
		mode = "release"
	}
	app := ginext.New(mode)

	app.Use(middleware.LoggingMiddleware(r.Logger))
	app.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:   []string{"X-Request-ID"},
	}))

	required := middleware.Auth(r.Verifier)
	optional := middleware.OptionalAuth(r.Verifier)

	apiGroup := app.Group("/v1")

	users := apiGroup.Group("/users/me", required)
	users.POST("", r.Service.StoreUser)
	users.GET("", r.Service.CurrentUser)
	users.POST("/onboarding", r.Service.CompleteOnboarding)

	apiGroup.POST("/events", required, r.Service.CreateEvent)
	apiGroup.GET("/events/mine", required, r.Service.MyEvents)
	apiGroup.GET("/events/:slug", r.Service.GetEvent)
	apiGroup.DELETE("/events/:id", required, r.Service.DeleteEvent)
	apiGroup.POST("/events/:id/register", required, r.Service.Register)
	apiGroup.GET("/events/:slug/registrations", required, r.Service.EventRegistrations)

	explore := apiGroup.Group("/explore")
	explore.GET("/featured", r.Service.Featured)
	explore.GET("/local", optional, r.Service.Local)
	explore.GET("/popular", optional, r.Service.Popular)
	explore.GET("/categories", r.Service.Categories)
	explore.GET("/categories/:category", r.Service.CategoryPage)

	apiGroup.GET("/search", r.Service.Search)

	app.GET("/healthz", func(c *ginext.Context) {
		if r.Ping != nil {
			if err := r.Ping(c.Request.Context()); err != nil {
				r.Logger.Error().Err(err).Msg("health check failed")
				dto.ErrorResponse(c, http.StatusServiceUnavailable, dto.ServiceUnavailable, "storage unavailable")
				return
			}
		}
		dto.SuccessResponse(c, map[string]string{"status": "ok"})
	})

	return app
}
