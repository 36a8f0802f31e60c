package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"localbiz-chat/internal/handler"
	"localbiz-chat/internal/middleware"
)

// routes holds everything the HTTP surface is assembled from.
type routes struct {
	verifier    middleware.TokenVerifier
	origins     []string
	rateLimiter *middleware.RateLimiter
	openapi     func(http.Handler) http.Handler
	chatrooms   *handler.ChatroomHandler
	analytics   *handler.AnalyticsHandler
	websocket   *handler.WebSocketHandler
	ready       http.HandlerFunc
}

func newRouter(rt *routes) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger())
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.origins))
	r.Use(middleware.Metrics())

	r.Get("/health", handler.Health)
	r.Get("/health/ready", rt.ready)
	r.Handle("/metrics", promhttp.Handler())

	// Browsers cannot set headers on upgrades; Auth also accepts ?access_token=.
	r.With(middleware.Auth(rt.verifier)).Get("/ws/chat", rt.websocket.HandleConnection)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(rt.verifier))
		r.Use(rt.rateLimiter.Middleware())
		r.Use(rt.openapi)

		r.Get("/chatrooms", rt.chatrooms.ListMine)
		r.Get("/chatrooms/{roomId}/messages", rt.chatrooms.GetMessages)
		r.Get("/businesses/{businessId}/chatrooms", rt.chatrooms.ListForBusiness)
		r.Post("/businesses/{businessId}/conversations", rt.chatrooms.StartConversation)
		r.Get("/businesses/{businessId}/analytics", rt.analytics.Get)
	})

	return r
}
