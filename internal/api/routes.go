package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouteConfig bundles the handlers and middleware for the API surface
type RouteConfig struct {
	Messages    *MessageHandler
	Send        *SendHandler
	Attachments *AttachmentHandler
	Profile     *ProfileHandler

	Authenticate    func(http.Handler) http.Handler
	APILimiter      func(http.Handler) http.Handler
	SendLimiter     func(http.Handler) http.Handler
	DownloadLimiter func(http.Handler) http.Handler
}

// RegisterRoutes mounts the bearer-authenticated mailbox API endpoints
func RegisterRoutes(r chi.Router, cfg RouteConfig) {
	r.Group(func(r chi.Router) {
		r.Use(cfg.Authenticate)
		r.Use(cfg.APILimiter)

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", cfg.Messages.ListMessages)
			r.Get("/{id}", cfg.Messages.GetMessage)
			r.Put("/{id}/read", cfg.Messages.MarkRead)
			r.Put("/{id}/star", cfg.Messages.ToggleStar)
			r.Delete("/{id}", cfg.Messages.DeleteMessage)
		})

		r.With(cfg.SendLimiter).Post("/send", cfg.Send.Send)

		r.With(cfg.DownloadLimiter).Get("/attachments/{id}", cfg.Attachments.Download)

		r.Get("/user/profile", cfg.Profile.GetProfile)
	})
}
