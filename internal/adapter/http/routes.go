package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gavelhq/gavel/internal/adapter/ws"
	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, hub *ws.Hub, githubCfg config.GitHub) {
	// Webhooks sit outside auth; the HMAC signature is the credential.
	r.With(middleware.WebhookHMAC(githubCfg.WebhookSecret, "X-Hub-Signature-256")).
		Post("/webhooks/github", h.HandleGitHubWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"service":"gavel","version":"0.1.0"}`))
		})

		r.Get("/reviews", h.ListReviews)
		r.Get("/reviews/{id}", h.GetReview)
	})

	r.Get("/ws", hub.HandleWS)
	r.Get("/healthz", h.Health)
}
