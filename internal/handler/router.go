package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"groupchat/internal/auth"
	"groupchat/internal/domain"
	"groupchat/internal/middleware"
)

// RouterConfig collects everything mounted by NewRouter. APILimiter,
// OpenAPI and Ready are optional.
type RouterConfig struct {
	Groups         *GroupHandler
	JoinRequests   *JoinRequestHandler
	Invites        *InviteHandler
	Messages       *MessageHandler
	WebSocket      *WebSocketHandler
	Verifier       auth.TokenVerifier
	AllowedOrigins []string
	APILimiter     *middleware.RateLimiter
	OpenAPI        func(http.Handler) http.Handler
	Ready          http.HandlerFunc
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContext())
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.Metrics())

	r.Get("/health", Health)
	if cfg.Ready != nil {
		r.Get("/health/ready", cfg.Ready)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, domain.NewError(domain.KindNotFound, "route not found"))
	})

	// The socket authenticates with its first frame, not a header.
	if cfg.WebSocket != nil {
		r.Get("/ws", cfg.WebSocket.HandleConnection)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.OpenAPI != nil {
			r.Use(cfg.OpenAPI)
		}
		r.Use(middleware.Auth(cfg.Verifier))
		if cfg.APILimiter != nil {
			r.Use(cfg.APILimiter.Middleware())
		}

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", cfg.Groups.List)
			r.Post("/", cfg.Groups.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.Groups.Get)
				r.Patch("/", cfg.Groups.Update)
				r.Delete("/", cfg.Groups.Destroy)

				r.Post("/join", cfg.Groups.Join)
				r.Post("/leave", cfg.Groups.Leave)
				r.Get("/members", cfg.Groups.Members)
				r.Delete("/members/{userId}", cfg.Groups.RemoveMember)
				r.Post("/owner", cfg.Groups.TransferOwner)

				r.Post("/join-requests", cfg.JoinRequests.Create)
				r.Get("/join-requests", cfg.JoinRequests.List)
				r.Post("/join-requests/{requestId}/approve", cfg.JoinRequests.Approve)
				r.Post("/join-requests/{requestId}/decline", cfg.JoinRequests.Decline)

				r.Post("/invites", cfg.Invites.Create)
				r.Get("/invites", cfg.Invites.List)

				r.Post("/messages", cfg.Messages.Send)
				r.Get("/messages", cfg.Messages.List)
				r.Delete("/messages/{messageId}", cfg.Messages.Remove)
			})
		})

		r.Get("/invites", cfg.Invites.Mine)
		r.Post("/invites/{inviteId}/respond", cfg.Invites.Respond)
		r.Post("/invites/{inviteId}/revoke", cfg.Invites.Revoke)
	})

	return r
}
