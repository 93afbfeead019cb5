/**
 * @description
 * This file sets up the HTTP router for the banklink-service. It defines the API
 * endpoints, associates them with their handlers and applies the standard
 * middleware stack.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the banklink router.
func NewRouter(h *Handlers, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Post("/bank-accounts/validate", h.ValidateBankAccountHandler)

	r.Route("/connections", func(r chi.Router) {
		r.Post("/", h.LinkConnectionHandler)
		r.Get("/", h.ListConnectionsHandler)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetConnectionHandler)
			r.Patch("/", h.UpdateConnectionHandler)
			r.Delete("/", h.RemoveConnectionHandler)
			r.Put("/permissions/{kind}", h.SetPermissionHandler)
			r.Post("/verifications", h.InitiateVerificationHandler)
			r.Get("/verifications/latest", h.LatestVerificationHandler)
			r.Get("/transactions", h.ListConnectionTransactionsHandler)
		})
	})

	r.Route("/verifications/{id}", func(r chi.Router) {
		r.Get("/", h.GetVerificationHandler)
		r.Post("/micro-deposits", h.SubmitMicroDepositsHandler)
		r.Post("/review", h.ReviewVerificationHandler)
	})

	r.Route("/transactions", func(r chi.Router) {
		r.Post("/", h.SubmitTransactionHandler)
		r.Get("/{id}", h.GetTransactionHandler)
		r.Post("/{id}/cancel", h.CancelTransactionHandler)
		r.Post("/{id}/reverse", h.ReverseTransactionHandler)
	})

	r.Post("/routes/resolve", h.ResolveRouteHandler)
	r.Get("/routes/{id}", h.GetRouteHandler)
	r.Patch("/routes/{id}", h.SetRouteActiveHandler)
	r.Delete("/routes/{id}", h.DeleteRouteHandler)

	r.Route("/organizations/{orgID}", func(r chi.Router) {
		r.Post("/business-accounts", h.CreateBusinessAccountHandler)
		r.Get("/business-accounts", h.ListBusinessAccountsHandler)
		r.Post("/routes", h.CreateRouteHandler)
		r.Get("/routes", h.ListRoutesHandler)
	})

	return r
}
