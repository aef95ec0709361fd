package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/danandika/civic-report/internal/auth"
	"github.com/danandika/civic-report/internal/category"
	userDatamodel "github.com/danandika/civic-report/internal/core/datamodel/user"
	"github.com/danandika/civic-report/internal/entitlement"
	"github.com/danandika/civic-report/internal/issue"
	"github.com/danandika/civic-report/internal/transport/middleware"
	"github.com/danandika/civic-report/internal/transport/swagger"
	"github.com/danandika/civic-report/internal/user"
	"github.com/go-chi/chi"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, authHandler *auth.Handler, userHandler *user.Handler, issueHandler *issue.Handler, categoryHandler *category.Handler, entitlementHandler *entitlement.Handler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if authHandler != nil {
			r.Route("/auth", func(sr chi.Router) {
				sr.Post("/signup", authHandler.Signup)
				sr.Post("/login", authHandler.Login)
				sr.Post("/refresh", authHandler.RefreshToken)
				sr.Post("/logout", authHandler.Logout)
			})
		}

		// Public surface: anyone can browse reported issues and categories.
		if categoryHandler != nil {
			r.Get("/categories", categoryHandler.GetCategories)
		}
		if issueHandler != nil {
			r.Get("/issues", issueHandler.List)
			r.Get("/issues/{id}", issueHandler.Get)
		}

		if authHandler != nil {
			r.Group(func(pr chi.Router) {
				pr.Use(authHandler.AuthMiddleware)

				staffOrAdmin := authHandler.RequireRole(userDatamodel.RoleStaff, userDatamodel.RoleAdmin)
				adminOnly := authHandler.RequireRole(userDatamodel.RoleAdmin)

				if userHandler != nil {
					pr.Get("/users/me", userHandler.GetProfile)
					pr.Get("/users/me/stats", userHandler.GetStats)

					pr.Group(func(ar chi.Router) {
						ar.Use(adminOnly)
						ar.Patch("/users/{email}/role", userHandler.UpdateRole)
						ar.Delete("/users/{id}", userHandler.Delete)
					})
				}

				if issueHandler != nil {
					pr.Post("/issues", issueHandler.Create)
					pr.Get("/issues/mine", issueHandler.ListMine)
					pr.Post("/issues/{id}/upvote", issueHandler.Upvote)

					pr.Group(func(sr chi.Router) {
						sr.Use(staffOrAdmin)
						sr.Patch("/issues/{id}/status", issueHandler.UpdateStatus)
					})

					pr.Group(func(ar chi.Router) {
						ar.Use(adminOnly)
						ar.Patch("/issues/{id}/assign", issueHandler.AssignStaff)
						ar.Delete("/issues/{id}", issueHandler.Delete)
					})
				}

				if entitlementHandler != nil {
					pr.Route("/payments", func(er chi.Router) {
						er.Post("/premium/checkout", entitlementHandler.CreatePremiumCheckout)
						er.Post("/boost/checkout", entitlementHandler.CreateBoostCheckout)
						er.Post("/verify", entitlementHandler.Verify)
					})
				}
			})
		}
	})
}
