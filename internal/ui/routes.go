package ui

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/folio/internal/guard"
	"github.com/me/folio/pkg/model"
)

// RegisterRoutes registers all UI routes on the given router.
func (ui *UI) RegisterRoutes(r chi.Router) {
	r.NotFound(ui.HandleNotFound)

	r.Group(func(r chi.Router) {
		r.Use(ui.SessionMiddleware)

		// Public routes (no auth required).
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, DefaultLanding, http.StatusSeeOther)
		})
		r.Get("/login", ui.HandleLogin)
		r.Post("/login", ui.HandleLoginPost)
		r.Get("/register", ui.HandleRegister)
		r.Post("/register", ui.HandleRegisterPost)
		r.Post("/logout", ui.HandleLogout)
		r.Get("/403", ui.HandleForbidden)
		r.Get("/books", ui.HandleBookList)

		// Staff routes (ADMIN, LIBRARIAN).
		r.Group(func(r chi.Router) {
			r.Use(ui.guarded(guard.Require(model.StaffRoles...)))

			r.Get("/books/new", ui.HandleBookNew)
			r.Post("/books/new", ui.HandleBookCreate)
			r.Get("/books/{id}/edit", ui.HandleBookEdit)
			r.Post("/books/{id}/edit", ui.HandleBookUpdate)
			r.Post("/books/{id}/delete", ui.HandleBookDelete)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/", ui.HandleAdmin)
				r.Get("/users", ui.HandleAdminUsers)
				r.Get("/books", ui.HandleAdminBooks)
				r.Post("/books/{id}/copies", ui.HandleAddCopy)
				r.Post("/copies/{id}/status", ui.HandleCopyStatus)
				r.Post("/copies/{id}/delete", ui.HandleCopyDelete)
				r.Post("/reservations/{id}/fulfill", ui.HandleFulfill)
				r.Post("/loans/{id}/return", ui.HandleReturn)
			})
		})

		r.Get("/books/{id}", ui.HandleBookDetail)

		// Authenticated routes.
		r.Group(func(r chi.Router) {
			r.Use(ui.guarded(guard.DefaultPolicy()))

			r.Post("/books/{id}/reserve", ui.HandleReserve)
			r.Post("/books/{id}/borrow", ui.HandleBorrow)
			r.Get("/my/loans", ui.HandleMyLoans)
			r.Get("/my/reservations", ui.HandleMyReservations)
			r.Post("/my/reservations/{id}/cancel", ui.HandleCancelReservation)
		})
	})
}
