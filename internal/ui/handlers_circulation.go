package ui

import (
	"net/http"
)

// HandleMyLoans renders the caller's loans.
func (ui *UI) HandleMyLoans(w http.ResponseWriter, r *http.Request) {
	q := ui.listQuery(r)
	res, err := ui.catalog(r).MyLoans(r.Context(), q)
	if err != nil {
		ui.renderError(w, r, "Failed to load loans", err)
		return
	}
	data := ui.page(r, "My loans - Folio")
	data["Loans"] = res.Items
	data["Now"] = ui.now()
	data["Pagination"] = pagination(res, q.Search)
	ui.render(w, "my_loans", data)
}

// HandleMyReservations renders the caller's reservations.
func (ui *UI) HandleMyReservations(w http.ResponseWriter, r *http.Request) {
	q := ui.listQuery(r)
	res, err := ui.catalog(r).MyReservations(r.Context(), q)
	if err != nil {
		ui.renderError(w, r, "Failed to load reservations", err)
		return
	}
	data := ui.page(r, "My reservations - Folio")
	data["Reservations"] = res.Items
	data["Pagination"] = pagination(res, q.Search)
	ui.render(w, "my_reservations", data)
}

// HandleCancelReservation cancels one of the caller's reservations.
func (ui *UI) HandleCancelReservation(w http.ResponseWriter, r *http.Request) {
	id := ui.pathParam(r, "id")
	if err := ui.catalog(r).CancelReservation(r.Context(), id); err != nil {
		back(w, r, "/my/reservations", "error", failure(err))
		return
	}
	back(w, r, "/my/reservations", "flash", "Reservation cancelled")
}
