package ui

import (
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/me/folio/internal/paging"
	"github.com/me/folio/pkg/model"
)

// HandleAdmin renders the staff panel: pending reservations and all loans.
func (ui *UI) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	cat := ui.catalog(r)
	var (
		pending paging.Result[model.Reservation]
		loans   paging.Result[model.Loan]
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		pending, err = cat.PendingReservations(ctx, paging.Query{PageSize: 50})
		return err
	})
	g.Go(func() (err error) {
		loans, err = cat.AllLoans(ctx, paging.Query{PageSize: 50})
		return err
	})
	if err := g.Wait(); err != nil {
		ui.renderError(w, r, "Failed to load admin panel", err)
		return
	}

	data := ui.page(r, "Admin - Folio")
	data["Pending"] = pending.Items
	data["Loans"] = loans.Items
	data["Now"] = ui.now()
	ui.render(w, "admin", data)
}

// HandleAdminUsers renders the user directory.
func (ui *UI) HandleAdminUsers(w http.ResponseWriter, r *http.Request) {
	q := ui.listQuery(r)
	res, err := ui.catalog(r).ListUsers(r.Context(), q)
	if err != nil {
		ui.renderError(w, r, "Failed to load users", err)
		return
	}
	data := ui.page(r, "Users - Folio")
	data["Users"] = res.Items
	data["Pagination"] = pagination(res, q.Search)
	ui.render(w, "admin_users", data)
}

// HandleFulfill turns a pending reservation into a loan.
func (ui *UI) HandleFulfill(w http.ResponseWriter, r *http.Request) {
	if err := ui.catalog(r).FulfillReservation(r.Context(), ui.pathParam(r, "id")); err != nil {
		back(w, r, "/admin", "error", failure(err))
		return
	}
	back(w, r, "/admin", "flash", "Reservation fulfilled")
}

// HandleReturn closes a loan.
func (ui *UI) HandleReturn(w http.ResponseWriter, r *http.Request) {
	if err := ui.catalog(r).ReturnLoan(r.Context(), ui.pathParam(r, "id")); err != nil {
		back(w, r, "/admin", "error", failure(err))
		return
	}
	back(w, r, "/admin", "flash", "Loan returned")
}

// HandleAdminBooks renders the inventory page. ?book=id expands one book's
// copies.
func (ui *UI) HandleAdminBooks(w http.ResponseWriter, r *http.Request) {
	q := ui.listQuery(r)
	cat := ui.catalog(r)
	res, err := cat.ListBooks(r.Context(), q)
	if err != nil {
		ui.renderError(w, r, "Failed to load books", err)
		return
	}

	data := ui.page(r, "Inventory - Folio")
	data["Books"] = res.Items
	data["Pagination"] = pagination(res, q.Search)
	data["Statuses"] = []model.CopyStatus{
		model.CopyAvailable, model.CopyReserved, model.CopyLoaned, model.CopyMaintenance, model.CopyLost,
	}
	if id := r.URL.Query().Get("book"); id != "" {
		book, err := cat.GetBook(r.Context(), id)
		if err != nil {
			ui.renderError(w, r, "Failed to load book", err)
			return
		}
		data["Expanded"] = book
	}
	ui.render(w, "admin_books", data)
}

func inventoryPath(bookID string) string {
	if bookID == "" {
		return "/admin/books"
	}
	return "/admin/books?book=" + bookID
}

// HandleAddCopy adds an available copy to a book.
func (ui *UI) HandleAddCopy(w http.ResponseWriter, r *http.Request) {
	id := ui.pathParam(r, "id")
	code := strings.TrimSpace(r.FormValue("code"))
	if code == "" {
		back(w, r, inventoryPath(id), "error", "Copy code is required")
		return
	}
	if _, err := ui.catalog(r).AddCopy(r.Context(), id, code, strings.TrimSpace(r.FormValue("location"))); err != nil {
		back(w, r, inventoryPath(id), "error", failure(err))
		return
	}
	back(w, r, inventoryPath(id), "flash", "Copy added")
}

// HandleCopyStatus changes the status of a copy.
func (ui *UI) HandleCopyStatus(w http.ResponseWriter, r *http.Request) {
	bookID := r.FormValue("book_id")
	status := model.CopyStatus(r.FormValue("status"))
	if err := ui.catalog(r).UpdateCopy(r.Context(), ui.pathParam(r, "id"), status); err != nil {
		back(w, r, inventoryPath(bookID), "error", failure(err))
		return
	}
	back(w, r, inventoryPath(bookID), "flash", "Copy updated")
}

// HandleCopyDelete retires a copy.
func (ui *UI) HandleCopyDelete(w http.ResponseWriter, r *http.Request) {
	bookID := r.FormValue("book_id")
	if err := ui.catalog(r).DeleteCopy(r.Context(), ui.pathParam(r, "id")); err != nil {
		back(w, r, inventoryPath(bookID), "error", failure(err))
		return
	}
	back(w, r, inventoryPath(bookID), "flash", "Copy removed")
}
