package ui

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/me/folio/pkg/model"
)

// HandleBookList renders the searchable catalog.
func (ui *UI) HandleBookList(w http.ResponseWriter, r *http.Request) {
	q := ui.listQuery(r)
	res, err := ui.catalog(r).ListBooks(r.Context(), q)
	if err != nil {
		ui.renderError(w, r, "Failed to load books", err)
		return
	}

	data := ui.page(r, "Books - Folio")
	data["Books"] = res.Items
	data["Pagination"] = pagination(res, q.Search)
	ui.render(w, "books", data)
}

// HandleBookDetail renders one book with its copies.
func (ui *UI) HandleBookDetail(w http.ResponseWriter, r *http.Request) {
	book, err := ui.catalog(r).GetBook(r.Context(), ui.pathParam(r, "id"))
	if err != nil {
		ui.renderError(w, r, "Failed to load book", err)
		return
	}

	data := ui.page(r, book.Title+" - Folio")
	data["Book"] = book
	data["Available"] = book.AvailableCopies()
	ui.render(w, "book", data)
}

// copyFor returns the copy named by the form, or the first available copy
// of book id.
func (ui *UI) copyFor(r *http.Request, id string) (string, error) {
	if c := strings.TrimSpace(r.FormValue("copy_id")); c != "" {
		return c, nil
	}
	book, err := ui.catalog(r).GetBook(r.Context(), id)
	if err != nil {
		return "", err
	}
	if avail := book.AvailableCopies(); len(avail) > 0 {
		return avail[0].ID, nil
	}
	return "", nil
}

// HandleReserve reserves a copy of the book for the caller.
func (ui *UI) HandleReserve(w http.ResponseWriter, r *http.Request) {
	id := ui.pathParam(r, "id")
	bookPath := "/books/" + id
	copyID, err := ui.copyFor(r, id)
	if err != nil {
		back(w, r, bookPath, "error", failure(err))
		return
	}
	if copyID == "" {
		back(w, r, bookPath, "error", "No copies available")
		return
	}

	if _, err := ui.catalog(r).Reserve(r.Context(), copyID); err != nil {
		ui.logger.Info("reservation rejected", "book_id", id, "copy_id", copyID, "error", err)
		back(w, r, bookPath, "error", failure(err))
		return
	}
	back(w, r, "/my/reservations", "flash", "Reservation placed")
}

// HandleBorrow lends a copy of the book to the caller.
func (ui *UI) HandleBorrow(w http.ResponseWriter, r *http.Request) {
	id := ui.pathParam(r, "id")
	bookPath := "/books/" + id
	copyID, err := ui.copyFor(r, id)
	if err != nil {
		back(w, r, bookPath, "error", failure(err))
		return
	}
	if copyID == "" {
		back(w, r, bookPath, "error", "No copies available")
		return
	}

	if _, err := ui.catalog(r).Borrow(r.Context(), copyID); err != nil {
		ui.logger.Info("loan rejected", "book_id", id, "copy_id", copyID, "error", err)
		back(w, r, bookPath, "error", failure(err))
		return
	}
	back(w, r, "/my/loans", "flash", "Book borrowed")
}

func bookInput(r *http.Request) model.BookInput {
	year, _ := strconv.Atoi(strings.TrimSpace(r.FormValue("year")))
	return model.BookInput{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Author:      strings.TrimSpace(r.FormValue("author")),
		ISBN:        strings.TrimSpace(r.FormValue("isbn")),
		Publisher:   strings.TrimSpace(r.FormValue("publisher")),
		Year:        year,
		Genre:       strings.TrimSpace(r.FormValue("genre")),
		Description: strings.TrimSpace(r.FormValue("description")),
		CoverURL:    strings.TrimSpace(r.FormValue("cover_url")),
	}
}

// HandleBookNew renders the empty book form.
func (ui *UI) HandleBookNew(w http.ResponseWriter, r *http.Request) {
	data := ui.page(r, "New book - Folio")
	data["Book"] = &model.Book{}
	data["Action"] = "/books/new"
	ui.render(w, "book_form", data)
}

// HandleBookCreate adds a book from the form.
func (ui *UI) HandleBookCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		back(w, r, "/books/new", "error", "Invalid request")
		return
	}
	in := bookInput(r)
	if in.Title == "" {
		back(w, r, "/books/new", "error", "Title is required")
		return
	}
	book, err := ui.catalog(r).CreateBook(r.Context(), in)
	if err != nil {
		back(w, r, "/books/new", "error", failure(err))
		return
	}
	ui.logger.Info("book created", "book_id", book.ID)
	back(w, r, "/books/"+book.ID, "flash", "Book created")
}

// HandleBookEdit renders the edit form for a book.
func (ui *UI) HandleBookEdit(w http.ResponseWriter, r *http.Request) {
	id := ui.pathParam(r, "id")
	book, err := ui.catalog(r).GetBook(r.Context(), id)
	if err != nil {
		ui.renderError(w, r, "Failed to load book", err)
		return
	}
	data := ui.page(r, "Edit "+book.Title+" - Folio")
	data["Book"] = book
	data["Action"] = "/books/" + id + "/edit"
	ui.render(w, "book_form", data)
}

// HandleBookUpdate saves the edit form.
func (ui *UI) HandleBookUpdate(w http.ResponseWriter, r *http.Request) {
	id := ui.pathParam(r, "id")
	editPath := "/books/" + id + "/edit"
	if err := r.ParseForm(); err != nil {
		back(w, r, editPath, "error", "Invalid request")
		return
	}
	if _, err := ui.catalog(r).UpdateBook(r.Context(), id, bookInput(r)); err != nil {
		back(w, r, editPath, "error", failure(err))
		return
	}
	back(w, r, "/books/"+id, "flash", "Book updated")
}

// HandleBookDelete removes a book.
func (ui *UI) HandleBookDelete(w http.ResponseWriter, r *http.Request) {
	id := ui.pathParam(r, "id")
	if err := ui.catalog(r).DeleteBook(r.Context(), id); err != nil {
		back(w, r, "/books/"+id, "error", failure(err))
		return
	}
	ui.logger.Info("book deleted", "book_id", id)
	back(w, r, "/books", "flash", "Book deleted")
}
