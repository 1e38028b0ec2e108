package catalog

import (
	"context"
	"fmt"
	"net/http"

	"github.com/me/folio/internal/cache"
	"github.com/me/folio/internal/paging"
	"github.com/me/folio/pkg/model"
)

// ListBooks returns a page of books matching q.Search.
func (s *Service) ListBooks(ctx context.Context, q paging.Query) (paging.Result[model.Book], error) {
	return list[model.Book](ctx, s, "/books", q, cache.PersonalTTL)
}

// GetBook returns one book with its copies.
func (s *Service) GetBook(ctx context.Context, id string) (*model.Book, error) {
	return get[model.Book](ctx, s, "/books/"+escape(id), cache.PersonalTTL)
}

// CreateBook adds a book to the catalog.
func (s *Service) CreateBook(ctx context.Context, in model.BookInput) (*model.Book, error) {
	var b model.Book
	if err := s.mutate(ctx, http.MethodPost, "/books", in, &b, "books"); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBook patches the non-empty fields of in onto book id.
func (s *Service) UpdateBook(ctx context.Context, id string, in model.BookInput) (*model.Book, error) {
	var b model.Book
	if err := s.mutate(ctx, http.MethodPatch, "/books/"+escape(id), in, &b, "books"); err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBook removes book id.
func (s *Service) DeleteBook(ctx context.Context, id string) error {
	return s.mutate(ctx, http.MethodDelete, "/books/"+escape(id), nil, nil, "books", "copies")
}

// ListCopies returns a page of copies across all books.
func (s *Service) ListCopies(ctx context.Context, q paging.Query) (paging.Result[model.Copy], error) {
	return list[model.Copy](ctx, s, "/copies", q, cache.StaffTTL)
}

// AddCopy creates an available copy of bookID. Backends without the nested
// route receive POST /copies instead.
func (s *Service) AddCopy(ctx context.Context, bookID, code, location string) (*model.Copy, error) {
	body := map[string]string{"code": code, "status": string(model.CopyAvailable)}
	if location != "" {
		body["location"] = location
	}

	var c model.Copy
	err := s.mutate(ctx, http.MethodPost, "/books/"+escape(bookID)+"/copies", body, &c, "books", "copies")
	if isMissingRoute(err) {
		s.logger.Debug("nested copy route missing, using /copies", "book_id", bookID)
		body["bookId"] = bookID
		err = s.mutate(ctx, http.MethodPost, "/copies", body, &c, "books", "copies")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCopy sets the status of copy id.
func (s *Service) UpdateCopy(ctx context.Context, id string, status model.CopyStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown copy status %q", status)
	}
	return s.mutate(ctx, http.MethodPatch, "/copies/"+escape(id), map[string]string{"status": string(status)}, nil, "books", "copies")
}

// DeleteCopy retires copy id by marking it deleted, or removes it outright
// when the backend does not accept that status.
func (s *Service) DeleteCopy(ctx context.Context, id string) error {
	err := s.UpdateCopy(ctx, id, model.CopyDeleted)
	if isMissingRoute(err) {
		err = s.mutate(ctx, http.MethodDelete, "/copies/"+escape(id), nil, nil, "books", "copies")
	}
	return err
}
