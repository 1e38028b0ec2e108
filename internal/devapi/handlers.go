package devapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/me/folio/pkg/model"
)

// List response shapes. The real service is not consistent about which
// one an endpoint uses, so each list route has a default and ?shape=
// overrides it.
const (
	shapeItems = "items"
	shapeData  = "data"
	shapeArray = "array"
)

func listOptions(c echo.Context) model.ListOptions {
	opts := model.DefaultListOptions()
	if v, err := strconv.Atoi(c.QueryParam("page")); err == nil {
		opts.Page = v
	}
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil {
		opts.Limit = v
	}
	opts.Search = strings.TrimSpace(c.QueryParam("search"))
	if opts.Search == "" {
		opts.Search = strings.TrimSpace(c.QueryParam("q"))
	}
	opts.Clamp()
	return opts
}

// respondList pages items and writes them in the requested shape.
func respondList[T any](c echo.Context, items []T, opts model.ListOptions, shape string) error {
	if q := c.QueryParam("shape"); q != "" {
		shape = q
	}
	start, end := opts.Window(len(items))
	page := items[start:end]
	if page == nil {
		page = []T{}
	}

	switch shape {
	case shapeArray:
		return c.JSON(http.StatusOK, page)
	case shapeData:
		return c.JSON(http.StatusOK, model.DataEnvelope[T]{
			Data: page, Total: len(items), Page: opts.Page, Limit: opts.Limit,
		})
	default:
		return c.JSON(http.StatusOK, model.ItemsEnvelope[T]{
			Items: page,
			Meta:  model.PageMeta{Total: len(items), Page: opts.Page, Limit: opts.Limit},
		})
	}
}

func matches(search string, fields ...string) bool {
	if search == "" {
		return true
	}
	search = strings.ToLower(search)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

// Users

func (s *Server) handleListUsers(c echo.Context) error {
	opts := listOptions(c)
	s.lib.mu.Lock()
	var users []model.UserProfile
	for _, a := range s.lib.users {
		p := a.profile
		if matches(opts.Search, p.Email, p.FirstName, p.LastName) {
			users = append(users, p)
		}
	}
	s.lib.mu.Unlock()
	sortProfiles(users)
	return respondList(c, users, opts, shapeData)
}

func sortProfiles(users []model.UserProfile) {
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
}

// Books

func (s *Server) handleListBooks(c echo.Context) error {
	opts := listOptions(c)
	s.lib.mu.Lock()
	var books []model.Book
	for _, b := range s.lib.sortedBooks() {
		if matches(opts.Search, b.Title, b.Author, b.ISBN, b.Genre) {
			books = append(books, s.lib.bookView(b))
		}
	}
	s.lib.mu.Unlock()
	return respondList(c, books, opts, shapeItems)
}

func (s *Server) handleGetBook(c echo.Context) error {
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	b, ok := s.lib.books[c.Param("id")]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Book not found")
	}
	return c.JSON(http.StatusOK, s.lib.bookView(b))
}

func bindBook(c echo.Context, create bool) (model.BookInput, error) {
	var in model.BookInput
	if err := c.Bind(&in); err != nil {
		return in, echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	var msgs validationError
	if create && strings.TrimSpace(in.Title) == "" {
		msgs = append(msgs, "title should not be empty")
	}
	if in.Year < 0 {
		msgs = append(msgs, "publicationYear must not be negative")
	}
	if len(msgs) > 0 {
		return in, msgs
	}
	return in, nil
}

func (s *Server) handleCreateBook(c echo.Context) error {
	in, err := bindBook(c, true)
	if err != nil {
		return err
	}
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	b := s.lib.addBook(in)
	return c.JSON(http.StatusCreated, s.lib.bookView(b))
}

func (s *Server) handleUpdateBook(c echo.Context) error {
	in, err := bindBook(c, false)
	if err != nil {
		return err
	}
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	b, ok := s.lib.books[c.Param("id")]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Book not found")
	}
	patch(&b.Title, in.Title)
	patch(&b.Author, in.Author)
	patch(&b.ISBN, in.ISBN)
	patch(&b.Publisher, in.Publisher)
	patch(&b.Genre, in.Genre)
	patch(&b.Description, in.Description)
	patch(&b.CoverURL, in.CoverURL)
	if in.Year != 0 {
		b.Year = in.Year
	}
	return c.JSON(http.StatusOK, s.lib.bookView(b))
}

func patch(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (s *Server) handleDeleteBook(c echo.Context) error {
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	id := c.Param("id")
	if _, ok := s.lib.books[id]; !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Book not found")
	}
	for _, cp := range s.lib.copies {
		if cp.BookID == id && (cp.Status == model.CopyLoaned || cp.Status == model.CopyReserved) {
			return echo.NewHTTPError(http.StatusConflict, "Book has copies in circulation")
		}
	}
	for cid, cp := range s.lib.copies {
		if cp.BookID == id {
			delete(s.lib.copies, cid)
		}
	}
	delete(s.lib.books, id)
	return c.NoContent(http.StatusNoContent)
}

// Copies

func (s *Server) handleListCopies(c echo.Context) error {
	opts := listOptions(c)
	bookID := c.QueryParam("bookId")
	s.lib.mu.Lock()
	var copies []model.Copy
	for _, cp := range s.lib.sortedCopies() {
		if cp.Status == model.CopyDeleted || (bookID != "" && cp.BookID != bookID) {
			continue
		}
		v := s.lib.copyView(cp)
		title := ""
		if v.Book != nil {
			title = v.Book.Title
		}
		if matches(opts.Search, cp.Code, cp.Location, title) {
			copies = append(copies, v)
		}
	}
	s.lib.mu.Unlock()
	return respondList(c, copies, opts, shapeItems)
}

type copyInput struct {
	BookID   string           `json:"bookId"`
	Code     string           `json:"code"`
	Location string           `json:"location"`
	Status   model.CopyStatus `json:"status"`
}

// handleCreateCopy serves both POST /books/:id/copies and POST /copies.
func (s *Server) handleCreateCopy(c echo.Context) error {
	var in copyInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if id := c.Param("id"); id != "" {
		in.BookID = id
	}
	var msgs validationError
	if in.BookID == "" {
		msgs = append(msgs, "bookId should not be empty")
	}
	if strings.TrimSpace(in.Code) == "" {
		msgs = append(msgs, "code should not be empty")
	}
	if in.Status != "" && in.Status != model.CopyAvailable {
		msgs = append(msgs, "status must be available")
	}
	if len(msgs) > 0 {
		return msgs
	}

	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	if _, ok := s.lib.books[in.BookID]; !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Book not found")
	}
	for _, cp := range s.lib.copies {
		if strings.EqualFold(cp.Code, in.Code) && cp.Status != model.CopyDeleted {
			return echo.NewHTTPError(http.StatusConflict, "Copy code already in use")
		}
	}
	cp := s.lib.addCopy(in.BookID, strings.TrimSpace(in.Code), in.Location)
	return c.JSON(http.StatusCreated, s.lib.copyView(cp))
}

func (s *Server) handleUpdateCopy(c echo.Context) error {
	var in copyInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if !in.Status.Valid() {
		return validationError{"status must be one of available, reserved, loaned, maintenance, lost, deleted"}
	}

	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	cp, ok := s.lib.copies[c.Param("id")]
	if !ok || cp.Status == model.CopyDeleted {
		return echo.NewHTTPError(http.StatusNotFound, "Copy not found")
	}
	if (cp.Status == model.CopyLoaned || cp.Status == model.CopyReserved) && in.Status != cp.Status {
		return echo.NewHTTPError(http.StatusConflict, "Copy is in circulation")
	}
	cp.Status = in.Status
	if in.Location != "" {
		cp.Location = in.Location
	}
	return c.JSON(http.StatusOK, s.lib.copyView(cp))
}

func (s *Server) handleDeleteCopy(c echo.Context) error {
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	id := c.Param("id")
	cp, ok := s.lib.copies[id]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Copy not found")
	}
	if cp.Status == model.CopyLoaned || cp.Status == model.CopyReserved {
		return echo.NewHTTPError(http.StatusConflict, "Copy is in circulation")
	}
	delete(s.lib.copies, id)
	return c.NoContent(http.StatusNoContent)
}

// Reservations

type copyRequest struct {
	CopyID string `json:"copyId"`
}

func bindCopyRequest(c echo.Context) (string, error) {
	var req copyRequest
	if err := c.Bind(&req); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.CopyID == "" {
		return "", validationError{"copyId should not be empty"}
	}
	return req.CopyID, nil
}

func (s *Server) handleReserve(c echo.Context) error {
	copyID, err := bindCopyRequest(c)
	if err != nil {
		return err
	}
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	r, err := s.lib.reserve(user, copyID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, r)
}

func (s *Server) reservations(keep func(*model.Reservation) bool) []model.Reservation {
	out := []model.Reservation{}
	for _, r := range s.lib.sortedReservations() {
		if keep(r) {
			out = append(out, s.lib.reservationView(r))
		}
	}
	return out
}

func (s *Server) handleMyReservations(c echo.Context) error {
	opts := listOptions(c)
	s.lib.mu.Lock()
	user, err := s.currentUser(c)
	if err != nil {
		s.lib.mu.Unlock()
		return err
	}
	list := s.reservations(func(r *model.Reservation) bool { return r.User.ID == user.profile.ID })
	s.lib.mu.Unlock()
	return respondList(c, list, opts, shapeArray)
}

func (s *Server) handlePendingReservations(c echo.Context) error {
	opts := listOptions(c)
	s.lib.mu.Lock()
	list := s.reservations(func(r *model.Reservation) bool { return r.Status == model.ReservationPending })
	s.lib.mu.Unlock()
	return respondList(c, list, opts, shapeItems)
}

func (s *Server) handleAllReservations(c echo.Context) error {
	opts := listOptions(c)
	s.lib.mu.Lock()
	list := s.reservations(func(*model.Reservation) bool { return true })
	s.lib.mu.Unlock()
	return respondList(c, list, opts, shapeData)
}

func (s *Server) handleCancelReservation(c echo.Context) error {
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	r, err := s.lib.cancelReservation(user, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) handleFulfillReservation(c echo.Context) error {
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	ln, err := s.lib.fulfillReservation(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ln)
}

// Loans

func (s *Server) handleBorrow(c echo.Context) error {
	copyID, err := bindCopyRequest(c)
	if err != nil {
		return err
	}
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	ln, err := s.lib.borrow(user, copyID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ln)
}

func (s *Server) loans(keep func(*model.Loan) bool) []model.Loan {
	out := []model.Loan{}
	for _, ln := range s.lib.sortedLoans() {
		if keep(ln) {
			out = append(out, s.lib.loanView(ln))
		}
	}
	return out
}

func (s *Server) handleMyLoans(c echo.Context) error {
	opts := listOptions(c)
	s.lib.mu.Lock()
	user, err := s.currentUser(c)
	if err != nil {
		s.lib.mu.Unlock()
		return err
	}
	list := s.loans(func(ln *model.Loan) bool { return ln.User.ID == user.profile.ID })
	s.lib.mu.Unlock()
	return respondList(c, list, opts, shapeArray)
}

func (s *Server) handleAllLoans(c echo.Context) error {
	opts := listOptions(c)
	status := model.LoanStatus(c.QueryParam("status"))
	s.lib.mu.Lock()
	list := s.loans(func(*model.Loan) bool { return true })
	s.lib.mu.Unlock()
	if status != "" {
		filtered := list[:0]
		for _, ln := range list {
			if ln.Status == status {
				filtered = append(filtered, ln)
			}
		}
		list = filtered
	}
	return respondList(c, list, opts, shapeData)
}

func (s *Server) handleReturnLoan(c echo.Context) error {
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	ln, err := s.lib.returnLoan(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ln)
}
