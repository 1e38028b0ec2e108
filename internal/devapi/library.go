package devapi

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/me/folio/pkg/model"
)

// Circulation rules applied by the dev backend.
const (
	LoanPeriod        = 14 * 24 * time.Hour
	ReservationWindow = 3 * 24 * time.Hour
	FinePerDay        = 0.5
)

// Demo accounts. Both use DemoPassword.
const (
	DemoAdminEmail  = "admin@folio.test"
	DemoMemberEmail = "reader@folio.test"
	DemoPassword    = "secret"
)

type account struct {
	profile model.UserProfile
	hash    string
}

func (a *account) ref() *model.UserRef {
	return &model.UserRef{
		ID:        a.profile.ID,
		FirstName: a.profile.FirstName,
		LastName:  a.profile.LastName,
		Email:     a.profile.Email,
	}
}

// library is the in-memory state of the dev backend. Every exported
// operation on it takes mu.
type library struct {
	mu   sync.Mutex
	now  func() time.Time
	cost int

	users        map[string]*account // by ID
	emails       map[string]string   // lower-case email -> ID
	books        map[string]*model.Book
	copies       map[string]*model.Copy
	reservations map[string]*model.Reservation
	loans        map[string]*model.Loan
}

func newID() string { return uuid.New().String() }

func hashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	return string(b), err
}

func seed(now func() time.Time, cost int) (*library, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	l := &library{
		now:          now,
		cost:         cost,
		users:        map[string]*account{},
		emails:       map[string]string{},
		books:        map[string]*model.Book{},
		copies:       map[string]*model.Copy{},
		reservations: map[string]*model.Reservation{},
		loans:        map[string]*model.Loan{},
	}

	accounts := []model.UserProfile{
		{Email: DemoAdminEmail, FirstName: "Ada", LastName: "Admin", Role: model.RoleAdmin, TwoFactorEnabled: true},
		{Email: DemoMemberEmail, FirstName: "Rita", LastName: "Reader", Role: model.RoleMember},
	}
	for _, p := range accounts {
		if _, err := l.addUser(p, DemoPassword); err != nil {
			return nil, err
		}
	}

	books := []model.BookInput{
		{Title: "The Go Programming Language", Author: "Alan Donovan, Brian Kernighan", ISBN: "9780134190440", Publisher: "Addison-Wesley", Year: 2015, Genre: "Programming"},
		{Title: "Designing Data-Intensive Applications", Author: "Martin Kleppmann", ISBN: "9781449373320", Publisher: "O'Reilly", Year: 2017, Genre: "Software"},
		{Title: "The Left Hand of Darkness", Author: "Ursula K. Le Guin", ISBN: "9780441478125", Publisher: "Ace", Year: 1969, Genre: "Science fiction"},
		{Title: "Middlemarch", Author: "George Eliot", ISBN: "9780141439549", Publisher: "Penguin", Year: 1871, Genre: "Classic"},
	}
	for i, in := range books {
		b := l.addBook(in)
		for j := 0; j <= i%2+1; j++ {
			l.addCopy(b.ID, copyCode(b.Title, j), "Main hall")
		}
	}
	return l, nil
}

func copyCode(title string, n int) string {
	prefix := strings.ToUpper(strings.ReplaceAll(title, " ", ""))
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	return prefix + "-" + string(rune('A'+n))
}

func (l *library) addUser(p model.UserProfile, password string) (*account, error) {
	hash, err := hashPassword(password, l.cost)
	if err != nil {
		return nil, err
	}
	p.ID = newID()
	if p.Role == "" {
		p.Role = model.RoleMember
	}
	a := &account{profile: p, hash: hash}
	l.users[p.ID] = a
	l.emails[strings.ToLower(p.Email)] = p.ID
	return a, nil
}

func (l *library) addBook(in model.BookInput) *model.Book {
	b := &model.Book{
		ID:          newID(),
		Title:       in.Title,
		Author:      in.Author,
		ISBN:        in.ISBN,
		Publisher:   in.Publisher,
		Year:        in.Year,
		Genre:       in.Genre,
		Description: in.Description,
		CoverURL:    in.CoverURL,
		CreatedAt:   l.now().UTC(),
	}
	l.books[b.ID] = b
	return b
}

func (l *library) addCopy(bookID, code, location string) *model.Copy {
	c := &model.Copy{
		ID:       newID(),
		Code:     code,
		Location: location,
		Status:   model.CopyAvailable,
		BookID:   bookID,
	}
	l.copies[c.ID] = c
	return c
}

// userByEmail returns the account for email, case-insensitively.
func (l *library) userByEmail(email string) (*account, bool) {
	id, ok := l.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, false
	}
	return l.users[id], true
}

// copyView returns c with its book reference filled in.
func (l *library) copyView(c *model.Copy) model.Copy {
	out := *c
	if b, ok := l.books[c.BookID]; ok {
		out.Book = &model.BookRef{ID: b.ID, Title: b.Title}
	}
	return out
}

// bookView returns b with its non-deleted copies.
func (l *library) bookView(b *model.Book) model.Book {
	out := *b
	out.Copies = nil
	for _, c := range l.sortedCopies() {
		if c.BookID == b.ID && c.Status != model.CopyDeleted {
			out.Copies = append(out.Copies, *c)
		}
	}
	return out
}

func (l *library) reservationView(r *model.Reservation) model.Reservation {
	out := *r
	if r.Copy != nil {
		if c, ok := l.copies[r.Copy.ID]; ok {
			cv := l.copyView(c)
			out.Copy = &cv
		}
	}
	return out
}

// loanView refreshes the overdue status and fine of an open loan.
func (l *library) loanView(ln *model.Loan) model.Loan {
	out := *ln
	if ln.Copy != nil {
		if c, ok := l.copies[ln.Copy.ID]; ok {
			cv := l.copyView(c)
			out.Copy = &cv
		}
	}
	now := l.now()
	if out.IsOverdue(now) && out.Status.CanTransitionTo(model.LoanOverdue) {
		out.Status = model.LoanOverdue
	}
	if out.Status == model.LoanOverdue {
		out.Fine = fine(*out.DueDate, now)
	}
	return out
}

func fine(due, at time.Time) float64 {
	days := int(at.Sub(due).Hours()/24) + 1
	if days < 1 {
		return 0
	}
	return float64(days) * FinePerDay
}

func (l *library) sortedBooks() []*model.Book {
	out := make([]*model.Book, 0, len(l.books))
	for _, b := range l.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

func (l *library) sortedCopies() []*model.Copy {
	out := make([]*model.Copy, 0, len(l.copies))
	for _, c := range l.copies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (l *library) sortedReservations() []*model.Reservation {
	out := make([]*model.Reservation, 0, len(l.reservations))
	for _, r := range l.reservations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (l *library) sortedLoans() []*model.Loan {
	out := make([]*model.Loan, 0, len(l.loans))
	for _, ln := range l.loans {
		out = append(out, ln)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BorrowedAt.After(out[j].BorrowedAt) })
	return out
}

// reserve holds an available copy for user.
func (l *library) reserve(user *account, copyID string) (model.Reservation, error) {
	c, ok := l.copies[copyID]
	if !ok || c.Status == model.CopyDeleted {
		return model.Reservation{}, echo.NewHTTPError(404, "Copy not found")
	}
	if c.Status != model.CopyAvailable {
		return model.Reservation{}, echo.NewHTTPError(409, "Copy is not available")
	}
	now := l.now().UTC()
	expires := now.Add(ReservationWindow)
	r := &model.Reservation{
		ID:        newID(),
		Status:    model.ReservationPending,
		CreatedAt: now,
		ExpiresAt: &expires,
		Copy:      &model.Copy{ID: c.ID},
		User:      user.ref(),
	}
	c.Status = model.CopyReserved
	l.reservations[r.ID] = r
	return l.reservationView(r), nil
}

// borrow lends copyID to user. A copy reserved by the same user may be
// borrowed; the reservation is fulfilled.
func (l *library) borrow(user *account, copyID string) (model.Loan, error) {
	c, ok := l.copies[copyID]
	if !ok || c.Status == model.CopyDeleted {
		return model.Loan{}, echo.NewHTTPError(404, "Copy not found")
	}
	var held *model.Reservation
	if c.Status == model.CopyReserved {
		for _, r := range l.reservations {
			if r.Status == model.ReservationPending && r.Copy.ID == c.ID && r.User.ID == user.profile.ID {
				held = r
			}
		}
		if held == nil {
			return model.Loan{}, echo.NewHTTPError(409, "Copy is reserved by another member")
		}
	} else if c.Status != model.CopyAvailable {
		return model.Loan{}, echo.NewHTTPError(409, "Copy is not available")
	}
	if held != nil {
		held.Status = model.ReservationFulfilled
	}
	return l.lend(c, user), nil
}

func (l *library) lend(c *model.Copy, user *account) model.Loan {
	now := l.now().UTC()
	due := now.Add(LoanPeriod)
	ln := &model.Loan{
		ID:         newID(),
		Status:     model.LoanActive,
		BorrowedAt: now,
		DueDate:    &due,
		Copy:       &model.Copy{ID: c.ID},
		User:       user.ref(),
	}
	c.Status = model.CopyLoaned
	l.loans[ln.ID] = ln
	return l.loanView(ln)
}

func (l *library) transitionReservation(id string, next model.ReservationStatus) (*model.Reservation, error) {
	r, ok := l.reservations[id]
	if !ok {
		return nil, echo.NewHTTPError(404, "Reservation not found")
	}
	if !r.Status.CanTransitionTo(next) {
		err := &model.InvalidTransitionError{Entity: "reservation", ID: id, From: r.Status.String(), To: next.String()}
		return nil, echo.NewHTTPError(409, err.Error())
	}
	r.Status = next
	return r, nil
}

func (l *library) cancelReservation(user *account, id string) (model.Reservation, error) {
	if r, ok := l.reservations[id]; ok && r.User.ID != user.profile.ID && !user.profile.IsStaff() {
		return model.Reservation{}, echo.NewHTTPError(403, "Forbidden")
	}
	r, err := l.transitionReservation(id, model.ReservationCancelled)
	if err != nil {
		return model.Reservation{}, err
	}
	if c, ok := l.copies[r.Copy.ID]; ok && c.Status == model.CopyReserved {
		c.Status = model.CopyAvailable
	}
	return l.reservationView(r), nil
}

func (l *library) fulfillReservation(id string) (model.Loan, error) {
	r, err := l.transitionReservation(id, model.ReservationFulfilled)
	if err != nil {
		return model.Loan{}, err
	}
	c, ok := l.copies[r.Copy.ID]
	borrower, found := l.users[r.User.ID]
	if !ok || !found {
		return model.Loan{}, echo.NewHTTPError(409, "Reservation refers to a missing copy or user")
	}
	return l.lend(c, borrower), nil
}

func (l *library) returnLoan(id string) (model.Loan, error) {
	ln, ok := l.loans[id]
	if !ok {
		return model.Loan{}, echo.NewHTTPError(404, "Loan not found")
	}
	view := l.loanView(ln)
	if !view.Status.CanTransitionTo(model.LoanReturned) {
		err := &model.InvalidTransitionError{Entity: "loan", ID: id, From: view.Status.String(), To: model.LoanReturned.String()}
		return model.Loan{}, echo.NewHTTPError(409, err.Error())
	}
	now := l.now().UTC()
	ln.Status = model.LoanReturned
	ln.ReturnedAt = &now
	ln.Fine = view.Fine
	if c, ok := l.copies[ln.Copy.ID]; ok && c.Status == model.CopyLoaned {
		c.Status = model.CopyAvailable
	}
	return l.loanView(ln), nil
}
