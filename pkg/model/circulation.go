package model

import "time"

// Reservation holds a copy for a user until it is fulfilled or cancelled.
type Reservation struct {
	ID        string            `json:"id" yaml:"id"`
	Status    ReservationStatus `json:"status" yaml:"status"`
	CreatedAt time.Time         `json:"createdAt" yaml:"created_at"`
	ExpiresAt *time.Time        `json:"expiresAt,omitempty" yaml:"expires_at,omitempty"`
	Copy      *Copy             `json:"copy,omitempty" yaml:"copy,omitempty"`
	User      *UserRef          `json:"user,omitempty" yaml:"user,omitempty"`
}

// BookTitle returns the title of the reserved book, or "" when not embedded.
func (r *Reservation) BookTitle() string {
	if r.Copy == nil || r.Copy.Book == nil {
		return ""
	}
	return r.Copy.Book.Title
}

// Loan records a copy lent to a user.
type Loan struct {
	ID         string     `json:"id" yaml:"id"`
	Status     LoanStatus `json:"status" yaml:"status"`
	BorrowedAt time.Time  `json:"borrowedAt" yaml:"borrowed_at"`
	DueDate    *time.Time `json:"dueDate,omitempty" yaml:"due_date,omitempty"`
	ReturnedAt *time.Time `json:"returnedAt,omitempty" yaml:"returned_at,omitempty"`
	Fine       float64    `json:"fine,omitempty" yaml:"fine,omitempty"`
	Copy       *Copy      `json:"copy,omitempty" yaml:"copy,omitempty"`
	User       *UserRef   `json:"user,omitempty" yaml:"user,omitempty"`
}

// BookTitle returns the title of the borrowed book, or "" when not embedded.
func (l *Loan) BookTitle() string {
	if l.Copy == nil || l.Copy.Book == nil {
		return ""
	}
	return l.Copy.Book.Title
}

// IsOverdue reports whether an unreturned loan is past its due date at now.
func (l *Loan) IsOverdue(now time.Time) bool {
	if l.Status == LoanReturned || l.DueDate == nil {
		return false
	}
	return now.After(*l.DueDate)
}
