package model

// CopyStatus is the circulation state of a physical copy.
type CopyStatus string

const (
	CopyAvailable   CopyStatus = "available"
	CopyReserved    CopyStatus = "reserved"
	CopyLoaned      CopyStatus = "loaned"
	CopyMaintenance CopyStatus = "maintenance"
	CopyLost        CopyStatus = "lost"
	CopyDeleted     CopyStatus = "deleted"
)

// String returns the string representation of the copy status.
func (s CopyStatus) String() string {
	return string(s)
}

// Valid reports whether s is one of the known copy statuses.
func (s CopyStatus) Valid() bool {
	switch s {
	case CopyAvailable, CopyReserved, CopyLoaned, CopyMaintenance, CopyLost, CopyDeleted:
		return true
	}
	return false
}

// ReservationStatus represents the lifecycle state of a Reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
)

// String returns the string representation of the reservation status.
func (s ReservationStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the reservation can no longer change.
func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case ReservationFulfilled, ReservationCancelled, ReservationExpired:
		return true
	}
	return false
}

// ValidReservationTransitions defines the allowed state transitions for Reservations.
var ValidReservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending: {ReservationFulfilled, ReservationCancelled, ReservationExpired},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range ValidReservationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// LoanStatus represents the lifecycle state of a Loan.
type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanOverdue  LoanStatus = "overdue"
	LoanReturned LoanStatus = "returned"
)

// String returns the string representation of the loan status.
func (s LoanStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the loan is closed.
func (s LoanStatus) IsTerminal() bool {
	return s == LoanReturned
}

// ValidLoanTransitions defines the allowed state transitions for Loans.
var ValidLoanTransitions = map[LoanStatus][]LoanStatus{
	LoanActive:  {LoanOverdue, LoanReturned},
	LoanOverdue: {LoanReturned},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range ValidLoanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
