package catalog

import (
	"context"
	"net/http"

	"github.com/me/folio/internal/cache"
	"github.com/me/folio/internal/paging"
	"github.com/me/folio/pkg/model"
)

type copyRequest struct {
	CopyID string `json:"copyId"`
}

// MyReservations returns the caller's reservations.
func (s *Service) MyReservations(ctx context.Context, q paging.Query) (paging.Result[model.Reservation], error) {
	return list[model.Reservation](ctx, s, "/reservations/my", q, cache.PersonalTTL)
}

// PendingReservations returns reservations awaiting fulfilment. Staff only.
func (s *Service) PendingReservations(ctx context.Context, q paging.Query) (paging.Result[model.Reservation], error) {
	return list[model.Reservation](ctx, s, "/reservations/pending", q, cache.StaffTTL)
}

// AllReservations returns every reservation. Staff only.
func (s *Service) AllReservations(ctx context.Context, q paging.Query) (paging.Result[model.Reservation], error) {
	return list[model.Reservation](ctx, s, "/reservations", q, cache.StaffTTL)
}

// Reserve places a reservation on copyID for the caller.
func (s *Service) Reserve(ctx context.Context, copyID string) (*model.Reservation, error) {
	var r model.Reservation
	if err := s.mutate(ctx, http.MethodPost, "/reservations", copyRequest{CopyID: copyID}, &r, "reservations", "copies", "books"); err != nil {
		return nil, err
	}
	return &r, nil
}

// CancelReservation cancels reservation id.
func (s *Service) CancelReservation(ctx context.Context, id string) error {
	return s.mutate(ctx, http.MethodPatch, "/reservations/"+escape(id)+"/cancel", nil, nil, "reservations", "copies", "books")
}

// FulfillReservation turns reservation id into a loan. Staff only.
func (s *Service) FulfillReservation(ctx context.Context, id string) error {
	return s.mutate(ctx, http.MethodPatch, "/reservations/"+escape(id)+"/fulfill", nil, nil, "reservations", "loans", "copies", "books")
}

// MyLoans returns the caller's loans.
func (s *Service) MyLoans(ctx context.Context, q paging.Query) (paging.Result[model.Loan], error) {
	return list[model.Loan](ctx, s, "/loans/my", q, cache.PersonalTTL)
}

// AllLoans returns every loan. Staff only.
func (s *Service) AllLoans(ctx context.Context, q paging.Query) (paging.Result[model.Loan], error) {
	return list[model.Loan](ctx, s, "/loans", q, cache.StaffTTL)
}

// Borrow lends copyID to the caller.
func (s *Service) Borrow(ctx context.Context, copyID string) (*model.Loan, error) {
	var l model.Loan
	if err := s.mutate(ctx, http.MethodPost, "/loans", copyRequest{CopyID: copyID}, &l, "loans", "copies", "books"); err != nil {
		return nil, err
	}
	return &l, nil
}

// ReturnLoan closes loan id. Staff only.
func (s *Service) ReturnLoan(ctx context.Context, id string) error {
	return s.mutate(ctx, http.MethodPatch, "/loans/"+escape(id)+"/return", nil, nil, "loans", "copies", "books")
}
