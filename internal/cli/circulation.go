package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/folio/internal/paging"
	"github.com/me/folio/pkg/model"
)

func newLoansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "List loans",
	}
	cmd.AddCommand(
		loanListCmd("mine", "List your loans", func(ctx context.Context, q paging.Query) (paging.Result[model.Loan], error) {
			return cat.MyLoans(ctx, q)
		}),
		requireStaff(loanListCmd("all", "List every loan", func(ctx context.Context, q paging.Query) (paging.Result[model.Loan], error) {
			return cat.AllLoans(ctx, q)
		})),
	)
	return requireUser(cmd)
}

func loanListCmd(use, short string, fetch func(context.Context, paging.Query) (paging.Result[model.Loan], error)) *cobra.Command {
	var q paging.Query
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := fetch(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("list loans: %w", err)
			}
			now := time.Now()
			return out(cmd).print(res, func(tw *tabwriter.Writer) {
				if len(res.Items) == 0 {
					fmt.Fprintln(tw, "No loans found.")
					return
				}
				fmt.Fprintln(tw, "ID\tBOOK\tUSER\tDUE\tSTATUS")
				for _, l := range res.Items {
					st := string(l.Status)
					if l.IsOverdue(now) {
						st = string(model.LoanOverdue)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", l.ID, orDash(l.BookTitle()), userOf(l.User), dateOf(l.DueDate), status(st))
				}
				pageFooter(tw, len(res.Items), res.Meta.Total, res.Meta.Page, res.TotalPages())
			})
		},
	}
	listFlags(cmd, &q)
	return cmd
}

func newReservationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reservations",
		Aliases: []string{"res"},
		Short:   "List and manage reservations",
	}
	cmd.AddCommand(
		reservationListCmd("mine", "List your reservations", func(ctx context.Context, q paging.Query) (paging.Result[model.Reservation], error) {
			return cat.MyReservations(ctx, q)
		}),
		requireStaff(reservationListCmd("pending", "List reservations awaiting pickup", func(ctx context.Context, q paging.Query) (paging.Result[model.Reservation], error) {
			return cat.PendingReservations(ctx, q)
		})),
		requireStaff(reservationListCmd("all", "List every reservation", func(ctx context.Context, q paging.Query) (paging.Result[model.Reservation], error) {
			return cat.AllReservations(ctx, q)
		})),
		newCancelReservationCmd(),
		requireStaff(&cobra.Command{
			Use:   "fulfill <reservation_id>",
			Short: "Turn a reservation into a loan",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := cat.FulfillReservation(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("fulfill reservation: %w", err)
				}
				out(cmd).message("Reservation %s fulfilled.", args[0])
				return nil
			},
		}),
	)
	return requireUser(cmd)
}

func reservationListCmd(use, short string, fetch func(context.Context, paging.Query) (paging.Result[model.Reservation], error)) *cobra.Command {
	var q paging.Query
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := fetch(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("list reservations: %w", err)
			}
			return out(cmd).print(res, func(tw *tabwriter.Writer) {
				if len(res.Items) == 0 {
					fmt.Fprintln(tw, "No reservations found.")
					return
				}
				fmt.Fprintln(tw, "ID\tBOOK\tUSER\tCREATED\tSTATUS")
				for _, r := range res.Items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, orDash(r.BookTitle()), userOf(r.User), r.CreatedAt.Local().Format("2006-01-02"), status(string(r.Status)))
				}
				pageFooter(tw, len(res.Items), res.Meta.Total, res.Meta.Page, res.TotalPages())
			})
		},
	}
	listFlags(cmd, &q)
	return cmd
}

func newCancelReservationCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "cancel <reservation_id>",
		Short: "Cancel a reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm(fmt.Sprintf("Cancel reservation %s?", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}
			if err := cat.CancelReservation(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("cancel reservation: %w", err)
			}
			out(cmd).message("Reservation %s cancelled.", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newReserveCmd() *cobra.Command {
	return requireUser(&cobra.Command{
		Use:   "reserve <copy_id>",
		Short: "Reserve a copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := cat.Reserve(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("reserve: %w", err)
			}
			p := out(cmd)
			p.message("Reservation %s placed (%s).", r.ID, r.Status)
			if p.format != "table" {
				return p.print(r, nil)
			}
			return nil
		},
	})
}

func newBorrowCmd() *cobra.Command {
	return requireUser(&cobra.Command{
		Use:   "borrow <copy_id>",
		Short: "Borrow a copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := cat.Borrow(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("borrow: %w", err)
			}
			p := out(cmd)
			p.message("Loan %s created, due %s.", l.ID, dateOf(l.DueDate))
			if p.format != "table" {
				return p.print(l, nil)
			}
			return nil
		},
	})
}

func newReturnCmd() *cobra.Command {
	return requireStaff(&cobra.Command{
		Use:   "return <loan_id>",
		Short: "Record a returned loan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cat.ReturnLoan(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("return loan: %w", err)
			}
			out(cmd).message("Loan %s returned.", args[0])
			return nil
		},
	})
}

func userOf(u *model.UserRef) string {
	if u == nil {
		return "-"
	}
	return u.Email
}

func dateOf(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02")
}
