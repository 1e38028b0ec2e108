package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/me/folio/internal/paging"
)

// listFlags binds the search and paging flags shared by list commands.
func listFlags(cmd *cobra.Command, q *paging.Query) {
	cmd.Flags().StringVarP(&q.Search, "search", "s", "", "Search text")
	cmd.Flags().IntVar(&q.Page, "page", paging.DefaultPage, "Page number")
	cmd.Flags().IntVar(&q.PageSize, "limit", paging.DefaultPageSize, "Items per page")
}

func newBooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "Browse the catalog",
	}
	cmd.AddCommand(newBooksListCmd(), newBooksShowCmd())
	return cmd
}

func newBooksListCmd() *cobra.Command {
	var q paging.Query
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cat.ListBooks(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("list books: %w", err)
			}
			return out(cmd).print(res, func(tw *tabwriter.Writer) {
				if len(res.Items) == 0 {
					fmt.Fprintln(tw, "No books found.")
					return
				}
				fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tYEAR")
				for _, b := range res.Items {
					year := "-"
					if b.Year > 0 {
						year = strconv.Itoa(b.Year)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.ID, b.Title, orDash(b.Author), year)
				}
				pageFooter(tw, len(res.Items), res.Meta.Total, res.Meta.Page, res.TotalPages())
			})
		},
	}
	listFlags(cmd, &q)
	return cmd
}

func newBooksShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <book_id>",
		Short: "Show a book and its copies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := cat.GetBook(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get book: %w", err)
			}
			return out(cmd).print(book, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "Book:\t%s\n", book.ID)
				fmt.Fprintf(tw, "  Title:\t%s\n", book.Title)
				fmt.Fprintf(tw, "  Author:\t%s\n", orDash(book.Author))
				if book.ISBN != "" {
					fmt.Fprintf(tw, "  ISBN:\t%s\n", book.ISBN)
				}
				fmt.Fprintf(tw, "  Available:\t%d of %d\n", len(book.AvailableCopies()), len(book.Copies))
				if len(book.Copies) > 0 {
					fmt.Fprintln(tw, "\nCOPY ID\tCODE\tLOCATION\tSTATUS")
					for _, c := range book.Copies {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Label(), orDash(c.Location), status(string(c.Status)))
					}
				}
			})
		},
	}
}

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Browse library accounts",
	}

	var q paging.Query
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cat.ListUsers(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			return out(cmd).print(res, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tROLE")
				for _, u := range res.Items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.DisplayName(), u.Email, orDash(u.Role))
				}
				pageFooter(tw, len(res.Items), res.Meta.Total, res.Meta.Page, res.TotalPages())
			})
		},
	}
	listFlags(list, &q)
	cmd.AddCommand(list)
	return requireStaff(cmd)
}
