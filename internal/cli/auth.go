package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/folio/internal/apiclient"
	"github.com/me/folio/internal/session"
	"github.com/me/folio/internal/tokenstore"
	"github.com/me/folio/pkg/model"
)

func out(cmd *cobra.Command) *printer {
	p, err := newPrinter(cmd.OutOrStdout(), cfg.Output)
	if err != nil {
		p = &printer{w: cmd.OutOrStdout(), format: "table"}
	}
	return p
}

func newLoginCmd() *cobra.Command {
	var email, password, totp string
	var twoFactor bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the library service",
		Long:  "Sign in with email and password. Missing values are prompted for. Accounts with two-factor authentication pass --totp or --2fa.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := promptLogin(&email, &password, &totp, twoFactor); err != nil {
				return err
			}
			email = strings.TrimSpace(email)
			if email == "" || password == "" {
				return fmt.Errorf("email and password are required")
			}
			if !tokens.Available() {
				logger.Warn("token storage disabled; the session ends with this command")
			}

			err := sess.Login(cmd.Context(), session.LoginRequest{Email: email, Password: password, TOTP: strings.TrimSpace(totp)})
			switch {
			case errors.Is(err, session.ErrAuthenticationRejected):
				return fmt.Errorf("signed in, but the profile could not be loaded: %s", apiclient.Message(err))
			case err != nil:
				return fmt.Errorf("login failed: %s", apiclient.Message(err))
			}

			st := sess.Snapshot()
			p := out(cmd)
			p.message("Logged in as %s (%s)", st.User.DisplayName(), orDash(roleOf(st.User)))
			if p.format != "table" {
				return p.print(st.User, nil)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email (prompted if omitted)")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted if omitted)")
	cmd.Flags().StringVar(&totp, "totp", "", "Two-factor code")
	cmd.Flags().BoolVar(&twoFactor, "2fa", false, "Prompt for a two-factor code")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess.Logout()
			out(cmd).message("Logged out.")
			return nil
		},
	}
}

func newRegisterCmd() *cobra.Command {
	var email, password, first, last string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a library account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := promptRegister(&email, &password, &first, &last); err != nil {
				return err
			}
			req := session.RegisterRequest{
				Email:     strings.TrimSpace(email),
				Password:  password,
				FirstName: strings.TrimSpace(first),
				LastName:  strings.TrimSpace(last),
			}
			if req.Email == "" || req.Password == "" {
				return fmt.Errorf("email and password are required")
			}
			if err := sess.Register(cmd.Context(), req); err != nil {
				return fmt.Errorf("registration failed: %s", apiclient.Message(err))
			}

			p := out(cmd)
			if err := sess.Login(cmd.Context(), session.LoginRequest{Email: req.Email, Password: req.Password}); err != nil {
				logger.Warn("login after registration failed", "error", err)
				p.message("Account created. Run `folio login` to sign in.")
				return nil
			}
			p.message("Account created; logged in as %s", req.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.Flags().StringVar(&first, "first-name", "", "First name")
	cmd.Flags().StringVar(&last, "last-name", "", "Last name")
	return cmd
}

type whoami struct {
	User      *model.UserProfile `json:"user" yaml:"user"`
	Phase     session.Phase      `json:"phase" yaml:"phase"`
	ExpiresAt *time.Time         `json:"expiresAt,omitempty" yaml:"expires_at,omitempty"`
}

func newWhoamiCmd() *cobra.Command {
	var refresh bool
	cmd := requireUser(&cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if refresh {
				if err := sess.RefreshProfile(cmd.Context()); err != nil {
					return fmt.Errorf("refresh profile: %w", err)
				}
			}
			st := sess.Snapshot()
			w := whoami{User: st.User, Phase: st.Phase()}
			if claims, ok := tokenstore.Inspect(st.Token); ok && !claims.ExpiresAt.IsZero() {
				exp := claims.ExpiresAt
				w.ExpiresAt = &exp
			}

			return out(cmd).print(w, func(tw *tabwriter.Writer) {
				u := st.User
				fmt.Fprintf(tw, "Name:\t%s\n", orDash(u.DisplayName()))
				fmt.Fprintf(tw, "Email:\t%s\n", orDash(emailOf(u)))
				fmt.Fprintf(tw, "Role:\t%s\n", orDash(roleOf(u)))
				fmt.Fprintf(tw, "Session:\t%s\n", w.Phase)
				if w.ExpiresAt != nil {
					fmt.Fprintf(tw, "Expires:\t%s\n", w.ExpiresAt.Local().Format(time.RFC1123))
				}
			})
		},
	})
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Re-fetch the profile from the server before printing")
	return cmd
}

func emailOf(u *model.UserProfile) string {
	if u == nil {
		return ""
	}
	return u.Email
}

func roleOf(u *model.UserProfile) string {
	if u == nil {
		return ""
	}
	return u.Role
}
