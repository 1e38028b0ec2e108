package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/me/folio/internal/apiclient"
	"github.com/me/folio/internal/cache"
	"github.com/me/folio/internal/catalog"
	"github.com/me/folio/internal/config"
	"github.com/me/folio/internal/guard"
	"github.com/me/folio/internal/logging"
	"github.com/me/folio/internal/session"
	"github.com/me/folio/internal/store"
	"github.com/me/folio/internal/tokenstore"
	"github.com/me/folio/pkg/model"
)

var (
	flagConfig      string
	flagServer      string
	flagDebug       bool
	flagLogLevel    string
	flagLogFormat   string
	flagStorage     string
	flagStoragePath string
	flagOutput      string

	cfg     config.ClientConfig
	logger  *slog.Logger
	tokens  *tokenstore.Store
	api     *apiclient.Client
	sess    *session.Session
	cat     *catalog.Service
	cleanup []func() error

	// navMu guards navTarget, the last target the guard asked to navigate
	// to while the current command ran.
	navMu     sync.Mutex
	navTarget string
)

var (
	// ErrLoginRequired is returned by commands that need a session when
	// none is stored.
	ErrLoginRequired = errors.New("not logged in; run `folio login` first")
	// ErrForbidden is returned when the session lacks the command's role.
	ErrForbidden = errors.New("your account is not allowed to run this command")
)

const annotationPolicy = "folio/policy"

const (
	policyUser  = "user"
	policyStaff = "staff"
)

// requireUser marks cmd as needing a session.
func requireUser(cmd *cobra.Command) *cobra.Command {
	return annotate(cmd, policyUser)
}

// requireStaff marks cmd as needing a staff session.
func requireStaff(cmd *cobra.Command) *cobra.Command {
	return annotate(cmd, policyStaff)
}

func annotate(cmd *cobra.Command, policy string) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationPolicy] = policy
	return cmd
}

// policyFor returns the guard policy of cmd, inherited from the nearest
// annotated ancestor.
func policyFor(cmd *cobra.Command) guard.Policy {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Annotations[annotationPolicy] {
		case policyUser:
			return guard.Require()
		case policyStaff:
			return guard.Require(model.StaffRoles...)
		}
	}
	return guard.Public()
}

// NewRootCmd creates the root cobra command for the folio CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "folio",
		Short:             "folio: library catalog, reservations and loans",
		Long:              "folio signs in to the library service and manages books, reservations and loans.",
		PersistentPreRunE: setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return teardown()
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default ~/.folio/config.yaml)")
	pf.StringVar(&flagServer, "server", config.DefaultAPIURL, "Library API URL (or FOLIO_SERVER env)")
	pf.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")
	pf.StringVar(&flagStorage, "storage", string(store.KindFile), "Token storage: file, sqlite, none")
	pf.StringVar(&flagStoragePath, "storage-path", "", "Token storage path (default under ~/.folio)")
	pf.StringVarP(&flagOutput, "output", "o", "table", "Output format: table, json, yaml")

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newRegisterCmd(),
		newWhoamiCmd(),
		newBooksCmd(),
		newUsersCmd(),
		newLoansCmd(),
		newReservationsCmd(),
		newReserveCmd(),
		newBorrowCmd(),
		newReturnCmd(),
	)

	return root
}

// Execute runs the CLI with args and releases storage even when a command
// fails.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	return execute(ctx, root)
}

// execute runs root. A command that fails after the guard turned against
// the session, e.g. because the API revoked the token mid-command, reports
// the guard's error wrapping the command's own.
func execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if gerr := guardErr(); err != nil && gerr != nil && !errors.Is(err, gerr) {
		err = fmt.Errorf("%w: %w", gerr, err)
	}
	return errors.Join(err, teardown())
}

func setNavTarget(target string) {
	navMu.Lock()
	navTarget = target
	navMu.Unlock()
}

// guardErr maps the last guard navigation to the error a command reports
// in its place.
func guardErr() error {
	navMu.Lock()
	defer navMu.Unlock()
	switch navTarget {
	case "":
		return nil
	case guard.ForbiddenPath:
		return ErrForbidden
	}
	return ErrLoginRequired
}

// loadConfig layers defaults, the config file, FOLIO_* env and flags.
func loadConfig(cmd *cobra.Command) (config.ClientConfig, string, error) {
	c := config.DefaultClientConfig()
	if err := config.LoadDotEnv(".env"); err != nil {
		return c, "", err
	}

	dir, err := config.Dir()
	if err != nil {
		return c, "", err
	}
	path := flagConfig
	if path == "" {
		path = filepath.Join(dir, "config.yaml")
	}
	if err := c.LoadFile(path); err != nil {
		return c, "", err
	}
	c.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("server") {
		c.Server = flagServer
	}
	if flags.Changed("log-level") {
		c.LogLevel = flagLogLevel
	}
	if flags.Changed("log-format") {
		c.LogFormat = flagLogFormat
	}
	if flags.Changed("storage") {
		c.Storage = flagStorage
	}
	if flags.Changed("storage-path") {
		c.StoragePath = flagStoragePath
	}
	if flags.Changed("output") {
		c.Output = flagOutput
	}
	if flagDebug {
		c.LogLevel = "debug"
	}
	return c, dir, nil
}

func setup(cmd *cobra.Command, args []string) error {
	setNavTarget("")
	c, dir, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg = c
	if _, err := newPrinter(cmd.OutOrStdout(), cfg.Output); err != nil {
		return err
	}

	logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
	cleanup = nil

	backend, closeStore, err := store.Open(cmd.Context(), store.Kind(cfg.Storage), cfg.ResolvedStoragePath(dir), logger)
	if err != nil {
		return fmt.Errorf("open token storage: %w", err)
	}
	cleanup = append(cleanup, closeStore)

	tokens = tokenstore.New(backend, logger)
	api = apiclient.New(cfg.Server, tokens, apiclient.WithLogger(logger))

	var respCache cache.Cache
	if rdb := cache.NewRedisClient(cfg.Redis, false); rdb != nil {
		respCache = cache.New(rdb, logger)
		cleanup = append(cleanup, rdb.Close)
	}
	cat = catalog.New(api, respCache, cache.Keyer{}, logger)

	sess = session.New(tokens, api, logger)
	cleanup = append(cleanup, func() error { sess.Close(); return nil })

	if err := sess.Start(cmd.Context()); err != nil {
		return err
	}

	path := cmd.CommandPath()
	stop := guard.Watch(sess, policyFor(cmd), path, guard.NavigatorFunc(func(target string) {
		logger.Debug("guard navigation", "command", path, "target", target)
		setNavTarget(target)
	}))
	cleanup = append(cleanup, func() error { stop(); return nil })
	return guardErr()
}

func teardown() error {
	var errs []error
	for i := len(cleanup) - 1; i >= 0; i-- {
		if err := cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	cleanup = nil
	return errors.Join(errs...)
}
