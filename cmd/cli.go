package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/habedi/wanderlist/auth"
	"github.com/habedi/wanderlist/client"
	"github.com/habedi/wanderlist/config"
	"github.com/habedi/wanderlist/db"
	"github.com/habedi/wanderlist/pkg/clierr"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// skipSession marks commands that run without opening the session storage.
const skipSession = "wanderlist/skip-session"

// app is what every command shares: configuration, the session store and
// the API client built on top of it.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	storage db.Storage
	store   *auth.TokenStore
	client  *client.Client
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rootCmd, a := newRootCmd()
	rootCmd.PersistentFlags().BoolP("help", "h", false, "Show help for a command")

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if closeErr := a.close(); err == nil {
		err = closeErr
	}
	if err != nil {
		log.Error().Err(err).Msg("Command execution failed.")
		rootCmd.PrintErrln("Error:", err)
		os.Exit(clierr.ExitCode(err))
	}
}

// newRootCmd returns the root command and the app its commands share. The
// caller closes the app once the command has finished.
func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: config.New()}

	rootCmd := &cobra.Command{
		Use:           "wanderlist",
		Short:         "A command-line client for the Wanderlist API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipSession] != "" {
				return nil
			}
			configFile, _ := cmd.Flags().GetString("config")
			return a.open(cmd.Context(), configFile)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a config file (default is $WANDERLIST_HOME/config.yaml)")
	flags.String("base-url", "", "Base URL of the Wanderlist API")
	flags.String("token-url", "", "OAuth2 token endpoint")
	flags.String("storage", "", "Session storage backend [sqlite, redis, memory]")
	flags.String("db-path", "", "Path to the SQLite session database")
	flags.String("redis-addr", "", "Redis address when --storage=redis")
	for key, flag := range map[string]string{
		"base_url":   "base-url",
		"token_url":  "token-url",
		"storage":    "storage",
		"db_path":    "db-path",
		"redis_addr": "redis-addr",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(
		loginCmd(a),
		logoutCmd(a),
		statusCmd(a),
		serveCmd(a),
		versionCmd(),
	)
	rootCmd.AddCommand(requestCmds(a)...)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	return rootCmd, a
}

// open loads the configuration and the persisted session.
func (a *app) open(ctx context.Context, configFile string) error {
	if configFile != "" {
		a.v.SetConfigFile(configFile)
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	return a.openWith(ctx, cfg)
}

func (a *app) openWith(ctx context.Context, cfg *config.Config) error {
	a.cfg = cfg
	if cfg.Storage == "" || cfg.Storage == db.BackendSQLite {
		if cfg.DBPath != "" {
			db.Path = cfg.DBPath
		} else if err := db.ConfigurePathErr(); err != nil {
			return clierr.New(clierr.Internal, "Failed to resolve the session database path", err)
		}
	}

	storage, err := db.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return clierr.New(clierr.Internal, "Failed to open session storage", err)
	}
	a.storage = storage
	a.store = auth.NewTokenStore(storage)
	if err := a.store.Load(ctx); err != nil {
		// The store is now unauthenticated; the user can still log in again.
		log.Warn().Err(err).Msg("Could not load the saved session")
	}

	a.client, err = client.New(cfg.ClientConfig(), a.store, nil)
	if err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	return nil
}

// close releases the session storage; closing twice is a no-op.
func (a *app) close() error {
	if a.storage == nil {
		return nil
	}
	err := a.storage.Close()
	a.storage = nil
	if err != nil {
		log.Error().Err(err).Msg("Failed to close session storage")
		return clierr.New(clierr.Internal, "Failed to close session storage", err)
	}
	return nil
}

// requestError turns a client error into a CLI error.
func requestError(err error) error {
	var statusErr *client.StatusError
	switch {
	case errors.Is(err, auth.ErrSessionExpired):
		return clierr.New(clierr.Auth, "Session expired. Please run `wanderlist login` again.", err)
	case errors.Is(err, auth.ErrDoubleFailure):
		return clierr.New(clierr.Auth, "The server rejected the refreshed credentials. Please run `wanderlist login` again.", err)
	case errors.As(err, &statusErr):
		return clierr.New(clierr.Request, statusErr.Error(), err)
	default:
		return clierr.New(clierr.Request, err.Error(), err)
	}
}
