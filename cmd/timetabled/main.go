// timetabled - day-cyclic ON/OFF timetable service
//
// This is the main entry point for the timetabled daemon. It hosts the
// timetables declared in the configuration file (read-only) and those
// created through the HTTP API (editable), publishes their state over MQTT
// and WebSocket, and records every transition in SQLite.
//
// Commands:
//
//	timetabled [serve]       run the service (default)
//	timetabled check-config  load and validate the configuration file
//	timetabled token         issue an API access token
//	timetabled version       print build information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-timetable/internal/auth"
	"github.com/nerrad567/gray-logic-timetable/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// defaultConfigPath is used when neither --config nor TIMETABLED_CONFIG is set.
	defaultConfigPath = "configs/config.yaml"

	// configEnvVar names the environment variable holding the config path.
	configEnvVar = "TIMETABLED_CONFIG"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root command without a
// subcommand is the same as "serve".
func newRootCmd() *cobra.Command {
	var configPath string

	serve := func(cmd *cobra.Command, _ []string) error {
		// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, resolveConfigPath(configPath))
	}

	root := &cobra.Command{
		Use:   "timetabled",
		Short: "Run day-cyclic ON/OFF timetables",
		Long: `timetabled hosts named timetables. Each one holds a set of
(time of day, ON/OFF) events that repeat every day, derives its current
state from them and publishes every change.

Timetables come from the configuration file (read-only) or are created
through the HTTP API (editable, persisted in SQLite).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		fmt.Sprintf("path to configuration file (default $%s or %s)", configEnvVar, defaultConfigPath))

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the timetable service",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		newCheckConfigCmd(&configPath),
		newTokenCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

// newCheckConfigCmd validates the configuration file without starting anything.
func newCheckConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := resolveConfigPath(*configPath)
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration %s is valid: site %q, %d read-only timetables\n",
				path, cfg.Site.ID, len(cfg.Timetables))
			return nil
		},
	}
}

// newTokenCmd issues a signed access token using the configured JWT secret.
func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigPath(*configPath))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.Security.JWT.Secret == "" {
				return fmt.Errorf("security.jwt.secret is not set; authentication is disabled")
			}
			if !auth.IsValidRole(auth.Role(role)) {
				return fmt.Errorf("%w: %q", auth.ErrInvalidRole, role)
			}
			if ttl == 0 {
				ttl = cfg.GetAccessTokenTTL()
			}

			token, err := auth.GenerateAccessToken(subject, auth.Role(role), cfg.Security.JWT.Secret, ttl)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleUser), "token role (user or admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default security.jwt.access_token_ttl)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "timetabled %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// resolveConfigPath returns the --config flag if given, then the
// TIMETABLED_CONFIG environment variable, then the default path.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown once ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	app, err := start(ctx, configPath)
	if err != nil {
		return err
	}
	defer app.shutdown()

	<-ctx.Done()
	app.log.Info("shutdown signal received")
	return nil
}
