package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// CLI is the viper-driven nanocache command line
type CLI struct {
	rootCmd   *cobra.Command
	viperInst *viper.Viper
	configErr error

	logger    *slog.Logger
	logCloser io.Closer
}

// NewCLI creates the command tree and resolves configuration sources
func NewCLI() *CLI {
	cli := &CLI{
		viperInst: viper.New(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	cli.setupViperConfig()
	cli.createRootCommand()
	cli.addCommands()

	return cli
}

// setupViperConfig configures Viper with environment variables and config files
func (cli *CLI) setupViperConfig() {
	configFile := os.Getenv("NANOCACHE_CONFIG")
	if configFile != "" {
		cli.viperInst.SetConfigFile(configFile)
	} else {
		cli.viperInst.SetConfigName("nanocache")
		cli.viperInst.SetConfigType("yaml")
		cli.viperInst.AddConfigPath(".")
		cli.viperInst.AddConfigPath("$HOME/.nanocache")
		cli.viperInst.AddConfigPath("/etc/nanocache")
	}

	cli.viperInst.AutomaticEnv()
	cli.viperInst.SetEnvPrefix("NANOCACHE")

	// --log-level -> NANOCACHE_LOG_LEVEL
	cli.viperInst.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := cli.viperInst.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			cli.configErr = err
		}
	}
}

// createRootCommand creates the root Cobra command with Viper integration
func (cli *CLI) createRootCommand() {
	cli.rootCmd = &cobra.Command{
		Use:   "nanocache",
		Short: "Browse and edit server-owned collections through a lazy client cache",
		Long: `nanocache mirrors category trees and flat lists (addresses, payment methods)
from a backend. Trees load their children only when a node is opened, and every
change is confirmed by the backend before the cache shows it.

Configuration Sources (in order of precedence):
1. Command line flags
2. Environment variables (NANOCACHE_*)
3. Configuration file
4. Defaults

Configuration File Discovery:
  NANOCACHE_CONFIG=/path/to/config.yaml  # Custom config file path
  ./nanocache.yaml                       # Current directory
  ~/.nanocache/nanocache.yaml            # User directory
  /etc/nanocache/nanocache.yaml          # System directory

Examples:
  nanocache seed storefront.yaml
  nanocache tree --depth 2
  nanocache -c addresses list
  nanocache -c addresses set-default 7f1c...
  NANOCACHE_BACKEND=http NANOCACHE_API=http://localhost:8080 nanocache list`,

		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cli.configErr != nil {
				return NewConfigError("read configuration", cli.configErr.Error(), CommonSuggestions.CheckConfig)
			}

			logger, closer, err := initLogging(cli.viperInst.GetString("log-level"), cli.viperInst.GetBool("verbose"), cmd.ErrOrStderr())
			if err != nil {
				return NewConfigError("initialize logging", err.Error(), CommonSuggestions.CheckPerms)
			}
			cli.logger, cli.logCloser = logger, closer
			cli.logger.Debug("command started", "command", cmd.Name(), "args", args)
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return cli.closeLog()
		},
	}

	cli.addGlobalFlags()
}

// addGlobalFlags adds persistent flags that apply to all commands
func (cli *CLI) addGlobalFlags() {
	flags := cli.rootCmd.PersistentFlags()

	// Backend selection
	flags.String("backend", "json", "Backend (json|sqlite|http)")
	flags.String("store", "", "Store file path for json and sqlite (default nanocache.json or nanocache.db)")
	flags.String("api", "", "Base URL of a nanocache server for the http backend")
	flags.Int("retries", 3, "Attempts for each fetch before giving up")

	// Collection selection
	flags.StringP("collection", "c", "categories", "Collection name")
	flags.String("kind", "", "Collection shape (tree|flat); well known collections need no kind")

	// Output configuration
	flags.StringP("format", "f", "text", "Output format (text|markdown|json|yaml)")
	flags.BoolP("verbose", "v", false, "Also log to stderr")
	flags.String("log-level", "warn", "Log level (debug|info|warn|error)")

	for _, flag := range []string{"backend", "store", "api", "retries", "collection", "kind", "format", "verbose", "log-level"} {
		_ = cli.viperInst.BindPFlag(flag, flags.Lookup(flag))
	}
}

// addCommands adds all the CLI commands
func (cli *CLI) addCommands() {
	// Reading
	cli.addListCommand()
	cli.addTreeCommand()
	cli.addChildrenCommand()
	cli.addFindCommand()

	// Mutations
	cli.addAddCommand()
	cli.addUpdateCommand()
	cli.addSetDefaultCommand()
	cli.addDeleteCommand()
	cli.addSeedCommand()
	cli.addMigrateCommand()
	cli.addExportCommand()

	// Administrative
	cli.addServeCommand()
	cli.addConfigCommand()
}

// Execute runs the command line. ctx is canceled on interrupt by main.
func (cli *CLI) Execute(ctx context.Context) error {
	defer func() { _ = cli.closeLog() }()
	return cli.rootCmd.ExecuteContext(ctx)
}

func (cli *CLI) closeLog() error {
	if cli.logCloser == nil {
		return nil
	}
	err := cli.logCloser.Close()
	cli.logCloser = nil
	return err
}
