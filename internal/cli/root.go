package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"cryptotrader/internal/config"
	"cryptotrader/internal/pending"
	"cryptotrader/internal/profile"
	"cryptotrader/internal/resilience"
	"cryptotrader/internal/scheduler"
	"cryptotrader/internal/store"
)

// Version is the CLI's reported build version (§6).
const Version = "0.1.0"

// App holds the dependencies every subcommand needs. Built once in
// cmd/server/main.go and threaded through the whole command tree.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Store     store.Store
	Scheduler *scheduler.Scheduler
	Pending   *pending.Queue
	Profile   *profile.Engine
	Breakers  *resilience.CircuitBreakerRegistry
}

// NewRootCmd builds the root cobra command for the given App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "cryptotrader",
		Short:         "Multi-model AI cryptocurrency trading orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	root.PersistentFlags().Bool("json", false, "output in JSON format")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")

	addControlCommands(root, app)
	addModelCommands(root, app)
	addProfileCommands(root, app)
	addPendingCommands(root, app)
	addConfigCommands(root, app)
	addCredentialsCommands(root, app)
	addVersionCommand(root, app)
	root.AddCommand(newStatusCmd(app))

	return root
}
