package cli

import (
	"github.com/spf13/cobra"

	"cryptotrader/internal/config"
)

func addConfigCommands(root *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	cmd.AddCommand(newConfigShowCmd(app))
	cmd.AddCommand(newConfigPathCmd(app))
	cmd.AddCommand(newConfigValidateCmd(app))
	root.AddCommand(cmd)
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the loaded configuration (credentials redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			redacted := *app.Config
			redacted.Credentials = config.Credentials{}
			return output.JSON(redacted)
		},
	}
}

func newConfigPathCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration directory in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			NewOutput(cmd).Println(config.DefaultConfigDir())
			return nil
		},
	}
}

func newConfigValidateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the loaded configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Failure("invalid configuration: %v", err)
				return err
			}
			output.Success("configuration is valid")
			return nil
		},
	}
}
