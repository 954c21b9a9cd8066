package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cryptotrader/internal/models"
)

func addControlCommands(root *cobra.Command, app *App) {
	root.AddCommand(newStartCmd(app))
	root.AddCommand(newStopCmd(app))
	root.AddCommand(newEmergencyStopAllCmd(app))
	root.AddCommand(newEmergencyPauseCmd(app))
}

func newStartCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler: per-model cycles and the pending-expire sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if err := app.Scheduler.Start(cmd.Context()); err != nil {
				output.Failure("failed to start scheduler: %v", err)
				return err
			}
			output.Success("scheduler started")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			output.Info("shutting down...")
			app.Scheduler.Stop()
			output.Success("scheduler stopped")
			return nil
		},
	}
}

func newStopCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running scheduler process",
		Long:  "Send SIGTERM to the running 'start' process, or Ctrl-C it directly; this CLI has no separate control channel into another process.",
		RunE: func(cmd *cobra.Command, args []string) error {
			NewOutput(cmd).Info("send SIGINT/SIGTERM to the running 'start' process to stop it")
			return nil
		},
	}
}

func newEmergencyStopAllCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "emergency-stop-all",
		Short: "Force every live model to simulation and write one EMERGENCY_STOP_ALL incident",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Scheduler.EmergencyStopAll(cmd.Context()); err != nil {
				output.Failure("emergency stop all failed: %v", err)
				return err
			}
			output.Success("every live model forced to simulation")
			return nil
		},
	}
}

func newEmergencyPauseCmd(app *App) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "emergency-pause <model-id>",
		Short: "Reduce one model's automation to semi or manual and write an incident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			modelID, err := parseModelID(args[0])
			if err != nil {
				return err
			}

			level := models.AutomationSemi
			if target == "manual" {
				level = models.AutomationManual
			}

			if err := app.Scheduler.EmergencyPause(cmd.Context(), modelID, level); err != nil {
				output.Failure("emergency pause failed: %v", err)
				return err
			}
			output.Success("model %d automation reduced to %s", modelID, level)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "semi", "automation level to drop to: semi or manual")
	return cmd
}
