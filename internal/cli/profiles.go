package cli

import (
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"cryptotrader/internal/models"
)

func addProfileCommands(root *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List, apply, and recommend risk profiles",
	}
	cmd.AddCommand(newProfilesListCmd(app))
	cmd.AddCommand(newProfilesApplyCmd(app))
	cmd.AddCommand(newProfilesRecommendCmd(app))
	root.AddCommand(cmd)
}

func newProfilesListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the five system risk profiles plus any custom ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			profiles, err := app.Store.ListRiskProfiles(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(profiles)
			}
			for _, p := range profiles {
				output.Printf("%d\t%s\t%s\n", p.ID, p.Name, p.Description)
			}
			return nil
		},
	}
}

func newProfilesApplyCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <model-id> <profile-id>",
		Short: "Apply a risk profile to a model, closing and attributing any open session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			modelID, err := parseModelID(args[0])
			if err != nil {
				return err
			}
			profileIDRaw, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return err
			}
			if err := app.Profile.Apply(cmd.Context(), modelID, models.ProfileID(profileIDRaw)); err != nil {
				output.Failure("applying profile failed: %v", err)
				return err
			}
			output.Success("model %d switched to profile %d", modelID, profileIDRaw)
			return nil
		},
	}
}

func newProfilesRecommendCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <model-id>",
		Short: "Recommend a risk profile for a model from its recent trade history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			modelID, err := parseModelID(args[0])
			if err != nil {
				return err
			}

			// Drawdown here is intentionally decimal.Zero: the live
			// intraday figure only exists mid-cycle inside the
			// scheduler/trading package, not from a one-shot CLI query.
			rec, err := app.Profile.Recommend(cmd.Context(), modelID, decimal.Zero, false, false)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(rec)
			}
			output.Printf("recommended profile: %d (confidence %d%%) - %s\n", rec.ProfileID, rec.Confidence, rec.Reason)
			if rec.ShouldSwitch {
				output.Warn("model is not currently on the recommended profile")
			}
			return nil
		},
	}
}
