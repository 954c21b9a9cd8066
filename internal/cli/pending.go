package cli

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"cryptotrader/internal/pending"
)

func addPendingCommands(root *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List and resolve pending decisions awaiting operator action",
	}
	cmd.AddCommand(newPendingListCmd(app))
	cmd.AddCommand(newPendingApproveCmd(app))
	cmd.AddCommand(newPendingRejectCmd(app))
	root.AddCommand(cmd)
}

func newPendingListCmd(app *App) *cobra.Command {
	var modelIDFlag int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending decisions, optionally filtered to one model",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			var modelID *int64
			if modelIDFlag != 0 {
				modelID = &modelIDFlag
			}
			rows, err := app.Store.ListPending(cmd.Context(), modelID)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(rows)
			}
			for _, p := range rows {
				output.Printf("%d\tmodel=%d\t%s\t%s\t%s\texpires=%s\n",
					p.ID, p.ModelID, p.Coin, p.Decision.Signal, p.Status, p.ExpiresAt.Format("15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&modelIDFlag, "model-id", 0, "filter to one model")
	return cmd
}

func newPendingApproveCmd(app *App) *cobra.Command {
	var quantity, leverage string
	cmd := &cobra.Command{
		Use:   "approve <pending-id>",
		Short: "Approve a pending decision, optionally overriding quantity/leverage, and execute it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			id, err := parseModelID(args[0])
			if err != nil {
				return err
			}

			var mods *pending.Modifications
			if quantity != "" || leverage != "" {
				mods = &pending.Modifications{}
				if quantity != "" {
					q, err := decimal.NewFromString(quantity)
					if err != nil {
						return err
					}
					mods.Quantity = &q
				}
				if leverage != "" {
					l, err := decimal.NewFromString(leverage)
					if err != nil {
						return err
					}
					mods.Leverage = &l
				}
			}

			result, err := app.Pending.Approve(cmd.Context(), id, mods)
			if err != nil {
				output.Failure("approval failed: %v", err)
				return err
			}
			output.Success("pending %d resolved: %s", id, result.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&quantity, "quantity", "", "override quantity")
	cmd.Flags().StringVar(&leverage, "leverage", "", "override leverage")
	return cmd
}

func newPendingRejectCmd(app *App) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <pending-id>",
		Short: "Reject a pending decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			id, err := parseModelID(args[0])
			if err != nil {
				return err
			}
			if err := app.Pending.Reject(cmd.Context(), id, reason); err != nil {
				output.Failure("rejection failed: %v", err)
				return err
			}
			output.Success("pending %d rejected", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	return cmd
}
