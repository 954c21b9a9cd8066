package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"cryptotrader/internal/models"
	"cryptotrader/internal/security"
)

func addModelCommands(root *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List and manage trading models",
	}
	cmd.AddCommand(newModelsListCmd(app))
	cmd.AddCommand(newModelsAddCmd(app))
	cmd.AddCommand(newModelsPauseCmd(app))
	cmd.AddCommand(newModelsResumeCmd(app))
	root.AddCommand(cmd)
}

func newModelsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every model",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			list, err := app.Store.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(list)
			}
			for _, m := range list {
				output.Printf("%d\t%s\t%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Status, m.Environment, m.Automation, strings.Join(m.Coins, ","))
			}
			return nil
		},
	}
}

func newModelsAddCmd(app *App) *cobra.Command {
	var (
		aiProvider, aiModelID, coinsFlag, initialCapital, environment, automation, exchangeEnv string
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a new model with default risk settings (Balanced profile)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			capital, err := decimal.NewFromString(initialCapital)
			if err != nil {
				return fmt.Errorf("invalid --initial-capital: %w", err)
			}

			coins := splitCoins(coinsFlag)
			if app.Config != nil && app.Config.Security.StrictValidation {
				validator := security.NewInputValidator(true)
				if err := validator.ValidateModelName(args[0]); err != nil {
					return err
				}
				for _, coin := range coins {
					if err := validator.ValidateCoin(coin); err != nil {
						return err
					}
				}
			}

			model := &models.Model{
				Name: args[0], AIProvider: aiProvider, AIModelID: aiModelID,
				Coins: coins, InitialCapital: capital,
				Status: models.ModelActive, Environment: models.Environment(environment),
				Automation: models.AutomationLevel(automation), ExchangeEnv: models.ExchangeEnvironment(exchangeEnv),
				CreatedAt: time.Now(),
			}
			id, err := app.Store.CreateModel(cmd.Context(), model)
			if err != nil {
				return err
			}

			if err := app.Store.SaveSettings(cmd.Context(), &models.ModelSettings{
				ModelID: id, TradingIntervalMinutes: models.DefaultTradingIntervalMinutes,
				FeeRate: decimal.NewFromFloat(0.001), AITemperature: 0.3,
				AutoPauseEnabled: true, AutoPauseConsecutiveLosses: 5,
				AutoPauseWinRateThresholdPct: decimal.NewFromInt(30),
				NotifyOnTrade: true, NotifyOnIncident: true,
			}); err != nil {
				return fmt.Errorf("saving default settings: %w", err)
			}
			if err := app.Profile.Apply(cmd.Context(), id, models.ProfileBalanced); err != nil {
				return fmt.Errorf("applying default risk profile: %w", err)
			}

			output.Success("model %d created (%s, Balanced profile)", id, model.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&aiProvider, "ai-provider", "openai", "AI provider")
	cmd.Flags().StringVar(&aiModelID, "ai-model-id", "gpt-4o-mini", "AI model id")
	cmd.Flags().StringVar(&coinsFlag, "coins", "BTC,ETH", "comma-separated coins to trade")
	cmd.Flags().StringVar(&initialCapital, "initial-capital", "10000", "initial capital")
	cmd.Flags().StringVar(&environment, "environment", string(models.EnvironmentSimulation), "simulation or live")
	cmd.Flags().StringVar(&automation, "automation", string(models.AutomationManual), "manual, semi, or full")
	cmd.Flags().StringVar(&exchangeEnv, "exchange-env", string(models.ExchangeTestnet), "testnet or mainnet")
	return cmd
}

func newModelsPauseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <model-id>",
		Short: "Set a model's status to paused",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setModelStatus(cmd, app, args[0], models.ModelPaused)
		},
	}
}

func newModelsResumeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <model-id>",
		Short: "Set a model's status to active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setModelStatus(cmd, app, args[0], models.ModelActive)
		},
	}
}

func setModelStatus(cmd *cobra.Command, app *App, idArg string, status models.ModelStatus) error {
	output := NewOutput(cmd)
	id, err := parseModelID(idArg)
	if err != nil {
		return err
	}
	if err := app.Store.UpdateModelStatus(cmd.Context(), id, status); err != nil {
		return err
	}
	output.Success("model %d status set to %s", id, status)
	return nil
}

func splitCoins(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
