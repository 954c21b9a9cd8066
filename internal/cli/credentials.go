package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cryptotrader/internal/models"
	"cryptotrader/internal/security"
)

func addCredentialsCommands(root *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage per-model exchange API credentials",
	}
	cmd.AddCommand(newCredentialsSetCmd(app))
	root.AddCommand(cmd)
}

func newCredentialsSetCmd(app *App) *cobra.Command {
	var (
		modelID           int64
		env               string
		apiKey, apiSecret string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a model's exchange API key/secret, encrypted at rest with the operator's master password",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Config.Credentials.MasterPassword == "" && app.Config.Security.EncryptCredentials {
				return fmt.Errorf("CRYPTOTRADER_MASTER_PASSWORD must be set to store encrypted credentials")
			}

			keyBytes := []byte(apiKey)
			secretBytes := []byte(apiSecret)
			if app.Config.Security.EncryptCredentials {
				var err error
				keyBytes, err = security.EncryptBlob(app.Config.Credentials.MasterPassword, keyBytes)
				if err != nil {
					return fmt.Errorf("encrypting api key: %w", err)
				}
				secretBytes, err = security.EncryptBlob(app.Config.Credentials.MasterPassword, secretBytes)
				if err != nil {
					return fmt.Errorf("encrypting api secret: %w", err)
				}
			}

			if err := app.Store.SaveCredentials(cmd.Context(), modelID, models.ExchangeEnvironment(env), keyBytes, secretBytes); err != nil {
				return err
			}
			output.Success("credentials stored for model %d (%s)", modelID, env)
			return nil
		},
	}
	cmd.Flags().Int64Var(&modelID, "model", 0, "model ID")
	cmd.Flags().StringVar(&env, "env", string(models.ExchangeTestnet), "exchange environment (testnet, mainnet)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "exchange API key")
	cmd.Flags().StringVar(&apiSecret, "api-secret", "", "exchange API secret")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("api-key")
	_ = cmd.MarkFlagRequired("api-secret")
	return cmd
}
