package cli

import "github.com/spf13/cobra"

func addVersionCommand(root *cobra.Command, app *App) {
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		RunE: func(cmd *cobra.Command, args []string) error {
			NewOutput(cmd).Println(Version)
			return nil
		},
	})
}
