package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Prints the settings after merging defaults, config files and
environment variables, in the order they were applied. Secrets are
redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd.Context())
		if err != nil {
			return err
		}

		settings := client.Settings()
		for name, b := range settings.Backends {
			if b.APIKey != "" {
				b.APIKey = "(set)"
				settings.Backends[name] = b
			}
		}

		if flagJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(settings)
		}
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(settings)
	},
}
