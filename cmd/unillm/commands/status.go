package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend availability and registered tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd.Context())
		if err != nil {
			return err
		}

		backends := client.Status(cmd.Context())
		tools := client.Tools()

		if flagJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"backends": backends, "tools": tools})
		}

		out := cmd.OutOrStdout()
		if len(backends) == 0 {
			fmt.Fprintln(out, "no backends configured; set ANTHROPIC_API_KEY, OPENAI_API_KEY or OLLAMA_HOST")
		}
		names := make([]string, 0, len(backends))
		for name := range backends {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			mark := "down"
			if backends[name] {
				mark = "up"
			}
			fmt.Fprintf(out, "%-12s %s\n", name, mark)
		}
		if len(tools) > 0 {
			fmt.Fprintln(out, "\ntools:", strings.Join(tools, ", "))
		}
		return nil
	},
}
