package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List known models and aliases",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd.Context())
		if err != nil {
			return err
		}

		models := client.Models()
		aliases := client.Aliases()

		if flagJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"models": models, "aliases": aliases})
		}

		// Invert the alias table for display.
		byModel := make(map[string][]string)
		for alias, id := range aliases {
			byModel[id] = append(byModel[id], "@"+alias)
		}
		for _, list := range byModel {
			sort.Strings(list)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\tALIASES")
		for _, m := range models {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				m.Provider, m.ID, m.ContextLength, joinOrDash(byModel[m.ID]))
		}
		return w.Flush()
	},
}

func joinOrDash(list []string) string {
	if len(list) == 0 {
		return "-"
	}
	out := list[0]
	for _, s := range list[1:] {
		out += ", " + s
	}
	return out
}
