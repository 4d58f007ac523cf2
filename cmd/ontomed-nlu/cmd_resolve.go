package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var resolveRefresh bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <utterance>",
	Short: "Resolve an utterance to an intent with entities",
	Long: `resolve runs the full pipeline on the given utterance and prints the
resolved intent, its calibrated confidence and the extracted entities as JSON.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if resolveRefresh {
			if _, err := a.concepts.Refresh(ctx, false); err != nil {
				// Stale or empty ontology vocabulary is survivable; the
				// resolver still has its static and dynamic evidence.
				fmt.Fprintln(os.Stderr, "warning: ontology refresh failed:", err)
			}
		}

		text := strings.Join(args, " ")
		intent, err := a.resolver.Resolve(ctx, text)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(intent)
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveRefresh, "refresh-concepts", false,
		"refresh the ontology concept snapshot before resolving")
}
