package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var conceptsCmd = &cobra.Command{
	Use:   "concepts",
	Short: "Manage the ontology concept snapshot",
}

var conceptsRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch concepts from the ontology backend and rebuild term patterns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.concepts.Refresh(cmd.Context(), true)
		if err != nil {
			return err
		}
		fmt.Printf("refreshed %d concepts\n", n)
		return nil
	},
}

func init() {
	conceptsCmd.AddCommand(conceptsRefreshCmd)
}
