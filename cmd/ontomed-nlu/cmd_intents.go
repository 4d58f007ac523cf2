package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lehdermann/ontomed/internal/nlp"
)

var intentsCmd = &cobra.Command{
	Use:   "intents",
	Short: "Inspect and register dynamic intents",
}

var intentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered intents and their keyword counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		names := a.vocab.Intents()
		sort.Strings(names)
		if len(names) == 0 {
			fmt.Println("no intents registered")
			return nil
		}
		for _, name := range names {
			fmt.Printf("%-30s %d keywords\n", name, len(a.vocab.Keywords(name)))
		}
		return nil
	},
}

var intentsRegisterCmd = &cobra.Command{
	Use:   "register <file.yaml>",
	Short: "Register a dynamic intent from a YAML definition",
	Long: `register reads an intent definition (name, keywords, patterns,
expected_entities) from a YAML file, expands its vocabulary and persists the
registration so it survives restarts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var di nlp.DynamicIntent
		if err := yaml.Unmarshal(data, &di); err != nil {
			return fmt.Errorf("parse intent definition %s: %w", args[0], err)
		}
		if di.Name == "" {
			return fmt.Errorf("intent definition %s has no name", args[0])
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.resolver.RegisterDynamicIntent(cmd.Context(), di); err != nil {
			return err
		}
		fmt.Printf("registered %s (%d keywords)\n", di.Name, len(a.vocab.Keywords(di.Name)))
		return nil
	},
}

func init() {
	intentsCmd.AddCommand(intentsListCmd)
	intentsCmd.AddCommand(intentsRegisterCmd)
}
