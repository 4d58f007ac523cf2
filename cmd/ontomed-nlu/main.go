package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lehdermann/ontomed/internal/config"
	"github.com/lehdermann/ontomed/internal/logging"
)

var (
	configPath string
	verbose    bool

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ontomed-nlu",
	Short: "OntoMed NLU - intent resolution engine for the medical chatbot",
	Long: `ontomed-nlu resolves free-text Portuguese utterances to calibrated
intents and extracted entities.

The pipeline is rule-based: static token patterns, dependency patterns,
runtime-learned keyword vocabulary and ontology-derived medical terms are
combined into a single calibrated score distribution. Linguistic annotation
comes from an external sidecar; this binary carries no model of its own.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		if err := logging.Initialize(level, cfg.Logging.Development); err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "ontomed.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(intentsCmd)
	rootCmd.AddCommand(conceptsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
