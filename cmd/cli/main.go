package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seqforge/seqnet/cmd/cli/commands"
	"github.com/seqforge/seqnet/cmd/cli/config"
	"github.com/seqforge/seqnet/pkg/constants"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   constants.AppName,
		Short: "Recurrent network toolkit for sequence data",
		Long: `A command-line interface for generating benchmark sequence datasets,
training recurrent networks on them and analyzing the results.`,
		Version:       constants.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.seqnet/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(commands.NewGenerateCmd())
	rootCmd.AddCommand(commands.NewTrainCmd())
	rootCmd.AddCommand(commands.NewEvaluateCmd())
	rootCmd.AddCommand(commands.NewAnalyzeCmd())

	return rootCmd
}

func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		cfg = config.Default()
	}
	commands.SetConfig(cfg)
	commands.SetVerbose(verbose)
}
