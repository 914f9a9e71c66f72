// Command sheetflow is the terminal shell for the edit pipeline: it
// imports tabular files, replays saved analyses against them, previews
// the resulting sheets, and prints the equivalent pandas script.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sheetflow/internal/config"
	"sheetflow/internal/logging"
)

var (
	debugMode       bool
	codeOptionsPath string
	previewRows     int
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sheetflow",
		Short:         "Spreadsheet-style editing for dataframes, transpiled to pandas",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Initialize(config.MitoFolder(), debugMode)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&codeOptionsPath, "code-options", "",
		"YAML file with code emission options")
	root.PersistentFlags().IntVar(&previewRows, "rows", 10,
		"rows to show per sheet in previews")

	root.AddCommand(newSheetsCmd())
	root.AddCommand(newCodeCmd())
	root.AddCommand(newReplayCmd())
	root.AddCommand(newAnalysesCmd())
	root.AddCommand(newShowCmd())
	return root
}
