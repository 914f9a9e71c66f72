package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"sheetflow/internal/config"
	"sheetflow/internal/saved"
	"sheetflow/pkg/sheetflow"
)

// construct builds an analysis from the CLI's file arguments.
func construct(cmd *cobra.Command, args []string) (*sheetflow.Analysis, error) {
	opts := sheetflow.Options{}
	if codeOptionsPath != "" {
		co, err := config.LoadCodeOptionsFile(codeOptionsPath)
		if err != nil {
			return nil, err
		}
		opts.CodeOptions = &co
	}
	inputs := make([]any, len(args))
	for i, a := range args {
		inputs[i] = a
	}
	return sheetflow.Construct(cmd.Context(), inputs, opts)
}

func newSheetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sheets <file>...",
		Short: "Import files and preview the resulting sheets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := construct(cmd, args)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), previewAnalysis(a, previewRows))
			return nil
		},
	}
}

func newCodeCmd() *cobra.Command {
	var analysisName string
	cmd := &cobra.Command{
		Use:   "code <file>...",
		Short: "Print the pandas script for the imported files, optionally after replaying a saved analysis",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := construct(cmd, args)
			if err != nil {
				return err
			}
			if analysisName != "" {
				err := a.ReceiveUpdate("replay_analysis", map[string]any{
					"analysis_name": analysisName,
				})
				if err != nil {
					return err
				}
			}
			code, params, err := a.EmitCode()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), code)
			if len(params) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\n# parameters: %v\n", params)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&analysisName, "analysis", "", "saved analysis to replay first")
	return cmd
}

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <analysis> <file>...",
		Short: "Replay a saved analysis against new files and preview the result",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := construct(cmd, args[1:])
			if err != nil {
				return err
			}
			err = a.ReceiveUpdate("replay_analysis", map[string]any{
				"analysis_name": args[0],
			})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), previewAnalysis(a, previewRows))
			return nil
		},
	}
}

func newAnalysesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyses",
		Short: "List saved analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := saved.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no saved analyses")
				return nil
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <analysis>",
		Short: "Print the steps of a saved analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := saved.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (schema v%d, interface v%d)\n",
				a.Name, a.Version, a.PublicInterfaceVersion)
			for i, rec := range a.StepsData {
				params, err := json.Marshal(rec.Params)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s v%d  %s\n",
					i+1, rec.Type, rec.Version, params)
			}
			return nil
		},
	}
}
