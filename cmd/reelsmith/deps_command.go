package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelsmith/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external binaries, directories and providers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			if ctx.jsonOutput() {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					state := "ok"
					if !r.Passed {
						state = "failed"
					}
					rows = append(rows, []string{r.Name, colorStatus(state, colorize), r.Detail})
				}
				fmt.Fprintln(out, renderTable([]string{"Check", "Result", "Detail"}, rows, nil))
				if !cfg.GenerativeLive() {
					fmt.Fprintln(out, "No provider keys configured: transcripts, scripts and voiceovers use the deterministic fallback.")
				}
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			return nil
		},
	}
}
