package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/trainwatch/internal/replay"
)

// #region command
func newReplayCmd() *cobra.Command {
	var fixture string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded batch outputs and compare against expected results",
		Long: `replay runs the pipeline stored in a fixture over its recorded batch
outputs and prints a comparison table. It exits 1 when any row diverges.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReplay(cmd, fixture)
		},
	}
	cmd.Flags().StringVar(&fixture, "fixture", "", "path to fixture JSON")
	_ = cmd.MarkFlagRequired("fixture")
	return cmd
}
// #endregion command

// #region replay
func runReplay(cmd *cobra.Command, path string) error {
	f, err := replay.LoadFixture(path)
	if err != nil {
		return err
	}
	res, err := replay.ReplayFixture(cmd.Context(), f, slog.Default())
	if err != nil {
		return err
	}

	rows := replay.Compare(res, f.Expected)
	if f.Description != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", f.Description)
	}
	if diverge := printComparison(cmd.OutOrStdout(), rows); diverge > 0 {
		return &exitError{code: 1, err: fmt.Errorf("%d of %d rows diverge", diverge, len(rows))}
	}
	return nil
}
// #endregion replay

// #region output
// printComparison writes one line per compared quantity and returns the
// number that diverge.
func printComparison(w io.Writer, rows []replay.Row) int {
	fmt.Fprintf(w, "%-16s| %-12s| %-28s| %-28s| %s\n", "Metric", "Field", "Expected", "Replayed", "Match")
	fmt.Fprintf(w, "%-16s+%-13s+%-29s+%-29s+%s\n",
		"----------------", "-------------", "-----------------------------", "-----------------------------", "------")

	for _, r := range rows {
		match := "DIFF"
		if r.Match {
			match = "OK"
		}
		fmt.Fprintf(w, "%-16s| %-12s| %-28s| %-28s| %s\n", r.Metric, r.Field, r.Expected, r.Replayed, match)
	}

	diverge := replay.Diverged(rows)
	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge\n", len(rows), len(rows)-diverge, diverge)
	return diverge
}
// #endregion output
