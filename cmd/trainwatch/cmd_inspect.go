package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/trainwatch/internal/logging"
	"github.com/danielpatrickdp/trainwatch/internal/store"
)

// #region command
type inspectOptions struct {
	db      string
	runID   string
	last    int
	jsonOut bool
}

func newInspectCmd() *cobra.Command {
	opts := &inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List recorded runs, or show one run's latest metrics and dispatches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.NewStore(opts.db)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer st.Close()

			if opts.runID != "" {
				return runDetailMode(cmd.OutOrStdout(), st, opts.runID, opts.jsonOut)
			}
			return runListMode(cmd.OutOrStdout(), st, opts.last, opts.jsonOut)
		},
	}
	cmd.Flags().StringVar(&opts.db, "db", "", "path to the trainwatch SQLite database")
	cmd.Flags().StringVar(&opts.runID, "run", "", "show a single run in detail")
	cmd.Flags().IntVar(&opts.last, "last", 20, "show N most recent runs")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "output as JSON instead of a table")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}
// #endregion command

// #region list-mode
type listRow struct {
	RunID     string `json:"run_id"`
	StartedAt string `json:"started_at"`
	Metrics   int    `json:"metrics"`
}

func runListMode(w io.Writer, st *store.Store, last int, jsonOut bool) error {
	runs, err := st.Runs()
	if err != nil {
		return err
	}
	if last > 0 && len(runs) > last {
		runs = runs[:last]
	}

	rows := make([]listRow, len(runs))
	for i, r := range runs {
		latest, err := st.Latest(r.RunID)
		if err != nil {
			return err
		}
		rows[i] = listRow{
			RunID:     r.RunID,
			StartedAt: r.StartedAt.Format("2006-01-02T15:04:05Z"),
			Metrics:   len(latest),
		}
	}

	if jsonOut {
		return printJSON(w, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "no runs found")
		return nil
	}
	fmt.Fprintf(w, "%-36s  %-20s  %s\n", "Run", "Started", "Metrics")
	fmt.Fprintf(w, "%-36s+-%-20s+-%s\n", "------------------------------------", "--------------------", "-------")
	for _, r := range rows {
		fmt.Fprintf(w, "%-36s  %-20s  %d\n", r.RunID, r.StartedAt, r.Metrics)
	}
	return nil
}
// #endregion list-mode

// #region detail-mode
type detailOutput struct {
	RunID      string             `json:"run_id"`
	Config     json.RawMessage    `json:"config,omitempty"`
	Latest     map[string]float64 `json:"latest"`
	LatestStep map[string]int64   `json:"latest_step"`
	Dispatches []dispatchRow      `json:"dispatches"`
}

type dispatchRow struct {
	Metric string  `json:"metric"`
	Hook   string  `json:"hook"`
	Value  float64 `json:"value"`
	Epoch  int     `json:"epoch"`
	Step   int64   `json:"step"`
	Action string  `json:"action"`
	Detail string  `json:"detail,omitempty"`
}

func runDetailMode(w io.Writer, st *store.Store, runID string, jsonOut bool) error {
	runs, err := st.Runs()
	if err != nil {
		return err
	}
	var cfgJSON string
	found := false
	for _, r := range runs {
		if r.RunID == runID {
			cfgJSON, found = r.ConfigJSON, true
			break
		}
	}
	if !found {
		return fmt.Errorf("run %s not found", runID)
	}

	latest, err := st.Latest(runID)
	if err != nil {
		return err
	}
	dispatches, err := logging.Dispatches(st.DB(), runID)
	if err != nil {
		return err
	}

	out := detailOutput{
		RunID:      runID,
		Latest:     make(map[string]float64, len(latest)),
		LatestStep: make(map[string]int64, len(latest)),
		Dispatches: make([]dispatchRow, 0, len(dispatches)),
	}
	if cfgJSON != "" {
		out.Config = json.RawMessage(cfgJSON)
	}
	for _, p := range latest {
		out.Latest[p.Name] = p.Value
		out.LatestStep[p.Name] = p.Step
	}
	for _, d := range dispatches {
		out.Dispatches = append(out.Dispatches, dispatchRow{
			Metric: d.Metric,
			Hook:   d.Hook,
			Value:  d.Value,
			Epoch:  d.Epoch,
			Step:   d.Step,
			Action: d.Action,
			Detail: d.Detail,
		})
	}

	if jsonOut {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Run: %s\n", runID)
	fmt.Fprintf(w, "\nLatest values:\n")
	for _, p := range latest {
		fmt.Fprintf(w, "  %-24s %12.6g  (step %d)\n", p.Name, p.Value, p.Step)
	}
	fmt.Fprintf(w, "\nDispatches:\n")
	if len(out.Dispatches) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, d := range out.Dispatches {
		fmt.Fprintf(w, "  epoch %-4d step %-8d %-16s %12.6g  %s %s\n", d.Epoch, d.Step, d.Metric, d.Value, d.Action, d.Detail)
	}
	return nil
}
// #endregion detail-mode

// #region output
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
// #endregion output
