package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go-ocr-throughput/internal/store"
)

func (a *app) newRunsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "List recorded runs, or show the errors of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Store.Path == "" {
				return errors.New("run history is disabled (store.path is empty)")
			}
			defer a.close()
			if err := a.openStore(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := store.GetRun(args[0])
				if err != nil {
					return err
				}
				jobErrors, err := store.GetRunErrors(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(out).Encode(map[string]interface{}{"run": run, "errors": jobErrors})
				}
				fmt.Fprintf(out, "%s %s %s: %d/%d succeeded\n", run.ID, run.Mode, run.Status, run.Succeeded, run.TotalJobs)
				for _, e := range jobErrors {
					fmt.Fprintf(out, "  [%s] unit %d %s: %s\n", e.Stage, e.Unit, e.Job, e.Message)
				}
				return nil
			}

			runs, err := store.ListRuns()
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(out).Encode(runs)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMODE\tN\tSTATUS\tJOBS\tFAILED\tSECONDS\tIMAGES/SEC\tCREATED")
			for _, r := range runs {
				rate := "n/a"
				if r.Rate != nil {
					rate = fmt.Sprintf("%.2f", *r.Rate)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%d\t%.2f\t%s\t%s\n",
					r.ID, r.Mode, r.Concurrency, r.Status, r.TotalJobs, r.Failed,
					float64(r.ElapsedMS)/1000, rate, r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
