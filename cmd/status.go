package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"go-mkimg/builddb"
	"go-mkimg/service"
	"go-mkimg/util"
)

func newStatusCmd(global *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status [RUN_ID]",
		Short: "Show recent builds and their attempts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := global.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			opts := service.StatusOptions{Limit: limit}
			if len(args) == 1 {
				opts.RunID = args[0]
			}

			res, err := svc.Status(opts)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), svc.Config().Database.Path, res, opts.RunID != "")
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	return cmd
}

func printStatus(w io.Writer, dbPath string, res *service.StatusResult, detail bool) {
	fmt.Fprintln(w, "=== Build Database Status ===")
	fmt.Fprintf(w, "Database:      %s\n", dbPath)
	fmt.Fprintf(w, "Size:          %s\n", util.FormatBytes(res.DatabaseSize))
	fmt.Fprintf(w, "Succeeded:     %d attempt(s) in the last log\n", res.Logs["success"])
	fmt.Fprintf(w, "Failed:        %d attempt(s) in the last log\n", res.Logs["failed"])
	if res.Active != nil {
		fmt.Fprintf(w, "Active run:    %s (%s, started %s)\n",
			shortID(res.Active.ID), res.Active.Name, res.Active.StartTime.Format("2006-01-02 15:04:05"))
	}

	if len(res.Runs) == 0 {
		fmt.Fprintln(w, "\nNo build history available. Run a build first.")
		return
	}

	for _, rs := range res.Runs {
		run := rs.Run
		fmt.Fprintf(w, "\n%s %s:\n", shortID(run.ID), run.Name)
		fmt.Fprintf(w, "  Result:      %s\n", runResult(run))
		fmt.Fprintf(w, "  Attempts:    %d/%d\n", len(rs.Attempts), run.Retry)
		fmt.Fprintf(w, "  Started:     %s\n", run.StartTime.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "  Duration:    %s\n", util.FormatDuration(rs.Duration()))

		if !detail {
			continue
		}
		for _, a := range rs.Attempts {
			printAttempt(w, a)
		}
	}
}

func printAttempt(w io.Writer, a builddb.AttemptRecord) {
	line := fmt.Sprintf("    #%d %-8s %s", a.Attempt, a.Status, a.EndTime.Sub(a.StartTime).Round(time.Second))
	if a.Reason != "" {
		line += "  " + a.Reason
	}
	if a.ForcedUnmount {
		line += "  [forced unmount"
		if a.UnmountError != "" {
			line += " failed: " + a.UnmountError
		}
		line += "]"
	}
	fmt.Fprintln(w, line)
}

func runResult(run builddb.RunRecord) string {
	switch {
	case run.Running():
		return "running"
	case run.Success:
		return "success"
	case run.Aborted:
		return "interrupted"
	default:
		return "failed"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
