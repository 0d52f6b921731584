package cmd

import (
	"github.com/spf13/cobra"

	"go-mkimg/log"
)

func newLogsCmd(global *globalFlags) *cobra.Command {
	var (
		tail    int
		noPager bool
	)

	cmd := &cobra.Command{
		Use:   "logs [LOG]",
		Short: "List or show build logs",
		Long: `Without arguments, list the summary logs and the attempt logs.

LOG is a summary log alias (results, success, failure, debug or 00, 01, 02,
07) or an attempt log file name.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				return log.ListLogs(cfg, out)
			}
			if tail > 0 {
				return log.TailLog(cfg, args[0], tail, out)
			}
			return log.ViewLog(cfg, args[0], out, !noPager)
		},
	}

	cmd.Flags().IntVarP(&tail, "tail", "t", 0, "show only the last N lines")
	cmd.Flags().BoolVar(&noPager, "no-pager", false, "do not page the output")
	return cmd
}
