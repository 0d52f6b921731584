package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the log directories and the build database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := global.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.Initialize()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Initializing mkimg environment...")
			for _, dir := range res.DirsCreated {
				fmt.Fprintf(w, "  ✓ %s\n", dir)
			}
			if res.DatabaseInitialized {
				fmt.Fprintf(w, "  ✓ Database: %s\n", svc.Config().Database.Path)
			}
			for _, script := range res.ScriptsFound {
				fmt.Fprintf(w, "  ✓ Script: %s\n", script)
			}
			for _, warning := range res.Warnings {
				fmt.Fprintf(w, "  ⚠ %s\n", warning)
			}
			return nil
		},
	}
}
