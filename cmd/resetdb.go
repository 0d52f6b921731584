package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-mkimg/util"
)

func newResetDBCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-db",
		Short: "Delete the build history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := global.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			w := cmd.OutOrStdout()
			if !global.yes {
				fmt.Fprintf(w, "⚠️  WARNING: This will delete the build database\n")
				fmt.Fprintf(w, "Database: %s\n\n", svc.Config().Database.Path)
				if !util.AskYN("Are you sure?", false) {
					fmt.Fprintln(w, "Cancelled")
					return nil
				}
			}

			if _, err := svc.ResetDatabase(); err != nil {
				return err
			}
			fmt.Fprintln(w, "✓ Build database reset successfully")
			return nil
		},
	}
}
