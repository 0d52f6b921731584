package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"go-mkimg/util"
)

func newUnmountCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unmount",
		Short: "Force-unmount the image mount left behind by an interrupted build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !global.yes && !util.AskYN("Force unmount now?", false) {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
				return nil
			}

			svc, err := global.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			if err := svc.Unmount(ctx, cmd.OutOrStdout(), global.console(cmd)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Unmounted")
			return nil
		},
	}
}
