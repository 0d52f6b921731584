package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go-mkimg/build"
	"go-mkimg/service"
)

type buildFlags struct {
	size   int64
	tmpDir string
	retry  int
}

func newBuildCmd(global *globalFlags) *cobra.Command {
	flags := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build NAME CONTENT",
		Short: "Build the image NAME from the directory CONTENT",
		Long: `Build the image NAME from the directory CONTENT.

The builder script creates and mounts the image; once it reports the image is
ready the populator copies CONTENT in. A failed attempt is cleaned up with a
forced unmount and retried, up to the retry budget.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var size *int64
			if cmd.Flags().Changed("size") {
				size = &flags.size
			}
			return runBuild(cmd, global, flags, args[0], args[1], size)
		},
	}

	f := cmd.Flags()
	f.Int64Var(&flags.size, "size", 0, "image size in bytes (default: builder decides)")
	f.StringVar(&flags.tmpDir, "tmpdir", "", "scratch directory for the builder, created if missing")
	f.IntVar(&flags.retry, "retry", 0, "number of attempts (default from configuration, 10)")
	_ = f.MarkHidden("retry")

	return cmd
}

func runBuild(cmd *cobra.Command, global *globalFlags, flags *buildFlags, name, content string, size *int64) error {
	if size != nil && *size <= 0 {
		return fmt.Errorf("--size must be positive, got %d", *size)
	}

	svc, err := global.openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	res, err := svc.Build(ctx, service.BuildOptions{
		Name:      name,
		Content:   content,
		Size:      size,
		TempDir:   flags.tmpDir,
		Retry:     flags.retry,
		Observers: []build.Observer{&build.StdoutProgress{Out: cmd.OutOrStdout()}},
		Logger:    global.console(cmd),
		Output:    cmd.OutOrStdout(),
	})

	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(cmd.ErrOrStderr(), "Interrupted")
		return &exitError{code: ExitInterrupted}
	case err != nil:
		return err
	case !res.Success:
		return &exitError{code: ExitFailure}
	}
	return nil
}
