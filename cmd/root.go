// Package cmd implements the mkimg command line.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"go-mkimg/config"
	"go-mkimg/log"
	"go-mkimg/service"
)

// Exit codes
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// exitError carries a process exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// globalFlags are shared by every command.
type globalFlags struct {
	configDir string
	profile   string
	debug     bool
	yes       bool
}

// Execute runs the command line and returns the process exit code.
func Execute(version string) int {
	return run(version, os.Args[1:], os.Stdout, os.Stderr)
}

func run(version string, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(version)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitFailure
}

func newRootCmd(version string) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "mkimg",
		Short:         "Build disk images, retrying until one succeeds",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configDir, "config-dir", "C", "", "directory holding mkimg.ini (default /etc/mkimg)")
	pf.StringVarP(&flags.profile, "profile", "p", "default", "configuration profile")
	pf.BoolVarP(&flags.debug, "debug", "d", false, "debug output")
	pf.BoolVarP(&flags.yes, "yes", "y", false, "answer yes to all prompts")

	root.AddCommand(
		newBuildCmd(flags),
		newStatusCmd(flags),
		newUnmountCmd(flags),
		newLogsCmd(flags),
		newInitCmd(flags),
		newResetDBCmd(flags),
		newVersionCmd(version),
	)

	return root
}

// loadConfig loads the configuration named by the global flags and makes
// it the global configuration.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(f.configDir, f.profile)
	if err != nil {
		return nil, err
	}
	if f.debug {
		cfg.Debug = true
	}
	config.SetConfig(cfg)
	return cfg, nil
}

// openService loads the configuration and opens a service on it.
func (f *globalFlags) openService() (*service.Service, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	return service.NewService(cfg)
}

func (f *globalFlags) console(cmd *cobra.Command) *log.ConsoleLogger {
	return &log.ConsoleLogger{Out: cmd.ErrOrStderr(), Verbose: f.debug}
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mkimg version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mkimg version %s\n", version)
		},
	}
}
