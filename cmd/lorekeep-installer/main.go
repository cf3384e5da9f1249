// SPDX-License-Identifier: MPL-2.0

// The lorekeep-installer binary is the detached second half of a lorekeep
// self-update. The application stages a release payload, spawns this
// process, and exits; this process waits for the application's PID to
// vanish, replaces the install tree, and relaunches the application.
//
// Everything it needs arrives on the command line — it holds no channel
// back to the process that launched it, which is expected to be gone by
// the time any of this runs. Failures surface only through the exit code
// and the log.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"lorekeep/internal/install"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the installer's command line:
// --source, --target, repeatable --preserve, --wait-for-pid,
// --wait-timeout, --restart-target, repeatable --cleanup-root.
func newRootCommand() *cobra.Command {
	var (
		opts        install.Options
		waitTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:           "lorekeep-installer",
		Short:         "Apply a staged lorekeep update to the install directory",
		Long: `Apply a staged lorekeep update to the install directory.

This process is normally spawned by lorekeep itself during an update.
It waits for the launching process to exit, copies the staged payload
over the installation (skipping preserved paths such as campaign
databases), removes its staging directories, and restarts lorekeep.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.NewWithOptions(os.Stderr, log.Options{
				ReportTimestamp: true,
				Prefix:          "installer",
			})

			opts.WaitTimeout = waitTimeout
			if err := install.Apply(opts, logger); err != nil {
				logger.Error("update failed", "err", err)
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Update applied successfully.")
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "staged payload directory to copy from")
	cmd.Flags().StringVar(&opts.Target, "target", "", "install directory to update")
	cmd.Flags().StringArrayVar(&opts.Preserve, "preserve", nil, "relative path prefix to leave untouched (repeatable)")
	cmd.Flags().IntVar(&opts.WaitPID, "wait-for-pid", 0, "wait for this process to exit before copying")
	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", install.DefaultWaitTimeout, "how long to wait for the process to exit")
	cmd.Flags().StringVar(&opts.RestartTarget, "restart-target", "", "executable to launch after a successful update")
	cmd.Flags().StringArrayVar(&opts.CleanupRoots, "cleanup-root", nil, "directory to delete after a successful update (repeatable)")

	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}
