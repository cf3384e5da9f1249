// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"lorekeep/internal/config"
	"lorekeep/internal/update"
)

// launchInstaller is a test seam over update.Launch.
//
//nolint:gochecknoglobals // Test seam for update.Launch.
var launchInstaller = update.Launch

// newUpdateCommand groups the update check/apply flow.
func newUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check for and install lorekeep updates",
	}
	cmd.AddCommand(newUpdateCheckCommand())
	cmd.AddCommand(newUpdateApplyCommand())
	return cmd
}

// checkParams bundles the dependencies and flags for `update check`,
// enabling the core logic in runUpdateCheck to be tested without a real
// Cobra command or live feed calls.
type checkParams struct {
	stdout  io.Writer
	checker *update.Checker
	prefs   update.Prefs
	prefDir string
	skip    bool // --skip: record the offered version as declined
	all     bool // --all: offer even a previously skipped version
}

func newUpdateCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a newer release is published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceErrors = true
			cmd.SilenceUsage = true

			skipFlag, _ := cmd.Flags().GetBool("skip")
			allFlag, _ := cmd.Flags().GetBool("all")

			checker, _, prefDir, err := buildChecker()
			if err != nil {
				return err
			}
			prefs, err := update.LoadPrefs(prefDir)
			if err != nil {
				return err
			}

			p := checkParams{
				stdout:  cmd.OutOrStdout(),
				checker: checker,
				prefs:   prefs,
				prefDir: prefDir,
				skip:    skipFlag,
				all:     allFlag,
			}
			if err := runUpdateCheck(cmd.Context(), p); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ErrorStyle.Render(err.Error()))
				return &ExitError{Code: classifyUpdateExitCode(err), Err: err}
			}
			return nil
		},
	}

	cmd.Flags().Bool("skip", false, "Record the offered version as declined")
	cmd.Flags().Bool("all", false, "Offer updates the user previously skipped")

	return cmd
}

// runUpdateCheck is the core check logic, separated from Cobra for testability.
func runUpdateCheck(ctx context.Context, p checkParams) error {
	installed, cand, err := p.checker.Check(ctx)
	if err != nil {
		return err
	}

	p.prefs.MarkChecked(time.Now())
	defer func() {
		// State persistence is a convenience; its failure must not turn a
		// successful check into an error.
		_ = p.prefs.Save(p.prefDir)
	}()

	fmt.Fprintf(p.stdout, "Installed version: %s\n", installed)

	if cand == nil {
		fmt.Fprintln(p.stdout, "lorekeep is up to date.")
		return nil
	}

	if !p.all && !p.prefs.ShouldOffer(cand) {
		fmt.Fprintln(p.stdout, WarningStyle.Render(
			fmt.Sprintf("Version %s is available but was previously skipped (use --all to see it).", cand.Version)))
		return nil
	}

	fmt.Fprintf(p.stdout, "New version:       %s (%s)\n\n", cand.Version, cand.AssetName)

	if notes := strings.TrimSpace(cand.ReleaseNotes); notes != "" {
		fmt.Fprintln(p.stdout, renderReleaseNotes(notes))
	}

	if p.skip {
		p.prefs.SkipVersion(cand.Version)
		fmt.Fprintf(p.stdout, "Version %s will not be offered again.\n", cand.Version)
		return nil
	}

	fmt.Fprintln(p.stdout, "Run 'lorekeep update apply' to install.")
	return nil
}

// applyParams bundles the dependencies and flags for `update apply`.
type applyParams struct {
	stdout  io.Writer
	stdin   io.Reader
	checker *update.Checker
	cfg     *config.Config
	yes     bool // --yes: skip the confirmation prompt
}

func newUpdateApplyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Download the newest release and install it",
		Long: `Download the newest release and install it.

The release payload is staged in a private temporary directory and a
detached installer process is spawned. The installer waits for this
process to exit, then replaces the install directory, leaving preserved
paths (campaign databases, local configuration) untouched, and restarts
lorekeep when it is done.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceErrors = true
			cmd.SilenceUsage = true

			yesFlag, _ := cmd.Flags().GetBool("yes")

			checker, cfg, _, err := buildChecker()
			if err != nil {
				return err
			}

			p := applyParams{
				stdout:  cmd.OutOrStdout(),
				stdin:   cmd.InOrStdin(),
				checker: checker,
				cfg:     cfg,
				yes:     yesFlag,
			}
			if err := runUpdateApply(cmd.Context(), p); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ErrorStyle.Render(err.Error()))
				return &ExitError{Code: classifyUpdateExitCode(err), Err: err}
			}
			return nil
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

// runUpdateApply is the core apply logic: check, confirm, stage, launch the
// installer, and return so the process can exit. Once the installer has
// been spawned there is no cancellation path; the only leverage point is
// before the spawn.
func runUpdateApply(ctx context.Context, p applyParams) error {
	installed, cand, err := p.checker.Check(ctx)
	if err != nil {
		return err
	}
	if cand == nil {
		fmt.Fprintf(p.stdout, "Installed version %s is up to date.\n", installed)
		return nil
	}

	fmt.Fprintf(p.stdout, "Installed version: %s\n", installed)
	fmt.Fprintf(p.stdout, "New version:       %s\n", cand.Version)

	if !p.yes && !confirm(p.stdin, p.stdout, fmt.Sprintf("Update lorekeep to %s?", cand.Version)) {
		return nil
	}

	progress := func(message string, fraction float64) {
		if fraction > 0 {
			fmt.Fprintf(p.stdout, "\r%-40s %3.0f%%", message, fraction*100)
		} else {
			fmt.Fprintf(p.stdout, "\r%-40s", message)
		}
	}

	staging, err := p.checker.Stage(ctx, cand, progress)
	if err != nil {
		return err
	}
	fmt.Fprintln(p.stdout)

	execPath, err := os.Executable()
	if err != nil {
		staging.Cleanup()
		return fmt.Errorf("resolving executable path: %w", err)
	}

	_, err = launchInstaller(update.LaunchOptions{
		PayloadRoot:   staging.PayloadRoot,
		InstallRoot:   p.cfg.InstallRoot,
		RestartTarget: execPath,
		Preserve:      p.cfg.PreservePaths,
		CleanupRoots:  []string{staging.Root},
	})
	if err != nil {
		// The last point where this process can still react: nothing has
		// been spawned, so the staging area can be reclaimed.
		staging.Cleanup()
		return err
	}

	fmt.Fprintln(p.stdout, SuccessStyle.Render("Installer launched; lorekeep will restart shortly."))
	return nil
}

// buildChecker assembles the feed client and checker from configuration,
// returning the loaded config alongside so callers do not load it twice.
func buildChecker() (*update.Checker, *config.Config, string, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, "", err
	}

	var feedOpts []update.FeedOption
	if cfg.GitHubToken != "" {
		feedOpts = append(feedOpts, update.WithToken(cfg.GitHubToken))
	}
	feedOpts = append(feedOpts, update.WithUserAgent("lorekeep/"+Version))
	feed := update.NewFeedClient(cfg.FeedOwner, cfg.FeedRepo, feedOpts...)

	installRoot := cfg.InstallRoot
	if installRoot == "" {
		execPath, execErr := os.Executable()
		if execErr != nil {
			return nil, nil, "", fmt.Errorf("resolving executable path: %w", execErr)
		}
		installRoot = filepath.Dir(execPath)
	}

	var checkerOpts []update.CheckerOption
	if cfg.PreferredAsset != "" {
		checkerOpts = append(checkerOpts, update.WithPreferredAsset(cfg.PreferredAsset))
	}

	checker := update.NewChecker(feed, config.ManifestPath(installRoot), cfg.Channel, checkerOpts...)

	prefDir, err := config.Dir()
	if err != nil {
		return nil, nil, "", err
	}

	return checker, cfg, prefDir, nil
}

// renderReleaseNotes renders markdown release notes for the terminal,
// falling back to the raw text when rendering fails.
func renderReleaseNotes(notes string) string {
	out, err := glamour.Render(notes, "auto")
	if err != nil {
		return notes
	}
	return strings.TrimRight(out, "\n")
}

// confirm asks a yes/no question on the command line. Anything but an
// explicit "y"/"yes" declines.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// classifyUpdateExitCode maps an update error to the process exit code.
// Configuration and version-manifest problems are user-correctable (1);
// everything else is unexpected or transient (2).
func classifyUpdateExitCode(err error) int {
	switch {
	case errors.Is(err, update.ErrManifestMissing),
		errors.Is(err, update.ErrVersionUnparsable),
		errors.Is(err, update.ErrInstallerMissing):
		return 1
	default:
		return 2
	}
}
