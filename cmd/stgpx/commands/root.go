package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"stgpx/internal/application/backup"
	"stgpx/lib/osutil"

	"github.com/spf13/cobra"
)

type globals struct {
	verbose  int
	debug    int
	logfile  string
	noColor  bool
	username string
	password string

	browser    string
	browserBin string
	remote     string
	headless   bool

	output    string
	config    string
	history   string
	snapshots string
	mode      string

	// stderr of the running command, the console log sink writes here
	stderr io.Writer
}

type downloadFlags struct {
	clean           bool
	continueOnError bool
	skipExported    bool
}

// onlyForDownload rejects download flags given together with -m list.
func (f downloadFlags) onlyForDownload() error {
	switch {
	case f.clean:
		return usageError("--clean only applies to download mode")
	case f.continueOnError:
		return usageError("--continue-on-error only applies to download mode")
	case f.skipExported:
		return usageError("--skip-exported only applies to download mode")
	}
	return nil
}

func addDownloadFlags(cmd *cobra.Command, flags *downloadFlags) {
	cmd.Flags().BoolVar(&flags.clean, "clean", false, "Remove duplicate downloads (name(1).gpx) from the output directory afterwards.")
	cmd.Flags().BoolVar(&flags.continueOnError, "continue-on-error", false, "Keep exporting the remaining activities when one fails.")
	cmd.Flags().BoolVar(&flags.skipExported, "skip-exported", false, "Skip activities a previous run exported, requires --history.")
}

func addFormatFlag(cmd *cobra.Command, format *string) {
	cmd.Flags().StringVar(format, "format", formatTable, "Output format: table, json or yaml.")
}

// NewRootCmd builds the command tree, each call returns independent flag
// state.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	var (
		rootDownload downloadFlags
		rootFormat   string
	)

	root := &cobra.Command{
		Use:   "stgpx -m list|download --browser chrome|chromium|edge [-u user -p password]",
		Short: "stgpx backs up your Sports-Tracker workouts as GPX files by driving a browser.",
		Long: `stgpx logs in to Sports-Tracker with a real browser, lists your workouts
and exports every one of them as a GPX file. Use the list and download
subcommands, or -m/--mode for the classic single command interface.`,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// flags parsed fine, errors from here on are not usage mistakes
			cmd.SilenceUsage = true
			g.stderr = cmd.ErrOrStderr()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.mode == "" {
				return usageError("a mode is required: -m list or -m download")
			}
			mode, err := backup.ParseMode(g.mode)
			if err != nil {
				return usageError("%w", err)
			}
			if mode == backup.ModeList {
				err = rootDownload.onlyForDownload()
				if err != nil {
					return err
				}
				return runList(cmd, g, rootFormat)
			}
			err = validateFormat(rootFormat)
			if err != nil {
				return err
			}
			return runDownload(cmd, g, rootDownload, rootFormat)
		},
	}

	pf := root.PersistentFlags()
	pf.CountVarP(&g.verbose, "verbose", "v", "Increase console verbosity (up to 3 times).")
	pf.CountVarP(&g.debug, "debug", "d", "Increase logfile verbosity (up to 3 times).")
	pf.StringVarP(&g.logfile, "logfile", "l", "", "Write logs to this file, truncated first.")
	pf.BoolVar(&g.noColor, "no-color", false, "Disable colored console logs.")
	pf.StringVarP(&g.username, "username", "u", "", "Sports-Tracker username, requires --password.")
	pf.StringVarP(&g.password, "password", "p", "", "Sports-Tracker password, requires --username.")
	pf.StringVar(&g.browser, "browser", "", "Browser engine: chrome, chromium or edge.")
	pf.StringVar(&g.browserBin, "browser-bin", "", "Path to the browser executable, found automatically if empty.")
	pf.StringVar(&g.remote, "remote", "", "Use a managed browser from this launcher service (ws://host:7317) instead of a local one.")
	pf.BoolVar(&g.headless, "headless", false, "Run the browser without a window.")
	pf.StringVarP(&g.output, "output", "o", "", "Directory downloads are saved to.")
	pf.StringVar(&g.config, "config", "stgpx.json5", "Tuning file with selectors and timeouts, stgpx.local.json5 next to it overrides it.")
	pf.StringVar(&g.history, "history", "", "Record runs in this sqlite database.")
	pf.StringVar(&g.snapshots, "snapshots", "", "Save page html and a screenshot here when a step fails.")

	root.Flags().StringVarP(&g.mode, "mode", "m", "", "Operation mode: list or download.")
	addDownloadFlags(root, &rootDownload)
	addFormatFlag(root, &rootFormat)

	root.AddCommand(
		newListCmd(g),
		newDownloadCmd(g),
		newCleanCmd(g),
		newHistoryCmd(g),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	ctx, stop := osutil.SignalContext(ctx)
	defer stop()

	root := NewRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	code := exitCode(err)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var exitErr *ExitError
		if code == ExitUsage && !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "run 'stgpx --help' for usage")
		}
	}
	return code
}
