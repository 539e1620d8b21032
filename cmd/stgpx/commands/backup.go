package commands

import (
	"fmt"

	"stgpx/internal/application/backup"
	"stgpx/internal/scrapers/sportstracker"

	"github.com/spf13/cobra"
)

// runBackup validates everything it can before starting the browser, then
// hands over to backup.Runner which owns the browser from there on.
func runBackup(cmd *cobra.Command, g *globals, opts backup.Options) (backup.Result, error) {
	ctx := cmd.Context()

	err := g.validateBrowser()
	if err != nil {
		return backup.Result{}, err
	}
	err = opts.Validate()
	if err != nil {
		return backup.Result{}, usageError("%w", err)
	}
	if opts.SkipExported && g.history == "" {
		return backup.Result{}, usageError("--skip-exported requires --history")
	}

	rt, err := g.setup(ctx)
	if err != nil {
		return backup.Result{}, err
	}
	defer rt.close()

	store, err := g.openHistory()
	if err != nil {
		return backup.Result{}, err
	}
	if store != nil {
		defer store.Close()
	}

	d, err := g.launch(ctx, rt)
	if err != nil {
		rt.tel.ReportBroken("commands.launch", err)
		return backup.Result{}, err
	}

	client, err := sportstracker.NewClient(d, rt.config.clientOptions(), rt.tel)
	if err != nil {
		d.Close()
		return backup.Result{}, usageError("config: %w", err)
	}

	runner := backup.NewRunner(d, client, newCleaner(rt), store, rt.tel)
	result, err := runner.Run(ctx, opts)
	if err != nil {
		return result, failure(err)
	}
	return result, nil
}

func newListCmd(g *globals) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list [--format table|json|yaml]",
		Short: "Lists every workout of the account without exporting anything.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, g, format)
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func runList(cmd *cobra.Command, g *globals, format string) error {
	err := validateFormat(format)
	if err != nil {
		return err
	}
	result, err := runBackup(cmd, g, backup.Options{
		Mode:        backup.ModeList,
		Credentials: g.credentials(),
	})
	if err != nil {
		return err
	}
	return writeActivities(cmd.OutOrStdout(), format, result.Activities)
}

func newDownloadCmd(g *globals) *cobra.Command {
	var (
		flags  downloadFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "download [--clean] [--continue-on-error] [--skip-exported]",
		Short: "Exports every workout of the account as a GPX file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := validateFormat(format)
			if err != nil {
				return err
			}
			return runDownload(cmd, g, flags, format)
		},
	}
	addDownloadFlags(cmd, &flags)
	addFormatFlag(cmd, &format)
	return cmd
}

func runDownload(cmd *cobra.Command, g *globals, flags downloadFlags, format string) error {
	policy := sportstracker.AbortBatch
	if flags.continueOnError {
		policy = sportstracker.ContinueOnError
	}

	result, err := runBackup(cmd, g, backup.Options{
		Mode:         backup.ModeDownload,
		Credentials:  g.credentials(),
		Policy:       policy,
		Clean:        flags.clean,
		OutputDir:    g.output,
		SkipExported: flags.skipExported,
	})
	if result.Outcomes != nil || err == nil {
		werr := writeDownloadReport(cmd.OutOrStdout(), format, result)
		if werr != nil && err == nil {
			err = werr
		}
	}
	if err != nil {
		return err
	}
	if failed := result.Failed(); failed > 0 {
		return failure(fmt.Errorf("%d of %d exports failed", failed, len(result.Outcomes)))
	}
	return nil
}
