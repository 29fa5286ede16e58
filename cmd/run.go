package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/app"
	"github.com/JakeFAU/venue-crawler/internal/progress/sinks"
)

func newRunCmd() *cobra.Command {
	var includeSubdomains bool
	cmd := &cobra.Command{
		Use:   "run <seed-url>",
		Short: "Discover, extract and aggregate every candidate page of a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := appInstance.Run(cmd.Context(), args[0], includeSubdomains)
			if err != nil {
				return err
			}
			appInstance.Logger().Info("run complete",
				zap.String("run_id", res.RunID.String()),
				zap.Int("records", len(res.Report.Records)),
				zap.Int("failed", res.Report.Diagnostics.FailedCount),
				zap.String("location", res.Location),
			)
			return printJSON(cmd.OutOrStdout(), res.Report)
		},
	}
	cmd.Flags().BoolVar(&includeSubdomains, "include-subdomains", false, "treat subdomains of the seed as in scope")
	cmd.Flags().Bool("progress", true, "draw a progress bar on stderr")
	return cmd
}

// progressBarOptions adds a bar sink for commands with a true --progress flag.
func progressBarOptions(cmd *cobra.Command) []app.Option {
	show, err := cmd.Flags().GetBool("progress")
	if err != nil || !show {
		return nil
	}
	return []app.Option{app.WithProgressSinks(sinks.NewBarSink(cmd.ErrOrStderr(), "extracting pages"))}
}
