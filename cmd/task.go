package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
)

func newDiscoverCmd() *cobra.Command {
	var includeSubdomains bool
	cmd := &cobra.Command{
		Use:   "discover <seed-url>",
		Short: "List the in-scope candidate pages of a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := newTask(args[0], args[0], includeSubdomains, crawler.KindDiscovery)
			if err != nil {
				return err
			}
			res, err := runTask(cmd, task)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res.Discovery)
		},
	}
	cmd.Flags().BoolVar(&includeSubdomains, "include-subdomains", false, "treat subdomains of the seed as in scope")
	return cmd
}

func newExtractCmd() *cobra.Command {
	var (
		includeSubdomains bool
		seed              string
	)
	cmd := &cobra.Command{
		Use:   "extract <page-url>",
		Short: "Extract a structured record from one page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if seed == "" {
				seed = args[0]
			}
			task, err := newTask(args[0], seed, includeSubdomains, crawler.KindPageExtraction)
			if err != nil {
				return err
			}
			if !task.Scope.Contains(task.URL) {
				return fmt.Errorf("%s is outside the scope of %s", task.URL, seed)
			}
			res, err := runTask(cmd, task)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res.Page)
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "seed URL that defines the scope (defaults to the page URL)")
	cmd.Flags().BoolVar(&includeSubdomains, "include-subdomains", false, "treat subdomains of the seed as in scope")
	return cmd
}

func newTask(rawURL, seed string, includeSubdomains bool, kind crawler.TaskKind) (crawler.Task, error) {
	normalized, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return crawler.Task{}, fmt.Errorf("invalid url: %w", err)
	}
	scope, err := crawler.NewScope(seed, includeSubdomains)
	if err != nil {
		return crawler.Task{}, fmt.Errorf("invalid seed: %w", err)
	}
	return crawler.Task{URL: normalized, Scope: scope, Kind: kind}, nil
}

func runTask(cmd *cobra.Command, task crawler.Task) (crawler.WorkerResult, error) {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return crawler.WorkerResult{}, err
	}
	res, err := appInstance.RunTask(cmd.Context(), task)
	if err != nil {
		return res, err
	}
	if res.Failed() {
		appInstance.Logger().Warn("task failed",
			zap.String("url", task.URL),
			zap.String("category", crawler.Category(res.Err)),
		)
	}
	return res, nil
}
