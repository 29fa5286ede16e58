// Package cmd defines the venuecrawler CLI.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/app"
	"github.com/JakeFAU/venue-crawler/internal/config"
	"github.com/JakeFAU/venue-crawler/internal/crawler"
	"github.com/JakeFAU/venue-crawler/internal/pipeline"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what the subcommands need from the application container.
type App interface {
	Logger() *zap.Logger
	Run(ctx context.Context, seedURL string, includeSubdomains bool) (pipeline.Result, error)
	RunTask(ctx context.Context, task crawler.Task) (crawler.WorkerResult, error)
	Serve(ctx context.Context) error
	Close(ctx context.Context) error
}

// newApp is the application factory; tests replace it.
var newApp = func(cfg config.Config, opts ...app.Option) (App, error) {
	a, err := app.Build(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "venuecrawler",
		Short: "Discover and extract recurring venue events from a website.",
		Long: `venuecrawler turns one seed URL into structured show records. It
discovers in-scope candidate pages, renders each one in its own browser,
extracts readable text through a ladder of strategies and asks an external
extraction service for a structured record.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cfg, progressBarOptions(cmd)...)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			appInstance, ok := cmd.Context().Value(appKey).(App)
			if !ok || appInstance == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := appInstance.Close(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "shutdown: %v\n", err)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newDiscoverCmd(), newExtractCmd(), newRunCmd(), newServeCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
