// Command ariadne runs scrape jobs defined in YAML or JSON job files.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mfairouz/ariadne/internal/config"
	"github.com/mfairouz/ariadne/internal/engine"
	"github.com/mfairouz/ariadne/internal/extractor"
	"github.com/mfairouz/ariadne/internal/metrics"
	"github.com/mfairouz/ariadne/internal/pagination"
	"github.com/mfairouz/ariadne/internal/sink"
)

var (
	jobPath     string
	outPath     string
	metricsAddr string
	verbose     bool
)

func main() {
	root := &cobra.Command{
		Use:           "ariadne",
		Short:         "Configurable web scraping engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a scrape job",
		RunE:  runJob,
	}
	runCmd.Flags().StringVar(&jobPath, "job", "", "path to the job file (required)")
	runCmd.Flags().StringVar(&outPath, "out", "", "write the result to this file instead of stdout")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	_ = runCmd.MarkFlagRequired("job")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a job file's configuration and selectors without fetching anything",
		RunE:  validateJob,
	}
	validateCmd.Flags().StringVar(&jobPath, "job", "", "path to the job file (required)")
	_ = validateCmd.MarkFlagRequired("job")

	root.AddCommand(runCmd, validateCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func runJob(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	job, err := config.Load(jobPath)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(job, logger,
		engine.WithMetrics(collector),
		engine.WithProgress(func(ev sink.ProgressEvent) {
			logger.Info("progress",
				zap.String("event", ev.Type),
				zap.Int("page", ev.Page),
				zap.String("url", ev.URL),
				zap.Int("items_on_page", ev.ItemsOnPage),
				zap.Int("cumulative_items", ev.CumulativeItems),
			)
		}),
	)

	result := eng.Run(ctx)

	var out sink.ResultSink = sink.Stdout{}
	if outPath != "" {
		out = sink.JSONFile{Path: outPath}
	}
	if err := out.Write(result); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}

	if result.Status == engine.StatusFailed {
		return fmt.Errorf("run failed: %s", result.ErrorMessage)
	}
	return nil
}

func validateJob(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	job, err := config.Load(jobPath)
	if err != nil {
		return err
	}
	if _, err := extractor.New(job, logger); err != nil {
		return err
	}
	if _, err := pagination.New(job, logger); err != nil {
		return err
	}
	fmt.Printf("%s: configuration valid (%d fields, pagination %s)\n",
		jobPath, len(job.Fields), job.Pagination.Type)
	return nil
}
