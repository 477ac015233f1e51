// Package cmd defines the gsc-indexer command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/gsc-indexer/internal/api"
	"github.com/JakeFAU/gsc-indexer/internal/app"
	"github.com/JakeFAU/gsc-indexer/internal/config"
	"github.com/JakeFAU/gsc-indexer/internal/indexer"
	"github.com/JakeFAU/gsc-indexer/internal/logging"
	"github.com/JakeFAU/gsc-indexer/internal/progress"
	"github.com/JakeFAU/gsc-indexer/internal/telemetry"
)

// version is stamped at build time with -ldflags "-X".
var version = "dev"

// reconciler is what the command needs from an app.App.
type reconciler interface {
	Run(ctx context.Context, input string, urls []string) (indexer.RunReport, error)
	Tracker() *progress.Tracker
	Close(ctx context.Context) error
}

// buildApp is the application factory. It's a variable so tests can swap in a fake.
var buildApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer) (reconciler, error) {
	return app.Build(ctx, cfg, logger, out)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		urls    []string
	)

	cmd := &cobra.Command{
		Use:   "gsc-indexer [domain | site url]",
		Short: "Request Google indexing for every page Search Console has not indexed yet.",
		Long: `gsc-indexer checks the index status of every page listed in a property's
sitemaps, caches the results, and sends Indexing API notifications for the
pages that are not indexed yet. The property is a bare domain (example.com)
or a URL prefix (https://example.com/).`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			input := ""
			if len(args) == 1 {
				input = args[0]
			}
			return run(cmd, cfgFile, input, urls)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	flags := cmd.Flags()
	flags.StringP("client-email", "c", "", "service account client email")
	flags.StringP("private-key", "k", "", "service account private key")
	flags.StringP("path", "p", "", "path to a service account JSON file")
	flags.StringSliceVarP(&urls, "urls", "u", nil, "comma separated URLs to check instead of the sitemaps")
	flags.Bool("rpm-retry", false, "wait and retry when the per-minute quota is hit")
	flags.Int("batch-size", 50, "number of concurrent URL inspections per batch")
	flags.String("metrics-addr", "", "serve /metrics, /healthz and /v1/run on this address during the run")

	return cmd
}

func run(cmd *cobra.Command, cfgFile, input string, urls []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.InitTracerProvider(ctx, version)
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	a, err := buildApp(ctx, cfg, logger, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("shutdown failed", zap.Error(err))
		}
	}()

	if cfg.Metrics.Addr != "" {
		serverCtx, cancelServer := context.WithCancel(ctx)
		var servers errgroup.Group
		servers.Go(func() error {
			return api.NewServer(a.Tracker(), logger).ListenAndServe(serverCtx, cfg.Metrics.Addr)
		})
		defer func() {
			cancelServer()
			if err := servers.Wait(); err != nil {
				logger.Warn("status server failed", zap.Error(err))
			}
		}()
	}

	report, err := a.Run(ctx, input, urls)
	if err != nil {
		return err
	}
	return app.PrintSummary(cmd.OutOrStdout(), report)
}

// Execute runs the root command and exits with status 1 on any fatal error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gsc-indexer:", describe(err))
		os.Exit(1)
	}
}

// describe adds operator hints to the fatal errors that have an obvious fix.
func describe(err error) string {
	switch {
	case errors.Is(err, indexer.ErrMissingInput):
		return err.Error() + " (pass a domain such as example.com or a URL prefix such as https://example.com/)"
	case errors.Is(err, indexer.ErrMissingCredentials):
		return err.Error() + " (use --client-email and --private-key, --path, or ./service_account.json)"
	case errors.Is(err, indexer.ErrNoSiteAccess):
		return err.Error() + " (add the service account as an owner of the property)"
	case errors.Is(err, indexer.ErrQuotaExceeded):
		return err.Error() + " (try again tomorrow, or pass --rpm-retry for per-minute limits)"
	default:
		return err.Error()
	}
}
