package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atkit/botfleet/internal/atproto"
	"github.com/atkit/botfleet/internal/crawler"
	"github.com/atkit/botfleet/internal/progress"
	"github.com/atkit/botfleet/internal/progress/sinks"
	"github.com/atkit/botfleet/internal/ratelimit"
	"github.com/atkit/botfleet/internal/resolver"
	"github.com/atkit/botfleet/internal/store"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Enumerate directory hosts and record every repository's profile.",
		Long: `crawl walks the configured directory host list page by page,
resolves each repository to a profile through the public app view, and
appends the results to a JSON-lines output file. Progress is checkpointed
after every page, so an interrupted crawl resumes where it stopped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			hosts, err := crawler.LoadHosts(cfg.Crawl.HostsFile, hostOf(cfg.Bots.ServiceURL))
			if err != nil {
				return err
			}
			logger.Info("hosts loaded", zap.Int("count", len(hosts)))

			output, err := store.OpenOutputLog(cfg.Crawl.OutputPath)
			if err != nil {
				return fmt.Errorf("open output log: %w", err)
			}
			defer output.Close()

			promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("register progress metrics: %w", err)
			}
			hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger), promSink)
			defer hub.Close(context.Background()) //nolint:errcheck

			appview := atproto.NewClient(cfg.Bots.AppViewURL)
			limiter := ratelimit.New(nil)
			res := resolver.New(appview, limiter, hostOf(cfg.Bots.AppViewURL), nil, logger)

			eng := crawler.New(
				crawler.Config{
					Hosts:          hosts,
					PrimaryMarker:  cfg.Crawl.PrimaryMarker,
					ErrorThreshold: int64(cfg.Crawl.ErrorThreshold),
					ListPagesRPS:   cfg.Crawl.ListPagesRPS,
				},
				func(host string) crawler.Directory {
					return atproto.NewClient(baseURLFor(host))
				},
				res,
				store.NewCheckpointStore(cfg.Crawl.CheckpointPath),
				output,
				nil,
				logger,
				hub,
			)

			err = eng.Run(ctx)
			if errors.Is(err, crawler.ErrThresholdExceeded) {
				logger.Error("crawl halted", zap.Error(err))
				return err
			}
			return err
		},
	}
}

func baseURLFor(host string) string {
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return rawURL
}
