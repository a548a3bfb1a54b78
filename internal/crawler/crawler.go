// Package crawler walks repository directories across hosts and resolves
// them to profile records with durable, resumable progress.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/atkit/botfleet/internal/atproto"
	"github.com/atkit/botfleet/internal/clock"
	"github.com/atkit/botfleet/internal/metrics"
	"github.com/atkit/botfleet/internal/progress"
	"github.com/atkit/botfleet/internal/resolver"
	"github.com/atkit/botfleet/internal/store"
)

// ErrThresholdExceeded halts the crawl when cumulative errors cross the
// configured tolerance. It is fatal; the job requires manual resumption.
var ErrThresholdExceeded = errors.New("cumulative error threshold exceeded")

// pageRetryDelay is the pause before retrying a failed directory page fetch.
const pageRetryDelay = 5 * time.Second

// Directory lists one host's repositories page by page.
type Directory interface {
	ListRepos(ctx context.Context, cursor string) (atproto.RepoPage, error)
}

// ProfileResolver resolves identifier batches to profiles.
type ProfileResolver interface {
	Resolve(ctx context.Context, ids []string) (map[string]atproto.ProfileView, resolver.Stats)
}

// Config assembles the crawl inputs.
type Config struct {
	// Hosts is the directory host list; primary-marker hosts are visited
	// first regardless of list position.
	Hosts []string
	// PrimaryMarker flags well-known central hosts (substring match).
	PrimaryMarker string
	// ErrorThreshold is the fatal cumulative error tolerance.
	ErrorThreshold int64
	// ListPagesRPS paces directory page requests per host.
	ListPagesRPS float64
}

// Crawler is the batch engine's control loop.
type Crawler struct {
	cfg         Config
	directories func(host string) Directory
	resolver    ProfileResolver
	checkpoints *store.CheckpointStore
	output      *store.OutputLog
	clock       clock.Clock
	logger      *zap.Logger
	emitter     progress.Emitter
	runID       uuid.UUID
}

// New builds a Crawler. directories constructs a per-host listing client.
func New(
	cfg Config,
	directories func(host string) Directory,
	res ProfileResolver,
	checkpoints *store.CheckpointStore,
	output *store.OutputLog,
	clk clock.Clock,
	logger *zap.Logger,
	emitter progress.Emitter,
) *Crawler {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		cfg:         cfg,
		directories: directories,
		resolver:    res,
		checkpoints: checkpoints,
		output:      output,
		clock:       clk,
		logger:      logger,
		emitter:     emitter,
		runID:       uuid.New(),
	}
}

// Run resumes from the last persisted checkpoint and crawls until every
// host is exhausted or the error threshold is crossed.
func (c *Crawler) Run(ctx context.Context) error {
	cp, err := c.checkpoints.Load()
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	hosts := OrderHosts(c.cfg.Hosts, c.cfg.PrimaryMarker)
	if cp.HostIndex >= len(hosts) {
		c.logger.Info("all hosts already crawled", zap.Int("hosts", len(hosts)))
		return nil
	}

	c.logger.Info("starting crawl",
		zap.Int("hosts", len(hosts)),
		zap.Int("host_index", cp.HostIndex),
		zap.String("cursor", cp.Cursor),
		zap.Int64("total_seen", cp.TotalSeen),
	)

	pacer := rate.NewLimiter(rate.Limit(c.cfg.ListPagesRPS), 1)

	for ; cp.HostIndex < len(hosts); cp.HostIndex++ {
		host := hosts[cp.HostIndex]
		dir := c.directories(host)
		c.logger.Info("crawling host", zap.String("host", host))

		if err := c.crawlHost(ctx, dir, host, pacer, &cp); err != nil {
			return err
		}

		c.emit(progress.Event{Stage: progress.StageCrawlHostDone, Host: host})
		cp.Cursor = ""
	}

	c.logger.Info("crawl complete",
		zap.Int64("total_seen", cp.TotalSeen),
		zap.Int64("total_suspended", cp.TotalSuspended),
		zap.Int64("total_errors", cp.TotalErrors),
		zap.Int64("total_requests", cp.TotalRequests),
	)
	return nil
}

func (c *Crawler) crawlHost(
	ctx context.Context,
	dir Directory,
	host string,
	pacer *rate.Limiter,
	cp *store.Checkpoint,
) error {
	for {
		if err := pacer.Wait(ctx); err != nil {
			return fmt.Errorf("page pacing: %w", err)
		}

		start := c.clock.Now()
		page, err := dir.ListRepos(ctx, cp.Cursor)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("list repos: %w", err)
			}
			c.logger.Warn("directory page fetch failed, retrying",
				zap.String("host", host),
				zap.Error(err),
			)
			c.clock.Sleep(ctx, pageRetryDelay)
			continue
		}
		cp.TotalRequests++

		done, err := c.processPage(ctx, host, page, cp, start)
		if err != nil || done {
			return err
		}
	}
}

// processPage resolves one directory page and commits it. Returns done=true
// when the host's cursor is exhausted.
func (c *Crawler) processPage(
	ctx context.Context,
	host string,
	page atproto.RepoPage,
	cp *store.Checkpoint,
	start time.Time,
) (bool, error) {
	cp.TotalSeen += int64(len(page.Repos))

	active := make([]string, 0, len(page.Repos))
	for _, repo := range page.Repos {
		if !repo.Active {
			cp.TotalSuspended++
			continue
		}
		active = append(active, repo.DID)
	}

	resolved, stats := c.resolver.Resolve(ctx, active)
	cp.TotalRequests += int64(stats.Requests)
	cp.TotalErrors += int64(stats.Errors)
	metrics.ObserveResolve(stats.Requests, stats.Errors)

	// A shutdown mid-page is a cancellation, not a quality failure.
	if err := ctx.Err(); err != nil {
		return true, err
	}

	if cp.TotalErrors >= c.cfg.ErrorThreshold {
		c.emit(progress.Event{
			Stage: progress.StageCrawlHalt,
			Host:  host,
			Count: cp.TotalErrors,
		})
		c.logger.Error("halting crawl: error threshold crossed",
			zap.Int64("total_errors", cp.TotalErrors),
			zap.Int64("threshold", c.cfg.ErrorThreshold),
		)
		return true, ErrThresholdExceeded
	}

	// Keep output deterministic across retried pages.
	records := make([]store.ProfileRecord, 0, len(resolved))
	for _, id := range active {
		p, ok := resolved[id]
		if !ok {
			continue
		}
		records = append(records, profileRecord(host, p))
	}

	// Append before checkpointing: a crash in between re-fetches this page
	// on restart instead of losing it.
	if err := c.output.Append(records); err != nil {
		return true, fmt.Errorf("append page results: %w", err)
	}

	done := page.Cursor == ""
	cp.Cursor = page.Cursor
	toSave := *cp
	if done {
		toSave.Cursor = ""
		toSave.HostIndex++
	}
	if err := c.checkpoints.Save(toSave); err != nil {
		return true, fmt.Errorf("save checkpoint: %w", err)
	}

	took := c.clock.Now().Sub(start)
	metrics.ObserveCrawlPage(host, len(active), len(page.Repos)-len(active))
	c.emit(progress.Event{
		Stage: progress.StageCrawlPage,
		Host:  host,
		Count: int64(len(page.Repos)),
		Dur:   took,
	})
	c.logger.Info("page crawled",
		zap.String("host", host),
		zap.Int64("total_seen", cp.TotalSeen),
		zap.Int64("total_suspended", cp.TotalSuspended),
		zap.Int64("total_errors", cp.TotalErrors),
		zap.Float64("repos_per_sec", perSecond(len(page.Repos), took)),
		zap.Float64("reqs_per_sec", perSecond(stats.Requests+1, took)),
	)
	return done, nil
}

func (c *Crawler) emit(evt progress.Event) {
	if c.emitter == nil {
		return
	}
	evt.RunID = c.runID
	evt.TS = c.clock.Now().UTC()
	c.emitter.Emit(evt)
}

// OrderHosts returns hosts with primary-marker hosts first, preserving the
// original relative order within each group.
func OrderHosts(hosts []string, marker string) []string {
	ordered := append([]string(nil), hosts...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return isPrimary(ordered[i], marker) && !isPrimary(ordered[j], marker)
	})
	return ordered
}

func isPrimary(host, marker string) bool {
	return marker != "" && strings.Contains(strings.ToLower(host), strings.ToLower(marker))
}

func profileRecord(host string, p atproto.ProfileView) store.ProfileRecord {
	return store.ProfileRecord{
		SourceHost:  host,
		DID:         p.DID,
		Handle:      p.Handle,
		DisplayName: p.DisplayName,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		IndexedAt:   p.IndexedAt,
		Followers:   p.FollowersCount,
		Following:   p.FollowsCount,
		Posts:       p.PostsCount,
	}
}

func perSecond(n int, took time.Duration) float64 {
	secs := took.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(n) / secs
}
