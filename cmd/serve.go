package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atkit/botfleet/internal/api"
	"github.com/atkit/botfleet/internal/atproto"
	"github.com/atkit/botfleet/internal/bot"
	"github.com/atkit/botfleet/internal/bot/strategy"
	"github.com/atkit/botfleet/internal/config"
	"github.com/atkit/botfleet/internal/firehose"
	"github.com/atkit/botfleet/internal/llm"
	"github.com/atkit/botfleet/internal/moviedoc"
	"github.com/atkit/botfleet/internal/progress"
	"github.com/atkit/botfleet/internal/progress/sinks"
	"github.com/atkit/botfleet/internal/session"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reply bots against the live firehose.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, logger)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	svc, err := bot.LoadServiceFile(cfg.Bots.ServiceFile)
	if err != nil {
		return err
	}

	sessions, err := session.NewStore(cfg.Bots.SessionDir)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	reader := atproto.NewClient(cfg.Bots.AppViewURL)
	model := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      os.Getenv(cfg.LLM.APIKeyEnv),
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
	})

	actors := make([]*bot.Actor, 0, len(svc.Bots))
	strategies := make(map[string]bot.Strategy, len(svc.Bots))
	for _, spec := range svc.Bots {
		client, err := signIn(ctx, sessions, cfg.Bots.ServiceURL, spec, logger)
		if err != nil {
			return fmt.Errorf("sign in %s: %w", spec.Handle, err)
		}
		actor := &bot.Actor{
			DID:           client.Session().DID,
			Handle:        spec.Handle,
			Kind:          spec.Strategy,
			ReplyTriggers: spec.RepliesToReplies(),
			Client:        client,
		}
		strat, err := buildStrategy(cfg, spec, model, reader, logger)
		if err != nil {
			return fmt.Errorf("build %s strategy for %s: %w", spec.Strategy, spec.Handle, err)
		}
		actors = append(actors, actor)
		strategies[actor.DID] = strat
		logger.Info("bot registered",
			zap.String("handle", actor.Handle),
			zap.String("did", actor.DID),
			zap.String("strategy", string(actor.Kind)))
	}
	registry := bot.NewRegistry(actors...)

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register progress metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger), promSink)
	defer hub.Close(context.Background()) //nolint:errcheck

	var connected atomic.Bool
	dial := func(ctx context.Context) (bot.Stream, error) {
		conn, err := firehose.Dial(ctx, firehose.Config{
			URL:         cfg.Firehose.URL,
			Collections: cfg.Firehose.Collections,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		connected.Store(true)
		return &trackedStream{Conn: conn, connected: &connected}, nil
	}

	dispatcher := bot.NewDispatcher(dial, registry, strategies, bot.Config{
		ReconnectDelay: time.Duration(cfg.Firehose.ReconnectDelay) * time.Second,
		Logger:         logger,
		Emitter:        hub,
	})

	startedAt := time.Now()
	ops := api.NewServer(func() api.Status {
		st := api.Status{Connected: connected.Load(), StartedAt: startedAt}
		for _, a := range registry.Actors() {
			st.Bots = append(st.Bots, api.BotStatus{Handle: a.Handle, Strategy: string(a.Kind)})
		}
		return st
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           ops.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", zap.Error(err))
		}
	}()

	err = dispatcher.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("ops server shutdown", zap.Error(serr))
	}

	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

// signIn restores the actor's saved session, falling back to a password
// login, and persists whatever session the service handed back.
func signIn(ctx context.Context, sessions *session.Store, serviceURL string, spec bot.BotSpec, logger *zap.Logger) (*atproto.Client, error) {
	client := atproto.NewClient(serviceURL)

	if saved, err := sessions.Load(spec.Handle); err == nil {
		if err := client.ResumeSession(ctx, saved); err == nil {
			logger.Info("session resumed", zap.String("handle", spec.Handle))
			return client, nil
		}
		logger.Warn("saved session rejected, logging in", zap.String("handle", spec.Handle))
	} else if !errors.Is(err, session.ErrNotFound) {
		return nil, err
	}

	password := os.Getenv(spec.PasswordEnv)
	if password == "" {
		return nil, fmt.Errorf("password env %s is empty", spec.PasswordEnv)
	}
	sess, err := client.Login(ctx, spec.Handle, password)
	if err != nil {
		return nil, err
	}
	if err := sessions.Save(spec.Handle, sess); err != nil {
		logger.Warn("session save failed", zap.String("handle", spec.Handle), zap.Error(err))
	}
	return client, nil
}

func buildStrategy(cfg config.Config, spec bot.BotSpec, model *llm.Client, reader *atproto.Client, logger *zap.Logger) (bot.Strategy, error) {
	switch spec.Strategy {
	case bot.KindImage:
		return strategy.NewImage(cfg.Bots.ImagesDir, spec.Material.Images), nil
	case bot.KindQuote:
		return strategy.NewQuote(cfg.Bots.ImagesDir, spec.Material, model, reader, logger), nil
	case bot.KindAnswer:
		return strategy.NewAnswer(cfg.Bots.ImagesDir, spec.Material, model, reader, logger), nil
	case bot.KindMovieTest:
		docs := moviedoc.NewClient(moviedoc.Config{
			SearchURL: cfg.MovieDoc.SearchURL,
			RenderURL: cfg.MovieDoc.RenderURL,
		})
		var cache *moviedoc.Cache
		if cfg.MovieDoc.CacheDir != "" {
			var err error
			cache, err = moviedoc.NewCache(cfg.MovieDoc.CacheDir)
			if err != nil {
				return nil, err
			}
		}
		return strategy.NewMovieTest(spec.Material, docs, cache, model, nil, logger), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", spec.Strategy)
	}
}

// trackedStream flips the connected flag when the stream goes away.
type trackedStream struct {
	*firehose.Conn
	connected *atomic.Bool
}

func (t *trackedStream) Close() error {
	t.connected.Store(false)
	return t.Conn.Close()
}
