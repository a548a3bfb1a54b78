package strategy

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atkit/botfleet/internal/atproto"
	"github.com/atkit/botfleet/internal/bot"
	"github.com/atkit/botfleet/internal/clock"
	"github.com/atkit/botfleet/internal/moviedoc"
)

const (
	movieTestAttempts = 5
	movieTestPause    = 2 * time.Second

	apologyText = "Sorry, I couldn't run the test this time. Please try again in a bit."
)

// DocAnalyzer turns a source document into rendered analysis markup.
type DocAnalyzer interface {
	Analyze(ctx context.Context, instructions, document string) (string, error)
}

// MovieTest looks up the script named in the triggering post, runs the
// configured analysis over it, and replies with the rendered result.
type MovieTest struct {
	instructions string
	docs         *moviedoc.Client
	cache        *moviedoc.Cache
	analyzer     DocAnalyzer
	clock        clock.Clock
	logger       *zap.Logger
}

// NewMovieTest builds the movie-test strategy. cache may be nil to disable
// result reuse.
func NewMovieTest(material bot.Material, docs *moviedoc.Client, cache *moviedoc.Cache, analyzer DocAnalyzer, clk clock.Clock, logger *zap.Logger) *MovieTest {
	if clk == nil {
		clk = clock.System{}
	}
	return &MovieTest{
		instructions: material.Instructions,
		docs:         docs,
		cache:        cache,
		analyzer:     analyzer,
		clock:        clk,
		logger:       logger,
	}
}

func (s *MovieTest) Name() string { return string(bot.KindMovieTest) }

// Reply runs the fetch/analyze/render cycle up to movieTestAttempts times
// with a fixed pause between tries. When every attempt fails the bot still
// answers, with an apology instead of silence.
func (s *MovieTest) Reply(ctx context.Context, task bot.Task) error {
	term := SearchTerm(task.Post.Text, task.Actor.Handle)
	if term == "" {
		return s.post(ctx, task, "Tell me which movie to test and I'll take a look.", nil)
	}

	var lastErr error
	for attempt := 1; attempt <= movieTestAttempts; attempt++ {
		if attempt > 1 {
			s.clock.Sleep(ctx, movieTestPause)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		png, err := s.run(ctx, term)
		if err == nil {
			return s.post(ctx, task, "", png)
		}
		lastErr = err
		s.logger.Warn("movie test attempt failed",
			zap.String("term", term),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	s.logger.Error("movie test gave up",
		zap.String("term", term),
		zap.Int("attempts", movieTestAttempts),
		zap.Error(lastErr))
	return s.post(ctx, task, apologyText, nil)
}

func (s *MovieTest) run(ctx context.Context, term string) ([]byte, error) {
	doc, err := s.docs.FetchDocumentText(ctx, term)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if png, _, ok := s.cache.Get(doc.ID); ok {
			return png, nil
		}
	}

	markup, err := s.analyzer.Analyze(ctx, s.instructions, doc.Text)
	if err != nil {
		return nil, err
	}
	png, err := s.docs.RenderToImage(ctx, markup)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Put(doc.ID, png, markup); err != nil {
			s.logger.Warn("cache write failed", zap.String("doc", doc.ID), zap.Error(err))
		}
	}
	return png, nil
}

func (s *MovieTest) post(ctx context.Context, task bot.Task, text string, png []byte) error {
	refs := task.ReplyRefs()
	draft := atproto.PostDraft{Text: text, Reply: &refs}
	if png != nil {
		blob, err := task.Actor.Client.UploadBlob(ctx, png, "image/png")
		if err != nil {
			return err
		}
		draft.Images = []atproto.ImageEmbed{{Alt: "Test results", Blob: blob}}
	}
	_, err := task.Actor.Client.CreatePost(ctx, draft)
	return err
}

// SearchTerm strips the bot's own mention from the triggering text and
// returns what remains as the lookup query.
func SearchTerm(text, handle string) string {
	cleaned := strings.ReplaceAll(text, "@"+handle, " ")
	return strings.Join(strings.Fields(cleaned), " ")
}
