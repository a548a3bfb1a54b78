package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/atkit/botfleet/internal/bot"
	"github.com/atkit/botfleet/internal/llm"
)

// QuotePicker selects one quote from a candidate list given the thread so
// far. It is the language-model slice the quote strategy needs.
type QuotePicker interface {
	PickQuote(ctx context.Context, candidates []string, thread []llm.ThreadMessage) (int, error)
}

// Quote replies with the candidate quote a language model judges the best
// fit for the conversation, plus the next rotation image.
type Quote struct {
	quotes []string
	rot    *rotation
	picker QuotePicker
	reader bot.PostFetcher
	logger *zap.Logger
}

// NewQuote builds the quote strategy. reader is the public app-view client
// used for the thread walk.
func NewQuote(imagesDir string, material bot.Material, picker QuotePicker, reader bot.PostFetcher, logger *zap.Logger) *Quote {
	return &Quote{
		quotes: material.Quotes,
		rot:    newRotation(imagesDir, material.Images),
		picker: picker,
		reader: reader,
		logger: logger,
	}
}

func (s *Quote) Name() string { return string(bot.KindQuote) }

// Reply gathers the thread without the bot's own posts and asks the model
// to pick a quote. A pick the model fumbles (unparseable or out of range)
// is not an error worth surfacing; the bot just sits that one out.
func (s *Quote) Reply(ctx context.Context, task bot.Task) error {
	if len(s.quotes) == 0 {
		return fmt.Errorf("no quotes configured for %s", task.Actor.Handle)
	}

	thread := bot.FetchThread(ctx, s.reader, task.PostURI(), task.Actor.DID, false, s.logger)
	idx, err := s.picker.PickQuote(ctx, s.quotes, thread)
	if err != nil {
		s.logger.Warn("quote pick failed, skipping reply",
			zap.String("actor", task.Actor.Handle),
			zap.Error(err))
		return nil
	}

	// Quotes are posted as quotations.
	return postReply(ctx, task, `"`+s.quotes[idx]+`"`, s.rot)
}
