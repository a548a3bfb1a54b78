package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/atkit/botfleet/internal/bot"
	"github.com/atkit/botfleet/internal/llm"
)

// maxAnswerLen is the hard cap a post body may occupy.
const maxAnswerLen = 300

// AnswerGenerator produces a free-form reply for a thread.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, persona string, thread []llm.ThreadMessage) (string, error)
}

// Answer replies with generated text in the bot's persona, including the
// bot's own earlier posts in the thread context.
type Answer struct {
	persona string
	rot     *rotation
	gen     AnswerGenerator
	reader  bot.PostFetcher
	logger  *zap.Logger
}

// NewAnswer builds the answer strategy.
func NewAnswer(imagesDir string, material bot.Material, gen AnswerGenerator, reader bot.PostFetcher, logger *zap.Logger) *Answer {
	return &Answer{
		persona: material.Persona,
		rot:     newRotation(imagesDir, material.Images),
		gen:     gen,
		reader:  reader,
		logger:  logger,
	}
}

func (s *Answer) Name() string { return string(bot.KindAnswer) }

func (s *Answer) Reply(ctx context.Context, task bot.Task) error {
	thread := bot.FetchThread(ctx, s.reader, task.PostURI(), task.Actor.DID, true, s.logger)
	text, err := s.gen.GenerateAnswer(ctx, s.persona, thread)
	if err != nil {
		return fmt.Errorf("generate answer: %w", err)
	}
	return postReply(ctx, task, Truncate(text, maxAnswerLen), s.rot)
}

// Truncate caps s at limit runes; when it must cut, the result is exactly
// limit runes and ends in an ellipsis.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
