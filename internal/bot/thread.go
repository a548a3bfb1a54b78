package bot

import (
	"context"

	"go.uber.org/zap"

	"github.com/atkit/botfleet/internal/atproto"
	"github.com/atkit/botfleet/internal/llm"
)

// maxThreadDepth bounds the parent walk so a pathological thread cannot
// turn one reply into dozens of fetches.
const maxThreadDepth = 10

// PostFetcher fetches a single post by at:// URI.
type PostFetcher interface {
	GetPost(ctx context.Context, uri string) (atproto.ThreadPost, error)
}

// FetchThread walks parent links upward from startURI and returns the
// collected posts oldest-first, ready to hand to a language model. The walk
// stops at maxThreadDepth, on a repeated URI, or on the first fetch error;
// whatever was collected so far is returned. When includeOwn is false the
// actor's own posts are skipped.
func FetchThread(ctx context.Context, api PostFetcher, startURI, actorDID string, includeOwn bool, logger *zap.Logger) []llm.ThreadMessage {
	var msgs []llm.ThreadMessage
	seen := make(map[string]bool)
	uri := startURI

	for depth := 0; depth < maxThreadDepth && uri != ""; depth++ {
		if seen[uri] {
			break
		}
		seen[uri] = true

		post, err := api.GetPost(ctx, uri)
		if err != nil {
			logger.Debug("thread walk stopped",
				zap.String("uri", uri),
				zap.Int("depth", depth),
				zap.Error(err))
			break
		}

		if includeOwn || post.Author.DID != actorDID {
			msgs = append(msgs, llm.ThreadMessage{
				Handle: post.Author.Handle,
				Text:   post.Record.Text,
				Bot:    post.Author.DID == actorDID,
			})
		}

		if post.Record.Reply == nil {
			break
		}
		uri = post.Record.Reply.Parent.URI
	}

	// Walked newest to oldest; callers want chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs
}
