// Package bot contains the live dispatch engine: actor registry, event
// classification, and the streaming control loop.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atkit/botfleet/internal/atproto"
	"github.com/atkit/botfleet/internal/firehose"
)

// StrategyKind selects which reply strategy an actor is bound to.
type StrategyKind string

// Supported strategy kinds.
const (
	KindImage     StrategyKind = "image"
	KindQuote     StrategyKind = "quote"
	KindAnswer    StrategyKind = "answer"
	KindMovieTest StrategyKind = "movietest"
)

// Poster is the slice of the posting client the engine needs per actor.
type Poster interface {
	CreatePost(ctx context.Context, draft atproto.PostDraft) (firehose.Ref, error)
	UploadBlob(ctx context.Context, data []byte, mimeType string) (json.RawMessage, error)
	GetPost(ctx context.Context, uri string) (atproto.ThreadPost, error)
	Session() atproto.Session
}

// Actor is one registered bot account. Client references the externally
// owned session; the engine never mints or refreshes credentials.
type Actor struct {
	DID    string
	Handle string
	Kind   StrategyKind
	// ReplyTriggers permits dispatching on replies to this actor's posts
	// (mentions always trigger).
	ReplyTriggers bool
	Client        Poster
}

// Registry holds actors in registration order; ordering is the dispatch
// tie-break when several actors match one event.
type Registry struct {
	actors []*Actor
}

// NewRegistry builds a Registry preserving the given order.
func NewRegistry(actors ...*Actor) *Registry {
	return &Registry{actors: append([]*Actor(nil), actors...)}
}

// Actors returns the registered actors in order.
func (r *Registry) Actors() []*Actor {
	return r.actors
}

// Task pairs a matched event with the actor bound to reply to it. A task is
// consumed exactly once and never persisted.
type Task struct {
	Event firehose.Event
	Post  firehose.PostRecord
	Actor *Actor
}

// Strategy produces an outbound reply for a matched event. Implementations
// own their retry policy; errors are logged and swallowed by the dispatcher.
type Strategy interface {
	Name() string
	Reply(ctx context.Context, task Task) error
}

// PostURI returns the at:// URI of the triggering post.
func (t Task) PostURI() string {
	return fmt.Sprintf("at://%s/%s/%s", t.Event.DID, firehose.TypePost, t.Event.Commit.RKey)
}

// ReplyRefs returns the reply refs for answering the triggering post: its
// thread root when it has one, otherwise the post itself becomes the root.
func (t Task) ReplyRefs() firehose.ReplyRefs {
	parent := firehose.Ref{URI: t.PostURI(), CID: t.Event.Commit.CID}
	root := parent
	if t.Post.Reply != nil {
		root = t.Post.Reply.Root
	}
	return firehose.ReplyRefs{Parent: parent, Root: root}
}

// ParentDID extracts the repository owner of an at:// URI, or "" when the
// URI is not parseable.
func ParentDID(uri string) string {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return ""
	}
	did, _, _ := strings.Cut(rest, "/")
	if !strings.HasPrefix(did, "did:") {
		return ""
	}
	return did
}
