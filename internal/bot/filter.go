package bot

import "github.com/atkit/botfleet/internal/firehose"

// MatchKind says why an event was routed to an actor.
type MatchKind int

// Classification outcomes.
const (
	MatchNone MatchKind = iota
	MatchMention
	MatchReply
)

// Match is the result of classifying one commit event.
type Match struct {
	Kind  MatchKind
	Actor *Actor
}

// Classify decides whether a commit event warrants a reply and by whom.
// Only post creations are considered. Mentions win over replies, and when
// several actors are mentioned in one post the earliest-registered one
// takes it; at most one actor is ever matched per event.
func Classify(evt firehose.Event, rec firehose.Record, reg *Registry) Match {
	if evt.Kind != firehose.KindCommit ||
		evt.Commit.Operation != firehose.OpCreate ||
		evt.Commit.Collection != firehose.TypePost ||
		rec.Post == nil {
		return Match{Kind: MatchNone}
	}
	post := rec.Post

	mentioned := mentionedDIDs(post)
	for _, actor := range reg.Actors() {
		if evt.DID == actor.DID {
			continue
		}
		if mentioned[actor.DID] {
			return Match{Kind: MatchMention, Actor: actor}
		}
	}

	if post.Reply != nil {
		parent := ParentDID(post.Reply.Parent.URI)
		for _, actor := range reg.Actors() {
			if !actor.ReplyTriggers || evt.DID == actor.DID {
				continue
			}
			if parent == actor.DID {
				return Match{Kind: MatchReply, Actor: actor}
			}
		}
	}

	return Match{Kind: MatchNone}
}

func mentionedDIDs(post *firehose.PostRecord) map[string]bool {
	if len(post.Facets) == 0 {
		return nil
	}
	dids := make(map[string]bool)
	for _, facet := range post.Facets {
		for _, feat := range facet.Features {
			if feat.Type == firehose.FeatureMention && feat.DID != "" {
				dids[feat.DID] = true
			}
		}
	}
	return dids
}
