// Package firehose consumes the jetstream commit firehose over a websocket.
package firehose

import (
	"encoding/json"
)

// Record $type discriminants recognized by the decoder.
const (
	TypePost   = "app.bsky.feed.post"
	TypeFollow = "app.bsky.graph.follow"
	TypeLike   = "app.bsky.feed.like"
	TypeBlock  = "app.bsky.graph.block"
	TypeRepost = "app.bsky.feed.repost"
)

// Event message kinds carried on the stream.
const (
	KindCommit = "commit"
)

// Commit operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Event is one decoded firehose message. Only kind == "commit" events carry
// a Commit payload. TimeUS is the strictly increasing stream cursor.
type Event struct {
	DID    string `json:"did"`
	Kind   string `json:"kind"`
	TimeUS int64  `json:"time_us"`
	Commit Commit `json:"commit"`
}

// Commit is a record-level change notification.
type Commit struct {
	Rev        string          `json:"rev"`
	Collection string          `json:"collection"`
	RKey       string          `json:"rkey"`
	Operation  string          `json:"operation"`
	CID        string          `json:"cid"`
	Record     json.RawMessage `json:"record"`
}

// Ref points at a record by URI and CID.
type Ref struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// ReplyRefs carries the parent and root of a reply post.
type ReplyRefs struct {
	Parent Ref `json:"parent"`
	Root   Ref `json:"root"`
}

// Facet is a rich-text annotation; mention features carry the target DID.
type Facet struct {
	Features []Feature `json:"features"`
}

// Feature is one annotation feature inside a facet.
type Feature struct {
	Type string `json:"$type"`
	DID  string `json:"did"`
}

// FeatureMention is the $type of a mention feature.
const FeatureMention = "app.bsky.richtext.facet#mention"

// PostRecord is a feed post creation.
type PostRecord struct {
	Type      string     `json:"$type"`
	Text      string     `json:"text"`
	CreatedAt string     `json:"createdAt"`
	Langs     []string   `json:"langs,omitempty"`
	Reply     *ReplyRefs `json:"reply,omitempty"`
	Facets    []Facet    `json:"facets,omitempty"`
}

// FollowRecord is a graph follow.
type FollowRecord struct {
	Type    string `json:"$type"`
	Subject string `json:"subject"`
}

// LikeRecord is a feed like.
type LikeRecord struct {
	Type    string `json:"$type"`
	Subject Ref    `json:"subject"`
}

// BlockRecord is a graph block.
type BlockRecord struct {
	Type    string `json:"$type"`
	Subject string `json:"subject"`
}

// RepostRecord is a feed repost.
type RepostRecord struct {
	Type    string `json:"$type"`
	Subject Ref    `json:"subject"`
}

// Record is the decoded tagged union of commit record types. Exactly one
// field is non-nil for recognized types; all nil means unrecognized, which
// is not an error.
type Record struct {
	Post   *PostRecord
	Follow *FollowRecord
	Like   *LikeRecord
	Block  *BlockRecord
	Repost *RepostRecord
}

// DecodeRecord decodes raw commit record bytes by their $type discriminant.
// Unrecognized or malformed records decode to the zero Record.
func DecodeRecord(raw json.RawMessage) Record {
	if len(raw) == 0 {
		return Record{}
	}
	var probe struct {
		Type string `json:"$type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Record{}
	}
	switch probe.Type {
	case TypePost:
		var r PostRecord
		if json.Unmarshal(raw, &r) == nil {
			return Record{Post: &r}
		}
	case TypeFollow:
		var r FollowRecord
		if json.Unmarshal(raw, &r) == nil {
			return Record{Follow: &r}
		}
	case TypeLike:
		var r LikeRecord
		if json.Unmarshal(raw, &r) == nil {
			return Record{Like: &r}
		}
	case TypeBlock:
		var r BlockRecord
		if json.Unmarshal(raw, &r) == nil {
			return Record{Block: &r}
		}
	case TypeRepost:
		var r RepostRecord
		if json.Unmarshal(raw, &r) == nil {
			return Record{Repost: &r}
		}
	}
	return Record{}
}
