// Package atproto implements the XRPC JSON clients the engines depend on:
// an authenticated client for posting and thread lookups, and an
// unauthenticated directory client for bulk repository listing.
package atproto

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/atkit/botfleet/internal/firehose"
)

// Session is an authenticated posting capability. The package never mints
// credentials on its own; sessions are created via Login or restored from
// the session store.
type Session struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJWT  string `json:"accessJwt"`
	RefreshJWT string `json:"refreshJwt"`
	Active     bool   `json:"active"`
}

// RateLimitMeta is quota metadata parsed from response headers. Present is
// false when the upstream sent no rate-limit headers.
type RateLimitMeta struct {
	Limit     int
	Remaining int
	Reset     int64
	Present   bool
}

func parseRateLimit(h http.Header) RateLimitMeta {
	limitStr := h.Get("ratelimit-limit")
	if limitStr == "" {
		return RateLimitMeta{}
	}
	limit, _ := strconv.Atoi(limitStr)
	remaining, _ := strconv.Atoi(h.Get("ratelimit-remaining"))
	reset, _ := strconv.ParseInt(h.Get("ratelimit-reset"), 10, 64)
	return RateLimitMeta{Limit: limit, Remaining: remaining, Reset: reset, Present: true}
}

// ProfileView is a resolved actor profile.
type ProfileView struct {
	DID            string `json:"did"`
	Handle         string `json:"handle"`
	DisplayName    string `json:"displayName"`
	Description    string `json:"description"`
	CreatedAt      string `json:"createdAt"`
	IndexedAt      string `json:"indexedAt"`
	FollowersCount int64  `json:"followersCount"`
	FollowsCount   int64  `json:"followsCount"`
	PostsCount     int64  `json:"postsCount"`
}

// Repo is one directory listing entry.
type Repo struct {
	DID    string `json:"did"`
	Head   string `json:"head"`
	Rev    string `json:"rev"`
	Active bool   `json:"active"`
}

// RepoPage is one page of a repository listing.
type RepoPage struct {
	Repos  []Repo `json:"repos"`
	Cursor string `json:"cursor"`
}

// ThreadPost is a single post view inside a thread.
type ThreadPost struct {
	URI    string              `json:"uri"`
	CID    string              `json:"cid"`
	Author Author              `json:"author"`
	Record firehose.PostRecord `json:"record"`
}

// Author identifies the poster.
type Author struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`
}

// PostDraft is an outbound post.
type PostDraft struct {
	Text  string
	Reply *firehose.ReplyRefs
	// Images embeds uploaded blobs; empty means a plain text post.
	Images []ImageEmbed
}

// ImageEmbed pairs an uploaded blob with its alt text.
type ImageEmbed struct {
	Alt  string
	Blob json.RawMessage
}
