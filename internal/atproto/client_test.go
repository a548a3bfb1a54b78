package atproto

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atkit/botfleet/internal/firehose"
)

func TestParseRateLimit(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	assert.False(t, parseRateLimit(h).Present)

	h.Set("ratelimit-limit", "3000")
	h.Set("ratelimit-remaining", "42")
	h.Set("ratelimit-reset", "1700000123")
	meta := parseRateLimit(h)
	assert.True(t, meta.Present)
	assert.Equal(t, 3000, meta.Limit)
	assert.Equal(t, 42, meta.Remaining)
	assert.EqualValues(t, 1700000123, meta.Reset)
}

func TestLoginAndAuthorization(t *testing.T) {
	t.Parallel()

	var sawAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/xrpc/com.atproto.server.createSession":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "bot.test", body["identifier"])
			assert.Equal(t, "hunter2", body["password"])
			w.Write([]byte(`{"did":"did:plc:bot","handle":"bot.test","accessJwt":"at","refreshJwt":"rt"}`)) //nolint:errcheck
		case "/xrpc/com.atproto.repo.createRecord":
			sawAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{"uri":"at://did:plc:bot/app.bsky.feed.post/3k","cid":"c"}`)) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)
	sess, err := client.Login(context.Background(), "bot.test", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:bot", sess.DID)
	assert.True(t, sess.Active)

	ref, err := client.CreatePost(context.Background(), PostDraft{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "at://did:plc:bot/app.bsky.feed.post/3k", ref.URI)
	assert.Equal(t, "Bearer at", sawAuth)
}

func TestResumeSessionFailureClearsSession(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"ExpiredToken"}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)
	err := client.ResumeSession(context.Background(), Session{DID: "did:plc:bot", AccessJWT: "stale"})
	require.Error(t, err)
	assert.Empty(t, client.Session().AccessJWT)
}

func TestCreatePostBuildsRecord(t *testing.T) {
	t.Parallel()

	var record map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Repo       string         `json:"repo"`
			Collection string         `json:"collection"`
			Record     map[string]any `json:"record"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		record = body.Record
		assert.Equal(t, "did:plc:bot", body.Repo)
		assert.Equal(t, firehose.TypePost, body.Collection)
		w.Write([]byte(`{"uri":"at://x","cid":"c"}`)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)
	client.SetSession(Session{DID: "did:plc:bot", AccessJWT: "at"})

	refs := firehose.ReplyRefs{
		Parent: firehose.Ref{URI: "at://p", CID: "pc"},
		Root:   firehose.Ref{URI: "at://r", CID: "rc"},
	}
	_, err := client.CreatePost(context.Background(), PostDraft{
		Text:   "with image",
		Reply:  &refs,
		Images: []ImageEmbed{{Alt: "a pic", Blob: json.RawMessage(`{"$type":"blob"}`)}},
	})
	require.NoError(t, err)

	assert.Equal(t, firehose.TypePost, record["$type"])
	assert.Equal(t, "with image", record["text"])
	assert.NotEmpty(t, record["createdAt"])
	require.Contains(t, record, "reply")
	require.Contains(t, record, "embed")
	embed := record["embed"].(map[string]any)
	assert.Equal(t, "app.bsky.embed.images", embed["$type"])
	images := embed["images"].([]any)
	require.Len(t, images, 1)
	assert.Equal(t, "a pic", images[0].(map[string]any)["alt"])
}

func TestGetProfilesReturnsRateLimitMeta(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"did:plc:a", "did:plc:b"}, r.URL.Query()["actors"])
		w.Header().Set("ratelimit-limit", "3000")
		w.Header().Set("ratelimit-remaining", "2998")
		w.Header().Set("ratelimit-reset", "1700000300")
		w.Write([]byte(`{"profiles": [{"did":"did:plc:a","handle":"a.test","followersCount":5}]}`)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)
	profiles, meta, err := client.GetProfiles(context.Background(), []string{"did:plc:a", "did:plc:b"})
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.EqualValues(t, 5, profiles[0].FollowersCount)
	assert.True(t, meta.Present)
	assert.Equal(t, 2998, meta.Remaining)
}

func TestStatusErrorCarriesRateLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("ratelimit-limit", "3000")
		w.Header().Set("ratelimit-remaining", "0")
		w.Header().Set("ratelimit-reset", "1700000500")
		http.Error(w, `{"error":"RateLimitExceeded"}`, http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)
	_, _, err := client.GetProfiles(context.Background(), []string{"did:plc:a"})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.True(t, se.RateLimit.Present)
	assert.EqualValues(t, 1700000500, se.RateLimit.Reset)
}

func TestListRepos(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/xrpc/com.atproto.sync.listRepos", r.URL.Path)
		assert.Equal(t, "cur-1", r.URL.Query().Get("cursor"))
		w.Write([]byte(`{"repos": [{"did":"did:plc:a","active":true},{"did":"did:plc:b","active":false}], "cursor": "cur-2"}`)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)
	page, err := client.ListRepos(context.Background(), "cur-1")
	require.NoError(t, err)
	require.Len(t, page.Repos, 2)
	assert.True(t, page.Repos[0].Active)
	assert.False(t, page.Repos[1].Active)
	assert.Equal(t, "cur-2", page.Cursor)
}

func TestGetPost(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0", r.URL.Query().Get("depth"))
		assert.Equal(t, "0", r.URL.Query().Get("parentHeight"))
		w.Write([]byte(`{"thread": {"$type": "app.bsky.feed.defs#threadViewPost", "post": {
			"uri": "at://did:plc:u/app.bsky.feed.post/3k",
			"cid": "c",
			"author": {"did": "did:plc:u", "handle": "u.test"},
			"record": {"$type": "app.bsky.feed.post", "text": "hello"}
		}}}`)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)
	post, err := client.GetPost(context.Background(), "at://did:plc:u/app.bsky.feed.post/3k")
	require.NoError(t, err)
	assert.Equal(t, "u.test", post.Author.Handle)
	assert.Equal(t, "hello", post.Record.Text)
}

func TestGetPostMissing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"thread": {"$type": "app.bsky.feed.defs#notFoundPost"}}`)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)
	_, err := client.GetPost(context.Background(), "at://gone")
	assert.Error(t, err)
}

func TestUploadBlob(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"blob": {"$type": "blob", "ref": {"$link": "bafy"}, "mimeType": "image/png", "size": 3}}`)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)
	blob, err := client.UploadBlob(context.Background(), []byte{1, 2, 3}, "image/png")
	require.NoError(t, err)
	assert.Contains(t, string(blob), "bafy")
}
