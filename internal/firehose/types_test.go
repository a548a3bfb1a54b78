package firehose

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecord(t *testing.T) {
	t.Parallel()

	t.Run("post with reply and facets", func(t *testing.T) {
		raw := json.RawMessage(`{
			"$type": "app.bsky.feed.post",
			"text": "hey @bot",
			"createdAt": "2024-06-01T12:00:00Z",
			"langs": ["en"],
			"reply": {
				"parent": {"uri": "at://did:plc:abc/app.bsky.feed.post/1", "cid": "p1"},
				"root": {"uri": "at://did:plc:abc/app.bsky.feed.post/0", "cid": "r1"}
			},
			"facets": [{"features": [{"$type": "app.bsky.richtext.facet#mention", "did": "did:plc:bot"}]}]
		}`)

		rec := DecodeRecord(raw)
		require.NotNil(t, rec.Post)
		assert.Equal(t, "hey @bot", rec.Post.Text)
		require.NotNil(t, rec.Post.Reply)
		assert.Equal(t, "at://did:plc:abc/app.bsky.feed.post/1", rec.Post.Reply.Parent.URI)
		require.Len(t, rec.Post.Facets, 1)
		assert.Equal(t, "did:plc:bot", rec.Post.Facets[0].Features[0].DID)
	})

	t.Run("follow", func(t *testing.T) {
		rec := DecodeRecord(json.RawMessage(`{"$type": "app.bsky.graph.follow", "subject": "did:plc:x"}`))
		require.NotNil(t, rec.Follow)
		assert.Equal(t, "did:plc:x", rec.Follow.Subject)
		assert.Nil(t, rec.Post)
	})

	t.Run("like carries a subject ref", func(t *testing.T) {
		rec := DecodeRecord(json.RawMessage(`{"$type": "app.bsky.feed.like", "subject": {"uri": "at://u", "cid": "c"}}`))
		require.NotNil(t, rec.Like)
		assert.Equal(t, "at://u", rec.Like.Subject.URI)
	})

	t.Run("unknown type is not an error", func(t *testing.T) {
		rec := DecodeRecord(json.RawMessage(`{"$type": "app.bsky.feed.generator", "displayName": "x"}`))
		assert.Equal(t, Record{}, rec)
	})

	t.Run("malformed json", func(t *testing.T) {
		assert.Equal(t, Record{}, DecodeRecord(json.RawMessage(`{"$type": "app.bsky.feed.post",`)))
	})

	t.Run("empty payload", func(t *testing.T) {
		assert.Equal(t, Record{}, DecodeRecord(nil))
	})
}
