package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atkit/botfleet/internal/firehose"
)

func TestParentDID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		uri  string
		want string
	}{
		{"at://did:plc:abc123/app.bsky.feed.post/3k", "did:plc:abc123"},
		{"at://did:web:example.test/app.bsky.feed.post/3k", "did:web:example.test"},
		{"https://example.test/post/1", ""},
		{"at://notadid/app.bsky.feed.post/3k", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParentDID(tc.uri), "uri %q", tc.uri)
	}
}

func TestTaskReplyRefs(t *testing.T) {
	t.Parallel()

	base := Task{
		Event: firehose.Event{
			DID: "did:plc:user",
			Commit: firehose.Commit{
				RKey: "3kx",
				CID:  "cid-parent",
			},
		},
	}

	t.Run("top level post roots the thread", func(t *testing.T) {
		refs := base.ReplyRefs()
		assert.Equal(t, "at://did:plc:user/app.bsky.feed.post/3kx", refs.Parent.URI)
		assert.Equal(t, refs.Parent, refs.Root)
	})

	t.Run("nested reply keeps the original root", func(t *testing.T) {
		task := base
		task.Post.Reply = &firehose.ReplyRefs{
			Root: firehose.Ref{URI: "at://did:plc:op/app.bsky.feed.post/3k0", CID: "cid-root"},
		}
		refs := task.ReplyRefs()
		assert.Equal(t, "cid-parent", refs.Parent.CID)
		assert.Equal(t, "at://did:plc:op/app.bsky.feed.post/3k0", refs.Root.URI)
	})
}
