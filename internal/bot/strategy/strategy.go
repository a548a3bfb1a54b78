// Package strategy implements the reply behaviors bound to bot accounts:
// image rotation, quote picking, generated answers, and the movie test.
package strategy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/atkit/botfleet/internal/atproto"
	"github.com/atkit/botfleet/internal/bot"
)

// rotation hands out images round-robin across replies.
type rotation struct {
	mu     sync.Mutex
	dir    string
	images []bot.ImageSpec
	next   int
}

func newRotation(dir string, images []bot.ImageSpec) *rotation {
	return &rotation{dir: dir, images: images}
}

// picked is one image pulled off the rotation.
type picked struct {
	data []byte
	alt  string
	mime string
}

// take returns the next image in the round-robin. An empty rotation
// returns ok=false and the reply goes out without an embed.
func (r *rotation) take() (img picked, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.images) == 0 {
		return picked{}, false, nil
	}
	spec := r.images[r.next]
	r.next = (r.next + 1) % len(r.images)

	data, err := os.ReadFile(filepath.Join(r.dir, spec.Path))
	if err != nil {
		return picked{}, false, fmt.Errorf("read image %s: %w", spec.Path, err)
	}
	return picked{data: data, alt: spec.Alt, mime: mimeFor(spec.Path)}, true, nil
}

// postReply publishes a reply to the triggering post, attaching the next
// rotation image when one is available.
func postReply(ctx context.Context, task bot.Task, text string, rot *rotation) error {
	refs := task.ReplyRefs()
	draft := atproto.PostDraft{Text: text, Reply: &refs}

	if rot != nil {
		img, ok, err := rot.take()
		if err != nil {
			return err
		}
		if ok {
			blob, err := task.Actor.Client.UploadBlob(ctx, img.data, img.mime)
			if err != nil {
				return fmt.Errorf("upload image: %w", err)
			}
			draft.Images = []atproto.ImageEmbed{{Alt: img.alt, Blob: blob}}
		}
	}

	if _, err := task.Actor.Client.CreatePost(ctx, draft); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func mimeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
