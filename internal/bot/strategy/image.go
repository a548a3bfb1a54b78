package strategy

import (
	"context"

	"github.com/atkit/botfleet/internal/bot"
)

// Image replies with the next image in the bot's rotation and no text.
type Image struct {
	rot *rotation
}

// NewImage builds the image strategy from the bot's material.
func NewImage(imagesDir string, images []bot.ImageSpec) *Image {
	return &Image{rot: newRotation(imagesDir, images)}
}

func (s *Image) Name() string { return string(bot.KindImage) }

func (s *Image) Reply(ctx context.Context, task bot.Task) error {
	return postReply(ctx, task, "", s.rot)
}
