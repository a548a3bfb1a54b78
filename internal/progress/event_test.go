package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func validEvent(stage Stage) Event {
	evt := Event{RunID: uuid.New(), TS: time.Now().UTC(), Stage: stage}
	switch stage {
	case StageMatch, StageReplyDone, StageReplyError:
		evt.Actor = "bot.test"
	case StageCrawlPage, StageCrawlHostDone:
		evt.Host = "pds.test"
	}
	return evt
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	stages := []Stage{
		StageStreamConnect, StageStreamDisconnect,
		StageMatch, StageReplyDone, StageReplyError,
		StageCrawlPage, StageCrawlHostDone, StageCrawlHalt,
	}
	for _, stage := range stages {
		assert.NoError(t, validEvent(stage).Validate(), "stage %s", stage)
	}
}

func TestEventValidateRejects(t *testing.T) {
	t.Parallel()

	t.Run("missing run id", func(t *testing.T) {
		evt := validEvent(StageStreamConnect)
		evt.RunID = uuid.Nil
		assert.Error(t, evt.Validate())
	})

	t.Run("missing timestamp", func(t *testing.T) {
		evt := validEvent(StageStreamConnect)
		evt.TS = time.Time{}
		assert.Error(t, evt.Validate())
	})

	t.Run("dispatch stage without actor", func(t *testing.T) {
		evt := validEvent(StageReplyDone)
		evt.Actor = ""
		assert.Error(t, evt.Validate())
	})

	t.Run("crawl stage without host", func(t *testing.T) {
		evt := validEvent(StageCrawlPage)
		evt.Host = ""
		assert.Error(t, evt.Validate())
	})

	t.Run("unknown stage", func(t *testing.T) {
		evt := validEvent(StageStreamConnect)
		evt.Stage = "TEA_BREAK"
		assert.Error(t, evt.Validate())
	})

	t.Run("negative duration", func(t *testing.T) {
		evt := validEvent(StageReplyDone)
		evt.Dur = -time.Second
		assert.Error(t, evt.Validate())
	})
}
