// Package progress defines milestone events emitted by both engines and a
// hub that fans them out to sinks without blocking the emitters.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageStreamConnect    Stage = "STREAM_CONNECT"
	StageStreamDisconnect Stage = "STREAM_DISCONNECT"
	StageMatch            Stage = "MATCH"
	StageReplyDone        Stage = "REPLY_DONE"
	StageReplyError       Stage = "REPLY_ERROR"
	StageCrawlPage        Stage = "CRAWL_PAGE"
	StageCrawlHostDone    Stage = "CRAWL_HOST_DONE"
	StageCrawlHalt        Stage = "CRAWL_HALT"
)

// Event captures a single milestone from either engine.
type Event struct {
	// RunID identifies one engine run (one serve or crawl invocation).
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Host scopes crawl events to a directory host.
	Host string
	// Actor scopes dispatch events to a bot account.
	Actor string
	// Count carries a stage-specific tally (repos on a page, thread depth).
	Count int64
	// Dur captures execution latency where meaningful.
	Dur time.Duration
	// Note attaches low-volume debug context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageStreamConnect, StageStreamDisconnect, StageCrawlHalt:
	case StageMatch, StageReplyDone, StageReplyError:
		if e.Actor == "" {
			return fmt.Errorf("%s requires actor", e.Stage)
		}
	case StageCrawlPage, StageCrawlHostDone:
		if e.Host == "" {
			return fmt.Errorf("%s requires host", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
