package bot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atkit/botfleet/internal/clock"
	"github.com/atkit/botfleet/internal/firehose"
	"github.com/atkit/botfleet/internal/metrics"
	"github.com/atkit/botfleet/internal/progress"
)

// Stream is the subscribed firehose connection the dispatcher consumes.
type Stream interface {
	Events() <-chan firehose.Event
	Err() error
	Close() error
}

// DialFunc opens a fresh subscription. The dispatcher always subscribes
// from the present; it never replays missed events after a disconnect.
type DialFunc func(ctx context.Context) (Stream, error)

// Config carries dispatcher tunables.
type Config struct {
	// ReconnectDelay is the flat pause between connection attempts.
	ReconnectDelay time.Duration
	Logger         *zap.Logger
	Clock          clock.Clock
	Emitter        progress.Emitter
}

// Dispatcher runs the connect/stream/reconnect loop and fans matched
// events out to per-actor strategies.
type Dispatcher struct {
	dial       DialFunc
	registry   *Registry
	strategies map[string]Strategy // keyed by actor DID
	delay      time.Duration
	logger     *zap.Logger
	clock      clock.Clock
	emitter    progress.Emitter
	runID      uuid.UUID

	wg sync.WaitGroup
}

// NewDispatcher wires a dispatcher. Every registered actor must have a
// strategy under its DID in strategies.
func NewDispatcher(dial DialFunc, reg *Registry, strategies map[string]Strategy, cfg Config) *Dispatcher {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 10 * time.Second
	}
	return &Dispatcher{
		dial:       dial,
		registry:   reg,
		strategies: strategies,
		delay:      delay,
		logger:     cfg.Logger,
		clock:      clk,
		emitter:    cfg.Emitter,
		runID:      uuid.New(),
	}
}

// Run drives the stream until ctx is cancelled. Dial failures and dropped
// connections both fall back to a flat reconnect pause; the loop never
// gives up on its own. In-flight replies are abandoned on shutdown.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := d.dial(ctx)
		if err != nil {
			d.logger.Warn("firehose dial failed",
				zap.Duration("retry_in", d.delay),
				zap.Error(err))
			if !d.pause(ctx) {
				return ctx.Err()
			}
			continue
		}

		d.emit(progress.Event{Stage: progress.StageStreamConnect})
		d.logger.Info("firehose connected")

		d.stream(ctx, conn)

		streamErr := conn.Err()
		d.emit(progress.Event{Stage: progress.StageStreamDisconnect, Note: errNote(streamErr)})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Warn("firehose disconnected",
			zap.Duration("retry_in", d.delay),
			zap.Error(streamErr))
		metrics.ObserveFirehoseReconnect()
		if !d.pause(ctx) {
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) stream(ctx context.Context, conn Stream) {
	defer conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-conn.Events():
			if !ok {
				return
			}
			d.handle(ctx, evt)
		}
	}
}

// handle classifies one event and, on a match, hands it to the bound
// strategy on its own goroutine so a slow reply never stalls the stream.
func (d *Dispatcher) handle(ctx context.Context, evt firehose.Event) {
	metrics.ObserveFirehoseEvent(evt.Commit.Collection)

	rec := firehose.DecodeRecord(evt.Commit.Record)
	match := Classify(evt, rec, d.registry)
	if match.Kind == MatchNone {
		return
	}

	task := Task{Event: evt, Post: *rec.Post, Actor: match.Actor}
	strat, ok := d.strategies[match.Actor.DID]
	if !ok {
		d.logger.Error("no strategy bound for actor", zap.String("actor", match.Actor.Handle))
		return
	}

	d.emit(progress.Event{
		Stage: progress.StageMatch,
		Actor: match.Actor.Handle,
		Note:  matchNote(match.Kind),
	})
	d.logger.Info("event matched",
		zap.String("actor", match.Actor.Handle),
		zap.String("strategy", strat.Name()),
		zap.String("post", task.PostURI()),
		zap.String("kind", matchNote(match.Kind)))

	d.wg.Add(1)
	metrics.IncInflightReplies()
	go func() {
		defer d.wg.Done()
		defer metrics.DecInflightReplies()

		start := time.Now()
		err := strat.Reply(ctx, task)
		dur := time.Since(start)

		if err != nil {
			metrics.ObserveReply(strat.Name(), "error", dur)
			d.emit(progress.Event{Stage: progress.StageReplyError, Actor: match.Actor.Handle, Dur: dur, Note: err.Error()})
			d.logger.Error("reply failed",
				zap.String("actor", match.Actor.Handle),
				zap.String("strategy", strat.Name()),
				zap.Duration("dur", dur),
				zap.Error(err))
			return
		}
		metrics.ObserveReply(strat.Name(), "ok", dur)
		d.emit(progress.Event{Stage: progress.StageReplyDone, Actor: match.Actor.Handle, Dur: dur})
		d.logger.Info("reply posted",
			zap.String("actor", match.Actor.Handle),
			zap.String("strategy", strat.Name()),
			zap.Duration("dur", dur))
	}()
}

// Wait blocks until replies already in flight have finished. Shutdown
// calls it with a short deadline for a best-effort drain.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) pause(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	d.clock.Sleep(ctx, d.delay)
	return ctx.Err() == nil
}

func (d *Dispatcher) emit(evt progress.Event) {
	if d.emitter == nil {
		return
	}
	evt.RunID = d.runID
	evt.TS = time.Now()
	d.emitter.Emit(evt)
}

func matchNote(k MatchKind) string {
	if k == MatchMention {
		return "mention"
	}
	return "reply"
}

func errNote(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
