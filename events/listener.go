package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Eriyc/music-visualizer/remote"
	"github.com/Eriyc/music-visualizer/sound"
)

// Listener forwards player events to the presentation layer in the order
// they are received.
type Listener struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Listen starts draining events. It stops when events is closed or Stop is
// called.
func Listen(ctx context.Context, events <-chan remote.PlayerEvent, emitter Emitter, logger zerolog.Logger) *Listener {
	ctx, cancel := context.WithCancel(ctx)
	l := &Listener{cancel: cancel, done: make(chan struct{})}
	mapper := NewMapper(logger)

	go func() {
		defer close(l.done)
		logger.Info().Msg("player event listener started")
		defer logger.Info().Msg("player event listener finished")

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					logger.Info().Msg("player event channel closed")
					return
				}
				payload, ok := mapper.Map(ev)
				if !ok {
					continue
				}
				if err := emitter.Emit(EventPlayer, payload); err != nil {
					logger.Error().Err(err).Str("type", payload.EventType()).Msg("failed to emit player event")
				}
			}
		}
	}()
	return l
}

// Stop cancels the listener without waiting for it.
func (l *Listener) Stop() {
	l.cancel()
}

// Done is closed when the listener has exited.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// SinkCallback returns the sink status observer that emits spotify_sink_event.
func SinkCallback(emitter Emitter, logger zerolog.Logger) func(sound.Status) {
	return func(status sound.Status) {
		if err := emitter.Emit(EventSink, SinkEvent{Status: status.String()}); err != nil {
			logger.Error().Err(err).Stringer("status", status).Msg("failed to emit sink event")
		}
	}
}
