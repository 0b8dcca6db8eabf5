package audio

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DefaultCaptureCapacity is the number of chunks the capture queue holds.
const DefaultCaptureCapacity = 100

// Capture is the process-wide side channel that carries copies of rendered
// audio to a single visualization consumer. It is built once by its owner
// and handed to every sink that should be tapped.
type Capture struct {
	chunks chan Chunk
	done   chan struct{}
	logger zerolog.Logger

	closeOnce sync.Once
	dropped   atomic.Uint64
	goneOnce  sync.Once
}

// NewCapture creates a capture queue with room for capacity chunks.
func NewCapture(capacity int, logger zerolog.Logger) *Capture {
	if capacity <= 0 {
		capacity = DefaultCaptureCapacity
	}
	return &Capture{
		chunks: make(chan Chunk, capacity),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "capture").Logger(),
	}
}

// Tee builds a tee for a sink rendering blocks of the given format.
func (c *Capture) Tee(f Format) (*Tee, error) {
	convert, err := CaptureConverter(f)
	if err != nil {
		return nil, err
	}
	return &Tee{capture: c, format: f, convert: convert}, nil
}

// Chunks is the consumer side of the queue.
func (c *Capture) Chunks() <-chan Chunk {
	return c.chunks
}

// Dropped returns how many chunks were discarded because the queue was full.
func (c *Capture) Dropped() uint64 {
	return c.dropped.Load()
}

// Close tears down the consumer side. Producers keep working and their
// chunks are discarded.
func (c *Capture) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Pump forwards chunks to emit until ctx is cancelled or the capture is
// closed. Emit failures are logged and the chunk is skipped.
func (c *Capture) Pump(ctx context.Context, emit func(Chunk) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case chunk := <-c.chunks:
			if err := emit(chunk); err != nil {
				c.logger.Warn().Err(err).Msg("failed to emit audio chunk")
			}
		}
	}
}

func (c *Capture) offer(chunk Chunk) {
	select {
	case <-c.done:
		c.goneOnce.Do(func() {
			c.logger.Warn().Msg("capture consumer is gone, discarding audio")
		})
		return
	default:
	}

	select {
	case c.chunks <- chunk:
	default:
		// Drop audio if channel is full
		c.dropped.Add(1)
	}
}

// Tee offers a copy of every rendered block to the capture queue.
type Tee struct {
	capture *Capture
	format  Format
	convert Converter
}

// Format returns the block format the tee was built for.
func (t *Tee) Format() Format {
	return t.format
}

// Offer converts b and hands it to the capture queue without blocking.
// Blocks of another format are ignored.
func (t *Tee) Offer(b Block) {
	if b.Format != t.format || b.Len() == 0 {
		return
	}
	t.capture.offer(t.convert(b))
}
