package sound

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Eriyc/music-visualizer/audio"
)

// CaptureSink renders blocks on a device and offers a copy of each block to
// the capture tee first.
type CaptureSink struct {
	device     Device
	format     audio.Format
	tee        *audio.Tee
	maxPending int
	poll       time.Duration
	sleep      func(time.Duration)
	closed     atomic.Bool
}

var _ Sink = (*CaptureSink)(nil)

// Device returns the underlying output device.
func (s *CaptureSink) Device() Device {
	return s.device
}

func (s *CaptureSink) Start() error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	return s.device.Play()
}

func (s *CaptureSink) Stop() error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	return s.device.Pause()
}

func (s *CaptureSink) Write(b audio.Block) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	if b.Format != s.format {
		return fmt.Errorf("%w: sink renders %s, got %s", audio.ErrUnsupportedFormat, s.format, b.Format)
	}

	s.tee.Offer(b)

	if err := s.device.Append(b); err != nil {
		return &StreamError{Op: "write", Err: err}
	}

	// Bound the device queue; the decoder waits instead of buffering ahead.
	for s.device.Pending() > s.maxPending && !s.closed.Load() {
		s.sleep(s.poll)
	}
	return nil
}

func (s *CaptureSink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.device.Close()
}
