package localplay

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/rs/zerolog"

	"github.com/Eriyc/music-visualizer/audio"
	"github.com/Eriyc/music-visualizer/remote"
	"github.com/Eriyc/music-visualizer/sound"
)

const (
	// framesPerBlock is how many stereo frames go into one sink write.
	framesPerBlock  = 4096
	eventBuffer     = 128
	resampleQuality = 4
)

var outputRate = beep.SampleRate(audio.SampleRate)

var errPlayerClosed = errors.New("localplay: player closed")

type player struct {
	format audio.Format
	mixer  remote.Mixer
	build  remote.SinkBuilder
	logger zerolog.Logger

	requestID atomic.Uint64

	mu      sync.Mutex
	session remote.Session
	sink    sound.Sink
	onSink  func(sound.Status)
	closed  bool
	events  chan remote.PlayerEvent

	// playing serializes tracks; only one control session drives the player at a time
	playing sync.Mutex

	invalidOnce sync.Once
	invalid     chan struct{}
}

func newPlayer(cfg remote.PlayerConfig, s remote.Session, m remote.Mixer, build remote.SinkBuilder, logger zerolog.Logger) *player {
	format := cfg.Format
	if !format.Valid() {
		format = audio.FormatS16
	}
	return &player{
		format:  format,
		mixer:   m,
		build:   build,
		logger:  logger,
		session: s,
		events:  make(chan remote.PlayerEvent, eventBuffer),
		invalid: make(chan struct{}),
	}
}

func (p *player) SetSession(s remote.Session) {
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
}

// boundTo reports whether s is the session the player currently serves.
func (p *player) boundTo(s remote.Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session == s
}

func (p *player) Events() <-chan remote.PlayerEvent {
	return p.events
}

func (p *player) SetSinkEventCallback(fn func(sound.Status)) {
	p.mu.Lock()
	p.onSink = fn
	p.mu.Unlock()
}

func (p *player) IsInvalid() bool {
	select {
	case <-p.invalid:
		return true
	default:
		return false
	}
}

func (p *player) Invalidated() <-chan struct{} {
	return p.invalid
}

func (p *player) invalidate() {
	p.invalidOnce.Do(func() { close(p.invalid) })
}

// Close releases the sink and ends the event stream. It is idempotent.
func (p *player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	sink := p.sink
	p.sink = nil
	close(p.events)
	p.mu.Unlock()

	p.invalidate()

	var err error
	if sink != nil {
		err = sink.Close()
		p.sinkStatus(sound.StatusClosed)
	}

	// A track in flight sees the closed sink and returns.
	p.playing.Lock()
	defer p.playing.Unlock()

	if err != nil {
		return fmt.Errorf("close sink: %w", err)
	}
	return nil
}

// emit hands an event to the listener without ever blocking playback.
func (p *player) emit(ev remote.PlayerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		p.logger.Warn().Str("event", fmt.Sprintf("%T", ev)).Msg("player event dropped, listener is behind")
	}
}

func (p *player) sinkStatus(st sound.Status) {
	p.mu.Lock()
	fn := p.onSink
	p.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// openSink builds the sink on first use. A sink that cannot be opened
// leaves the player unusable.
func (p *player) openSink() (sound.Sink, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errPlayerClosed
	}
	if p.sink != nil {
		return p.sink, nil
	}
	sink, err := p.build()
	if err != nil {
		p.invalidate()
		return nil, fmt.Errorf("open sink: %w", err)
	}
	p.sink = sink
	return sink, nil
}

// track is one decodable media file.
type track struct {
	path string
	id   remote.TrackID
}

func newTrack(path string) track {
	sum := sha1.Sum([]byte(path))
	var raw [16]byte
	copy(raw[:], sum[:16])
	return track{path: path, id: remote.NewTrackID(remote.KindTrack, raw)}
}

func (t track) name() string {
	return strings.TrimSuffix(filepath.Base(t.path), filepath.Ext(t.path))
}

// play renders one track into the sink until it ends or ctx is cancelled.
// Decode failures are returned and the player stays usable; sink failures
// invalidate it.
func (p *player) play(ctx context.Context, t track) error {
	p.playing.Lock()
	defer p.playing.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", t.path, err)
	}
	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode %s: %w", t.path, err)
	}
	defer streamer.Close()

	reqID := p.requestID.Add(1)
	p.emit(remote.PlayRequestIDChanged{PlayRequestID: reqID})

	uri, err := t.id.URI()
	if err != nil {
		p.emit(remote.Unavailable{PlayRequestID: reqID, TrackID: t.id})
		return fmt.Errorf("track %s: %w", t.path, err)
	}
	p.emit(remote.TrackChanged{Item: remote.AudioItem{
		TrackID:    t.id,
		URI:        uri,
		Name:       t.name(),
		DurationMS: uint32(format.SampleRate.D(streamer.Len()).Milliseconds()),
		Unique: remote.TrackFields{
			Album: filepath.Base(filepath.Dir(t.path)),
		},
	}})
	p.emit(remote.Loading{PlayRequestID: reqID, TrackID: t.id})

	sink, err := p.openSink()
	if err != nil {
		p.emit(remote.Unavailable{PlayRequestID: reqID, TrackID: t.id})
		return err
	}
	if err := sink.Start(); err != nil {
		p.invalidate()
		return fmt.Errorf("start sink: %w", err)
	}
	p.sinkStatus(sound.StatusRunning)
	p.emit(remote.VolumeChanged{Volume: p.mixer.Volume()})
	p.emit(remote.Playing{PlayRequestID: reqID, TrackID: t.id})

	resampled := beep.Resample(resampleQuality, format.SampleRate, outputRate, streamer)
	written, err := p.stream(ctx, resampled, sink)
	pos := uint32(outputRate.D(written).Milliseconds())

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		p.emit(remote.Stopped{PlayRequestID: reqID, TrackID: t.id})
	case err != nil:
		if p.IsInvalid() {
			return err
		}
		p.emit(remote.Unavailable{PlayRequestID: reqID, TrackID: t.id})
	default:
		p.emit(remote.Paused{PlayRequestID: reqID, TrackID: t.id, PositionMS: pos})
		p.emit(remote.EndOfTrack{PlayRequestID: reqID, TrackID: t.id})
	}

	if stopErr := sink.Stop(); stopErr != nil {
		p.logger.Warn().Err(stopErr).Msg("stop sink")
	} else {
		p.sinkStatus(sound.StatusTemporarilyClosed)
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// stream pulls frames through the mixer's volume and writes them as
// blocks. It returns the number of frames written at the output rate.
func (p *player) stream(ctx context.Context, src beep.Streamer, sink sound.Sink) (int, error) {
	vol := &effects.Volume{Streamer: src, Base: 2}
	buf := make([][2]float64, framesPerBlock)
	frames := 0

	for {
		if err := ctx.Err(); err != nil {
			return frames, err
		}
		// Volume may change between blocks.
		vol.Volume, vol.Silent = volumeLevel(p.mixer.Volume())

		n, ok := vol.Stream(buf)
		if n > 0 {
			if err := sink.Write(encode(buf[:n], p.format)); err != nil {
				p.invalidate()
				return frames, fmt.Errorf("write sink: %w", err)
			}
			frames += n
		}
		if !ok {
			if err := vol.Err(); err != nil {
				return frames, fmt.Errorf("decode: %w", err)
			}
			return frames, nil
		}
	}
}

// volumeLevel maps a mixer volume onto the base 2 exponent effects.Volume
// expects, so that full volume is unity gain.
func volumeLevel(v uint16) (level float64, silent bool) {
	if v == 0 {
		return 0, true
	}
	return math.Log2(float64(v) / 0xFFFF), false
}

// encode interleaves stereo frames in the sink's sample format.
func encode(frames [][2]float64, format audio.Format) audio.Block {
	if format == audio.FormatF32 {
		out := make([]float32, 0, len(frames)*audio.Channels)
		for _, f := range frames {
			out = append(out, float32(f[0]), float32(f[1]))
		}
		return audio.F32Block(out)
	}
	out := make([]int16, 0, len(frames)*audio.Channels)
	for _, f := range frames {
		out = append(out, toS16(f[0]), toS16(f[1]))
	}
	return audio.S16Block(out)
}

func toS16(v float64) int16 {
	switch {
	case v >= 1:
		return 32767
	case v <= -1:
		return -32767
	default:
		return int16(v * 32767)
	}
}
