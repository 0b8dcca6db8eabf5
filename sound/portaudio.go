package sound

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/Eriyc/music-visualizer/audio"
)

// PortaudioConfig holds the output stream parameters.
type PortaudioConfig struct {
	SampleRate      float64
	FramesPerBuffer int
	Channels        int
	// QueueSize is the number of blocks Append accepts before blocking.
	QueueSize int
	Logger    zerolog.Logger
}

// GetDefaultConfig returns the stream parameters rendered blocks are produced with.
func GetDefaultConfig() PortaudioConfig {
	return PortaudioConfig{
		SampleRate:      audio.SampleRate,
		FramesPerBuffer: 1024,
		Channels:        audio.Channels,
		QueueSize:       64,
		Logger:          zerolog.Nop(),
	}
}

// PortaudioHost opens output devices through PortAudio.
type PortaudioHost struct {
	config PortaudioConfig
}

var _ Host = (*PortaudioHost)(nil)

func NewPortaudioHost(config PortaudioConfig) *PortaudioHost {
	def := GetDefaultConfig()
	if config.SampleRate == 0 {
		config.SampleRate = def.SampleRate
	}
	if config.FramesPerBuffer == 0 {
		config.FramesPerBuffer = def.FramesPerBuffer
	}
	if config.Channels == 0 {
		config.Channels = def.Channels
	}
	if config.QueueSize == 0 {
		config.QueueSize = def.QueueSize
	}
	return &PortaudioHost{config: config}
}

func (h *PortaudioHost) Initialize() error {
	return portaudio.Initialize()
}

func (h *PortaudioHost) Terminate() {
	portaudio.Terminate()
}

func (h *PortaudioHost) OutputDevices() ([]string, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		if d.MaxOutputChannels > 0 {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

func (h *PortaudioHost) DefaultOutputDevice() (string, error) {
	d, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return "", err
	}
	return d.Name, nil
}

func (h *PortaudioHost) Open(name string, format audio.Format) (Device, error) {
	info, err := h.lookup(name)
	if err != nil {
		return nil, err
	}

	d := &portaudioDevice{
		name:   name,
		format: format,
		queue:  make(chan audio.Block, h.config.QueueSize),
		done:   make(chan struct{}),
		logger: h.config.Logger.With().Str("device", name).Logger(),
	}
	d.cond = sync.NewCond(&d.mu)

	params := portaudio.HighLatencyParameters(nil, info)
	params.Output.Channels = h.config.Channels
	params.SampleRate = h.config.SampleRate
	params.FramesPerBuffer = h.config.FramesPerBuffer

	size := h.config.FramesPerBuffer * h.config.Channels
	var buffer interface{}
	switch format {
	case audio.FormatS16:
		d.out16 = make([]int16, size)
		buffer = d.out16
	case audio.FormatF32:
		d.out32 = make([]float32, size)
		buffer = d.out32
	default:
		return nil, fmt.Errorf("%w: %s", audio.ErrUnsupportedFormat, format)
	}

	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		return nil, &StreamError{Op: "open stream", Err: err}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, &StreamError{Op: "start stream", Err: err}
	}
	d.stream = stream

	d.wg.Add(1)
	go d.run()
	return d, nil
}

func (h *PortaudioHost) lookup(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, &StreamError{Op: "enumerate output devices", Err: err}
	}
	for _, d := range devices {
		if d.Name == name && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, &DeviceNotAvailableError{Name: name}
}

// portaudioDevice renders queued blocks on a blocking PortAudio stream.
// The stream keeps running while paused; PortAudio fills the gap with silence.
type portaudioDevice struct {
	name   string
	format audio.Format
	stream *portaudio.Stream
	out16  []int16
	out32  []float32
	fill   int

	queue   chan audio.Block
	pending atomic.Int32
	done    chan struct{}
	wg      sync.WaitGroup
	logger  zerolog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	playing   bool
	closed    bool
	closeOnce sync.Once
}

func (d *portaudioDevice) Name() string {
	return d.name
}

func (d *portaudioDevice) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrSinkClosed
	}
	d.playing = true
	d.cond.Broadcast()
	return nil
}

func (d *portaudioDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrSinkClosed
	}
	d.playing = false
	return nil
}

func (d *portaudioDevice) Append(b audio.Block) error {
	d.pending.Add(1)
	select {
	case d.queue <- b:
		return nil
	case <-d.done:
		d.pending.Add(-1)
		return ErrSinkClosed
	}
}

func (d *portaudioDevice) Pending() int {
	return int(d.pending.Load())
}

func (d *portaudioDevice) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.cond.Broadcast()
		d.mu.Unlock()

		close(d.done)
		d.wg.Wait()

		err = errors.Join(d.stream.Stop(), d.stream.Close())
	})
	return err
}

func (d *portaudioDevice) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case b := <-d.queue:
			if !d.waitPlaying() {
				return
			}
			d.render(b)
			d.pending.Add(-1)
		}
	}
}

func (d *portaudioDevice) waitPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for !d.playing && !d.closed {
		d.cond.Wait()
	}
	return !d.closed
}

func (d *portaudioDevice) render(b audio.Block) {
	switch d.format {
	case audio.FormatS16:
		for _, s := range b.S16 {
			d.out16[d.fill] = s
			d.advance(len(d.out16))
		}
	case audio.FormatF32:
		for _, s := range b.F32 {
			d.out32[d.fill] = s
			d.advance(len(d.out32))
		}
	}
}

func (d *portaudioDevice) advance(size int) {
	d.fill++
	if d.fill < size {
		return
	}
	d.fill = 0
	if err := d.stream.Write(); err != nil {
		// Underflow after a pause is expected; anything else is worth a line.
		if !errors.Is(err, portaudio.OutputUnderflowed) {
			d.logger.Warn().Err(err).Msg("error writing audio")
		}
	}
}
