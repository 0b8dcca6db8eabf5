package sound

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Eriyc/music-visualizer/audio"
)

const (
	// DefaultMaxPending bounds queued-but-unrendered blocks per sink.
	DefaultMaxPending = 26
	// DefaultPollInterval is how long a writer sleeps while the device is backed up.
	DefaultPollInterval = 10 * time.Millisecond
)

// AdapterConfig holds the playback backpressure settings.
type AdapterConfig struct {
	MaxPending   int
	PollInterval time.Duration
	Logger       zerolog.Logger
}

// Adapter resolves output devices and opens capture-tapped sinks on them.
type Adapter struct {
	host    Host
	capture *audio.Capture
	config  AdapterConfig
	sleep   func(time.Duration)
}

// NewAdapter creates an adapter that taps every sink it opens into capture.
func NewAdapter(host Host, capture *audio.Capture, config AdapterConfig) *Adapter {
	if config.MaxPending <= 0 {
		config.MaxPending = DefaultMaxPending
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	return &Adapter{
		host:    host,
		capture: capture,
		config:  config,
		sleep:   time.Sleep,
	}
}

// Resolve picks the output device: the named one when name is set, the
// host default otherwise.
func (a *Adapter) Resolve(name string) (string, error) {
	if name == "" {
		def, err := a.host.DefaultOutputDevice()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoDeviceAvailable, err)
		}
		if def == "" {
			return "", ErrNoDeviceAvailable
		}
		return def, nil
	}

	devices, err := a.host.OutputDevices()
	if err != nil {
		return "", &StreamError{Op: "enumerate output devices", Err: err}
	}
	for _, d := range devices {
		if d == name {
			return d, nil
		}
	}
	return "", &DeviceNotAvailableError{Name: name}
}

// Open builds a capture-tapped sink for blocks of format on the resolved
// device. Unsupported formats fail here, before any device is touched.
func (a *Adapter) Open(name string, format audio.Format) (*CaptureSink, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("%w: %s", audio.ErrUnsupportedFormat, format)
	}
	tee, err := a.capture.Tee(format)
	if err != nil {
		return nil, err
	}

	device, err := a.Resolve(name)
	if err != nil {
		return nil, err
	}

	dev, err := a.host.Open(device, format)
	if err != nil {
		var streamErr *StreamError
		if errors.As(err, &streamErr) {
			return nil, err
		}
		return nil, &StreamError{Op: "open " + device, Err: err}
	}

	a.config.Logger.Info().
		Str("device", device).
		Stringer("format", format).
		Msg("opened output device")

	return &CaptureSink{
		device:     dev,
		format:     format,
		tee:        tee,
		maxPending: a.config.MaxPending,
		poll:       a.config.PollInterval,
		sleep:      a.sleep,
	}, nil
}
