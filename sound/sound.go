package sound

import (
	"errors"
	"fmt"

	"github.com/Eriyc/music-visualizer/audio"
)

// ErrNoDeviceAvailable is returned when no output device was requested and
// the host has no default output device.
var ErrNoDeviceAvailable = errors.New("sound: no output device available")

// ErrSinkClosed is returned when writing to a closed sink.
var ErrSinkClosed = errors.New("sound: sink closed")

// DeviceNotAvailableError reports a named output device that is not present.
type DeviceNotAvailableError struct {
	Name string
}

func (e *DeviceNotAvailableError) Error() string {
	return fmt.Sprintf("sound: output device %q not available", e.Name)
}

// StreamError wraps a failure of the platform audio API.
type StreamError struct {
	Op  string
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("sound: %s: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Sink is an audio output the playback pipeline drives.
type Sink interface {
	// Start resumes rendering
	Start() error

	// Stop pauses rendering, keeping the device open
	Stop() error

	// Write queues a block of samples for rendering
	Write(b audio.Block) error

	// Close releases the device
	Close() error
}

// Status is the lifecycle state of a sink as reported by the player.
type Status int

const (
	StatusRunning Status = iota
	StatusTemporarilyClosed
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusTemporarilyClosed:
		return "temporarily_closed"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Host enumerates and opens output devices of a platform audio API.
type Host interface {
	// OutputDevices lists the names of devices able to render audio
	OutputDevices() ([]string, error)

	// DefaultOutputDevice returns the name of the default output device
	DefaultOutputDevice() (string, error)

	// Open opens the named device for blocks of the given format
	Open(name string, format audio.Format) (Device, error)
}

// Device is an opened output stream.
type Device interface {
	Name() string
	Play() error
	Pause() error
	// Append queues a block; it must not block for longer than one buffer.
	Append(b audio.Block) error
	// Pending returns how many appended blocks have not been rendered yet.
	Pending() int
	Close() error
}
