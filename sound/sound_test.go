package sound

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Eriyc/music-visualizer/audio"
)

type fakeHost struct {
	devices    []string
	def        string
	listErr    error
	defErr     error
	openErr    error
	openCalls  int
	lastOpened string
	device     *fakeDevice
}

func (h *fakeHost) OutputDevices() ([]string, error) {
	return h.devices, h.listErr
}

func (h *fakeHost) DefaultOutputDevice() (string, error) {
	return h.def, h.defErr
}

func (h *fakeHost) Open(name string, format audio.Format) (Device, error) {
	h.openCalls++
	h.lastOpened = name
	if h.openErr != nil {
		return nil, h.openErr
	}
	if h.device == nil {
		h.device = &fakeDevice{name: name}
	}
	return h.device, nil
}

type fakeDevice struct {
	mu       sync.Mutex
	name     string
	playing  bool
	closed   int
	appended []audio.Block
	pending  int
}

func (d *fakeDevice) Name() string { return d.name }

func (d *fakeDevice) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = true
	return nil
}

func (d *fakeDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
	return nil
}

func (d *fakeDevice) Append(b audio.Block) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.appended = append(d.appended, b)
	d.pending++
	return nil
}

func (d *fakeDevice) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *fakeDevice) drain(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending -= n
	if d.pending < 0 {
		d.pending = 0
	}
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

func newTestAdapter(host Host) (*Adapter, *audio.Capture) {
	capture := audio.NewCapture(8, zerolog.Nop())
	return NewAdapter(host, capture, AdapterConfig{Logger: zerolog.Nop()}), capture
}

func TestResolveDefaultDevice(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdapter(&fakeHost{def: "Built-in Output"})
	got, err := a.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "Built-in Output" {
		t.Fatalf("expected default device, got %q", got)
	}
}

func TestResolveNoDefaultDevice(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdapter(&fakeHost{defErr: errors.New("paNoDevice")})
	if _, err := a.Resolve(""); !errors.Is(err, ErrNoDeviceAvailable) {
		t.Fatalf("expected ErrNoDeviceAvailable, got %v", err)
	}

	a, _ = newTestAdapter(&fakeHost{})
	if _, err := a.Resolve(""); !errors.Is(err, ErrNoDeviceAvailable) {
		t.Fatalf("expected ErrNoDeviceAvailable for empty default, got %v", err)
	}
}

func TestResolveNamedDevice(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdapter(&fakeHost{devices: []string{"HDMI", "USB DAC"}, def: "HDMI"})
	got, err := a.Resolve("USB DAC")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "USB DAC" {
		t.Fatalf("expected USB DAC, got %q", got)
	}

	_, err = a.Resolve("Headphones")
	var notAvailable *DeviceNotAvailableError
	if !errors.As(err, &notAvailable) {
		t.Fatalf("expected DeviceNotAvailableError, got %v", err)
	}
	if notAvailable.Name != "Headphones" {
		t.Fatalf("expected name Headphones, got %q", notAvailable.Name)
	}
}

func TestResolveEnumerationFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("host api gone")
	a, _ := newTestAdapter(&fakeHost{listErr: cause})
	_, err := a.Resolve("USB DAC")
	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("expected StreamError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be wrapped, got %v", err)
	}
}

func TestOpenRejectsUnsupportedFormatBeforeTouchingDevice(t *testing.T) {
	t.Parallel()

	host := &fakeHost{def: "HDMI"}
	a, _ := newTestAdapter(host)
	if _, err := a.Open("", audio.Format(9)); !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if host.openCalls != 0 {
		t.Fatalf("expected no device open, got %d", host.openCalls)
	}
}

func TestOpenWrapsDeviceFailure(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdapter(&fakeHost{def: "HDMI", openErr: errors.New("busy")})
	_, err := a.Open("", audio.FormatS16)
	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("expected StreamError, got %v", err)
	}
}

func TestCaptureSinkTeesEveryWrite(t *testing.T) {
	t.Parallel()

	host := &fakeHost{def: "HDMI"}
	a, capture := newTestAdapter(host)
	sink, err := a.Open("", audio.FormatS16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sink.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !host.device.playing {
		t.Fatal("expected device to be playing after Start")
	}

	if err := sink.Write(audio.S16Block([]int16{32767, 0})); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case chunk := <-capture.Chunks():
		if len(chunk) != 2 || chunk[0] != 1 || chunk[1] != 0 {
			t.Fatalf("unexpected chunk %v", chunk)
		}
	default:
		t.Fatal("expected a captured chunk")
	}
	if len(host.device.appended) != 1 {
		t.Fatalf("expected 1 appended block, got %d", len(host.device.appended))
	}
}

func TestCaptureSinkRejectsMismatchedBlock(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdapter(&fakeHost{def: "HDMI"})
	sink, err := a.Open("", audio.FormatF32)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sink.Write(audio.S16Block([]int16{1})); !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestCaptureSinkBackpressure(t *testing.T) {
	t.Parallel()

	host := &fakeHost{def: "HDMI"}
	a, _ := newTestAdapter(host)
	sleeps := 0
	a.sleep = func(d time.Duration) {
		if d != DefaultPollInterval {
			t.Errorf("expected %s poll, got %s", DefaultPollInterval, d)
		}
		sleeps++
		host.device.drain(1)
	}
	sink, err := a.Open("", audio.FormatS16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := 0; i < DefaultMaxPending; i++ {
		if err := sink.Write(audio.S16Block([]int16{1})); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	if sleeps != 0 {
		t.Fatalf("expected no sleeps up to the bound, got %d", sleeps)
	}

	if err := sink.Write(audio.S16Block([]int16{1})); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if sleeps != 1 {
		t.Fatalf("expected 1 sleep past the bound, got %d", sleeps)
	}
	if p := host.device.Pending(); p != DefaultMaxPending {
		t.Fatalf("expected %d pending, got %d", DefaultMaxPending, p)
	}
}

func TestCaptureSinkClose(t *testing.T) {
	t.Parallel()

	host := &fakeHost{def: "HDMI"}
	a, _ := newTestAdapter(host)
	sink, err := a.Open("", audio.FormatS16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if host.device.closed != 1 {
		t.Fatalf("expected device closed once, got %d", host.device.closed)
	}
	if err := sink.Write(audio.S16Block([]int16{1})); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("expected ErrSinkClosed, got %v", err)
	}
}

func TestStatusString(t *testing.T) {
	t.Parallel()

	tests := map[Status]string{
		StatusRunning:           "running",
		StatusTemporarilyClosed: "temporarily_closed",
		StatusClosed:            "closed",
	}
	for status, want := range tests {
		if got := status.String(); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}
