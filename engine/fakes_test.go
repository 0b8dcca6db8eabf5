package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Eriyc/music-visualizer/audio"
	"github.com/Eriyc/music-visualizer/discovery"
	"github.com/Eriyc/music-visualizer/remote"
	"github.com/Eriyc/music-visualizer/sound"
)

type fakeSession struct {
	invalid  atomic.Bool
	token    string
	tokenErr error
}

func (s *fakeSession) IsInvalid() bool { return s.invalid.Load() }
func (s *fakeSession) Shutdown()       { s.invalid.Store(true) }

func (s *fakeSession) Token(ctx context.Context, scopes ...string) (string, error) {
	if s.tokenErr != nil {
		return "", s.tokenErr
	}
	return s.token, nil
}

type fakePlayer struct {
	mu          sync.Mutex
	events      chan remote.PlayerEvent
	invalidated chan struct{}
	session     remote.Session
	rebinds     int
	sinkCb      func(sound.Status)
	closeOnce   sync.Once
}

func newFakePlayer(s remote.Session) *fakePlayer {
	return &fakePlayer{
		events:      make(chan remote.PlayerEvent, 16),
		invalidated: make(chan struct{}),
		session:     s,
	}
}

func (p *fakePlayer) SetSession(s remote.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = s
	p.rebinds++
}

func (p *fakePlayer) Events() <-chan remote.PlayerEvent { return p.events }

func (p *fakePlayer) SetSinkEventCallback(fn func(sound.Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinkCb = fn
}

func (p *fakePlayer) IsInvalid() bool {
	select {
	case <-p.invalidated:
		return true
	default:
		return false
	}
}

func (p *fakePlayer) Invalidated() <-chan struct{} { return p.invalidated }

func (p *fakePlayer) invalidate() {
	p.closeOnce.Do(func() { close(p.invalidated) })
}

func (p *fakePlayer) Close() error {
	p.invalidate()
	return nil
}

type fakeMixer struct {
	volume atomic.Uint32
}

func (m *fakeMixer) Volume() uint16     { return uint16(m.volume.Load()) }
func (m *fakeMixer) SetVolume(v uint16) { m.volume.Store(uint32(v)) }

type fakeControl struct {
	creds     remote.Credentials
	done      chan struct{}
	shutdowns atomic.Int32
	// closeOnShutdown is false for a session whose teardown never finishes
	closeOnShutdown bool
	once            sync.Once
}

func (c *fakeControl) Shutdown() error {
	c.shutdowns.Add(1)
	if c.closeOnShutdown {
		c.end()
	}
	return nil
}

func (c *fakeControl) Done() <-chan struct{} { return c.done }

func (c *fakeControl) end() {
	c.once.Do(func() { close(c.done) })
}

type fakeEngine struct {
	mu         sync.Mutex
	sessions   []*fakeSession
	controls   []*fakeControl
	player     *fakePlayer
	mixer      *fakeMixer
	connectErr error
	tokenErr   error
	// autoEnd makes every control session finish right after it starts
	autoEnd bool
	// slowTeardown makes control sessions ignore Shutdown
	slowTeardown bool
	maxLive      int
	created      chan *fakeControl
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{created: make(chan *fakeControl, 64)}
}

func (e *fakeEngine) NewSession(cfg remote.SessionConfig) remote.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &fakeSession{token: "token-" + cfg.DeviceID[:4], tokenErr: e.tokenErr}
	e.sessions = append(e.sessions, s)
	return s
}

func (e *fakeEngine) NewMixer(cfg remote.MixerConfig) remote.Mixer {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mixer = &fakeMixer{}
	e.mixer.SetVolume(cfg.InitialVolume)
	return e.mixer
}

func (e *fakeEngine) NewPlayer(cfg remote.PlayerConfig, s remote.Session, m remote.Mixer, sink remote.SinkBuilder) remote.Player {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.player = newFakePlayer(s)
	return e.player
}

func (e *fakeEngine) NewControlSession(ctx context.Context, cfg remote.ConnectConfig, s remote.Session, creds remote.Credentials, p remote.Player, m remote.Mixer) (remote.ControlSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.connectErr != nil {
		return nil, e.connectErr
	}
	if s.IsInvalid() {
		return nil, errors.New("session is invalid")
	}

	live := 1
	for _, c := range e.controls {
		if c.shutdowns.Load() == 0 && !isClosed(c.done) {
			live++
		}
	}
	if live > e.maxLive {
		e.maxLive = live
	}

	c := &fakeControl{creds: creds, done: make(chan struct{}), closeOnShutdown: !e.slowTeardown}
	e.controls = append(e.controls, c)
	if e.autoEnd {
		c.end()
	}
	e.created <- c
	return c, nil
}

func (e *fakeEngine) controlCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.controls)
}

func (e *fakeEngine) sessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

type fakeDiscovery struct {
	ch        chan remote.Credentials
	shutdowns atomic.Int32
	once      sync.Once
}

func newFakeDiscovery() *fakeDiscovery {
	return &fakeDiscovery{ch: make(chan remote.Credentials, 8)}
}

func (d *fakeDiscovery) Credentials() <-chan remote.Credentials { return d.ch }

func (d *fakeDiscovery) Shutdown(ctx context.Context) error {
	d.shutdowns.Add(1)
	d.once.Do(func() { close(d.ch) })
	return nil
}

type nullHost struct{}

func (nullHost) OutputDevices() ([]string, error)     { return nil, nil }
func (nullHost) DefaultOutputDevice() (string, error) { return "", nil }
func (nullHost) Open(string, audio.Format) (sound.Device, error) {
	return nil, errors.New("no devices in tests")
}

type emitted struct {
	event   string
	payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingEmitter) Emit(event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{event: event, payload: payload})
	return nil
}

func (r *recordingEmitter) named(event string) []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emitted
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingEmitter) all() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emitted(nil), r.events...)
}

type harness struct {
	engine    *fakeEngine
	discovery *fakeDiscovery
	emitter   *recordingEmitter
	core      *Core
	states    chan State
}

func newHarness(t *testing.T, eng *fakeEngine, cfg Config, now func() time.Time) *harness {
	t.Helper()

	h := &harness{
		engine:    eng,
		discovery: newFakeDiscovery(),
		emitter:   &recordingEmitter{},
		states:    make(chan State, 256),
	}
	if cfg.Format == 0 {
		cfg.Format = audio.FormatS16
	}
	core, err := Initialize(context.Background(), NewIdentity("Living Room"), cfg, Deps{
		Engine: eng,
		Host:   nullHost{},
		Discover: func(discovery.Config) (discovery.Stream, error) {
			return h.discovery, nil
		},
		Emitter: h.emitter,
		Logger:  zerolog.Nop(),
		Now:     now,
		OnState: func(s State) { h.states <- s },
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	h.core = core
	return h
}

func (h *harness) run(ctx context.Context) <-chan error {
	errc := make(chan error, 1)
	eng := NewEngine(h.core, EngineConfig{ShutdownTimeout: time.Second, Logger: zerolog.Nop()})
	go func() { errc <- eng.Run(ctx) }()
	return errc
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for Run to return")
		return nil
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
