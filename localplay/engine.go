// Package localplay is a remote engine that plays MP3 files from a local
// directory. It lets the daemon run end to end without a streaming account:
// credentials handed over by a controller start a control session that
// loops over the directory's files.
package localplay

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Eriyc/music-visualizer/remote"
)

// Name is the engine's registry name.
const Name = "local"

func init() {
	remote.Register(Name, New)
}

type engine struct {
	mediaDir string
	logger   zerolog.Logger
}

// New builds the engine. The media directory must exist.
func New(opts remote.Options) (remote.Engine, error) {
	dir := opts.MediaDir
	if dir == "" {
		dir = "media"
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("localplay: media dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("localplay: media dir %s is not a directory", dir)
	}
	return &engine{
		mediaDir: dir,
		logger:   opts.Logger.With().Str("component", "localplay").Logger(),
	}, nil
}

func (e *engine) NewSession(cfg remote.SessionConfig) remote.Session {
	return &session{
		id:       uuid.NewString(),
		deviceID: cfg.DeviceID,
		done:     make(chan struct{}),
	}
}

func (e *engine) NewMixer(cfg remote.MixerConfig) remote.Mixer {
	m := &mixer{}
	m.SetVolume(cfg.InitialVolume)
	return m
}

func (e *engine) NewPlayer(cfg remote.PlayerConfig, s remote.Session, m remote.Mixer, sink remote.SinkBuilder) remote.Player {
	return newPlayer(cfg, s, m, sink, e.logger)
}

func (e *engine) NewControlSession(ctx context.Context, cfg remote.ConnectConfig, s remote.Session, creds remote.Credentials, p remote.Player, m remote.Mixer) (remote.ControlSession, error) {
	if s.IsInvalid() {
		return nil, remote.ErrSessionInvalid
	}
	sess, ok := s.(*session)
	if !ok {
		return nil, fmt.Errorf("localplay: foreign session %T", s)
	}
	pl, ok := p.(*player)
	if !ok {
		return nil, fmt.Errorf("localplay: foreign player %T", p)
	}
	files, err := playlist(e.mediaDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("localplay: no .mp3 files in %s", e.mediaDir)
	}
	sess.setUser(creds.Username)

	logger := e.logger.With().
		Str("device", cfg.Name).
		Str("user", creds.Username).
		Str("session", sess.id).
		Logger()
	return startControl(ctx, sess, pl, files, logger), nil
}

// session is a local stand-in for a service connection.
type session struct {
	id       string
	deviceID string

	mu   sync.Mutex
	user string

	once sync.Once
	done chan struct{}
}

func (s *session) setUser(name string) {
	s.mu.Lock()
	s.user = name
	s.mu.Unlock()
}

func (s *session) username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *session) IsInvalid() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *session) Shutdown() {
	s.once.Do(func() { close(s.done) })
}

// Token returns an opaque token bound to the session. Scopes are ignored.
func (s *session) Token(ctx context.Context, scopes ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.IsInvalid() {
		return "", remote.ErrSessionInvalid
	}
	return "local-" + s.id, nil
}

// mixer is a software volume control.
type mixer struct {
	volume atomic.Uint32
}

func (m *mixer) Volume() uint16 {
	return uint16(m.volume.Load())
}

func (m *mixer) SetVolume(v uint16) {
	m.volume.Store(uint32(v))
}
