// Package remote describes the protocol engine the daemon drives: sessions
// with the streaming service, the player that renders audio into a sink,
// the mixer, and the remote-control session a controller talks to.
package remote

import (
	"context"
	"errors"

	"github.com/Eriyc/music-visualizer/audio"
	"github.com/Eriyc/music-visualizer/sound"
)

// ErrSessionInvalid is returned by operations on a shut down session.
var ErrSessionInvalid = errors.New("remote: session is invalid")

// AuthType identifies the kind of authorization data in Credentials.
type AuthType int32

const (
	AuthUserPass    AuthType = 0
	AuthStored      AuthType = 1
	AuthSpotifyTkn  AuthType = 2
	AuthFacebookTkn AuthType = 3
	AuthAccessToken AuthType = 4
)

// Credentials is the authorization material a controller hands off. It is
// always replaced as a whole.
type Credentials struct {
	Username string
	AuthType AuthType
	AuthData []byte
}

// SessionConfig configures a session with the streaming service.
type SessionConfig struct {
	DeviceID string
	ClientID string
}

// ConnectConfig describes the device to controllers.
type ConnectConfig struct {
	Name          string
	DeviceType    string
	InitialVolume uint16
	HasVolumeCtrl bool
}

// PlayerConfig configures the player.
type PlayerConfig struct {
	Format  audio.Format
	Bitrate int
	Gapless bool
}

// MixerConfig configures the mixer.
type MixerConfig struct {
	InitialVolume uint16
}

// SinkBuilder opens the sink a player renders into. The player calls it
// lazily when playback first needs a device.
type SinkBuilder func() (sound.Sink, error)

// Session is a connection to the streaming service. Once invalid it stays
// invalid; a new session must be created instead.
type Session interface {
	IsInvalid() bool
	Shutdown()
	// Token fetches an access token for the given scopes.
	Token(ctx context.Context, scopes ...string) (string, error)
}

// Player renders tracks into a sink and reports playback events.
type Player interface {
	// SetSession rebinds the player to a new session
	SetSession(s Session)

	// Events is closed when the player shuts down
	Events() <-chan PlayerEvent

	// SetSinkEventCallback registers the sink status observer
	SetSinkEventCallback(fn func(sound.Status))

	IsInvalid() bool

	// Invalidated is closed once the player can no longer play
	Invalidated() <-chan struct{}

	Close() error
}

// Mixer controls output volume.
type Mixer interface {
	Volume() uint16
	SetVolume(v uint16)
}

// ControlSession is a live remote-control participant together with the
// task driving it.
type ControlSession interface {
	// Shutdown asks the session to stop; it does not wait
	Shutdown() error

	// Done is closed when the driving task has finished
	Done() <-chan struct{}
}

// Engine builds the protocol engine's objects.
type Engine interface {
	NewSession(cfg SessionConfig) Session
	NewMixer(cfg MixerConfig) Mixer
	NewPlayer(cfg PlayerConfig, s Session, m Mixer, sink SinkBuilder) Player
	NewControlSession(ctx context.Context, cfg ConnectConfig, s Session, creds Credentials, p Player, m Mixer) (ControlSession, error)
}
