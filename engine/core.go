package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Eriyc/music-visualizer/audio"
	"github.com/Eriyc/music-visualizer/discovery"
	"github.com/Eriyc/music-visualizer/events"
	"github.com/Eriyc/music-visualizer/remote"
	"github.com/Eriyc/music-visualizer/sound"
)

var (
	// ErrReconnectLimit is returned when the control session dropped too
	// often to reconnect automatically.
	ErrReconnectLimit = errors.New("engine: control session shut down too often, not reconnecting")
	// ErrDiscoveryEnded is returned when the discovery stream stops while running.
	ErrDiscoveryEnded = errors.New("engine: discovery stopped unexpectedly")
	// ErrPlayerInvalid is returned when the player shuts down while running.
	ErrPlayerInvalid = errors.New("engine: player shut down unexpectedly")
	// ErrConnectFailed wraps a failure to build the control session.
	ErrConnectFailed = errors.New("engine: failed to connect")
	// ErrTokenUnavailable wraps a failure to fetch the access token after connecting.
	ErrTokenUnavailable = errors.New("engine: access token unavailable")
	// ErrNoCredentials is returned by AttemptConnection without credentials.
	ErrNoCredentials = errors.New("engine: no credentials")
)

// TokenScopes are requested for the access token handed to the presentation layer.
var TokenScopes = []string{"user-read-email", "user-read-private"}

// DiscoverFunc starts a discovery stream.
type DiscoverFunc func(cfg discovery.Config) (discovery.Stream, error)

// Config holds the session core settings.
type Config struct {
	// Device is the output device name; empty selects the default device
	Device          string
	Format          audio.Format
	CaptureCapacity int
	MaxPending      int
	ClientID        string
	DeviceType      string
	InitialVolume   uint16
	DiscoveryPort   int
	// RetryDelay postpones automatic reconnects; zero retries at once
	RetryDelay time.Duration
}

// Deps are the collaborators of the session core.
type Deps struct {
	Engine   remote.Engine
	Host     sound.Host
	Discover DiscoverFunc
	Emitter  events.Emitter
	Logger   zerolog.Logger
	// Now defaults to time.Now
	Now func() time.Time
	// OnState observes every state change
	OnState func(State)
}

type actor struct {
	id   string
	ctrl remote.ControlSession
}

// Core owns the connection state and everything bound to it. Apart from
// State and the accessors, its methods are called from the orchestrator
// loop only.
type Core struct {
	identity   Identity
	config     Config
	engine     remote.Engine
	emitter    events.Emitter
	logger     zerolog.Logger
	now        func() time.Time
	onState    func(State)
	sessionCfg remote.SessionConfig
	connectCfg remote.ConnectConfig

	capture    *audio.Capture
	sinks      *sound.Adapter
	session    remote.Session
	player     remote.Player
	mixer      remote.Mixer
	discovery  discovery.Stream
	listener   *events.Listener
	stopPump   context.CancelFunc
	pumpDone   chan struct{}
	actor      *actor
	creds      *remote.Credentials
	ledger     *Ledger
	retryTimer *time.Timer

	// stateMu guards state and creds for readers outside the loop
	stateMu sync.RWMutex
	state   State
}

// Initialize builds the session core: discovery (best effort), capture
// queue, sink adapter, mixer, session and player, and starts forwarding
// player events and captured audio to the emitter.
func Initialize(ctx context.Context, identity Identity, config Config, deps Deps) (*Core, error) {
	if deps.Engine == nil {
		return nil, errors.New("engine: no protocol engine")
	}
	if deps.Host == nil {
		return nil, errors.New("engine: no audio host")
	}
	if deps.Emitter == nil {
		return nil, errors.New("engine: no emitter")
	}
	if !config.Format.Valid() {
		return nil, fmt.Errorf("%w: %s", audio.ErrUnsupportedFormat, config.Format)
	}
	if config.DeviceType == "" {
		config.DeviceType = "speaker"
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	logger := deps.Logger.With().Str("device_id", identity.DeviceID).Logger()
	c := &Core{
		identity: identity,
		config:   config,
		engine:   deps.Engine,
		emitter:  deps.Emitter,
		logger:   logger,
		now:      deps.Now,
		onState:  deps.OnState,
		ledger:   NewLedger(ReconnectWindow, MaxReconnects),
		sessionCfg: remote.SessionConfig{
			DeviceID: identity.DeviceID,
			ClientID: config.ClientID,
		},
		connectCfg: remote.ConnectConfig{
			Name:          identity.Name,
			DeviceType:    config.DeviceType,
			InitialVolume: config.InitialVolume,
			HasVolumeCtrl: true,
		},
	}

	if deps.Discover != nil {
		stream, err := deps.Discover(discovery.Config{
			DeviceID:   identity.DeviceID,
			Name:       identity.Name,
			DeviceType: config.DeviceType,
			ClientID:   config.ClientID,
			Port:       config.DiscoveryPort,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("failed to start discovery, continuing without it")
			c.info(err.Error())
		} else {
			c.discovery = stream
		}
	}

	c.capture = audio.NewCapture(config.CaptureCapacity, logger)
	pumpCtx, stopPump := context.WithCancel(context.Background())
	c.stopPump = stopPump
	c.pumpDone = make(chan struct{})
	go func() {
		defer close(c.pumpDone)
		c.capture.Pump(pumpCtx, func(chunk audio.Chunk) error {
			return c.emitter.Emit(events.EventAudioChunk, chunk)
		})
	}()

	c.sinks = sound.NewAdapter(deps.Host, c.capture, sound.AdapterConfig{
		MaxPending: config.MaxPending,
		Logger:     logger,
	})

	c.mixer = c.engine.NewMixer(remote.MixerConfig{InitialVolume: config.InitialVolume})
	c.session = c.engine.NewSession(c.sessionCfg)
	c.player = c.engine.NewPlayer(
		remote.PlayerConfig{Format: config.Format, Bitrate: 320, Gapless: true},
		c.session,
		c.mixer,
		func() (sound.Sink, error) {
			return c.sinks.Open(config.Device, config.Format)
		},
	)
	c.player.SetSinkEventCallback(events.SinkCallback(c.emitter, logger))
	c.listener = events.Listen(ctx, c.player.Events(), c.emitter, logger)

	c.info("speaker is started")
	logger.Info().Str("name", identity.Name).Msg("session core initialized")
	return c, nil
}

// Identity returns the advertised identity.
func (c *Core) Identity() Identity {
	return c.identity
}

// Capture returns the capture queue every sink is tapped into.
func (c *Core) Capture() *audio.Capture {
	return c.capture
}

// State returns the current connection state. Safe for concurrent use.
func (c *Core) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Credentials returns a copy of the stored credentials.
func (c *Core) Credentials() (remote.Credentials, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.creds == nil {
		return remote.Credentials{}, false
	}
	return *c.creds, true
}

// ReadyToConnect reports whether a connection attempt is due.
func (c *Core) ReadyToConnect() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state == StateConnecting && c.creds != nil
}

// SessionDone returns the completion channel of the current control
// session, or nil when there is nothing to wait for.
func (c *Core) SessionDone() <-chan struct{} {
	if c.actor == nil || c.State() == StateConnecting {
		return nil
	}
	return c.actor.ctrl.Done()
}

// DiscoveryCredentials returns the discovery stream, or nil without discovery.
func (c *Core) DiscoveryCredentials() <-chan remote.Credentials {
	if c.discovery == nil {
		return nil
	}
	return c.discovery.Credentials()
}

// RetryDue fires when a delayed reconnect becomes due.
func (c *Core) RetryDue() <-chan time.Time {
	if c.retryTimer == nil {
		return nil
	}
	return c.retryTimer.C
}

// PlayerInvalidated is closed once the player can no longer play.
func (c *Core) PlayerInvalidated() <-chan struct{} {
	return c.player.Invalidated()
}

// OnDiscoveryCredentials replaces the credentials and prepares a fresh
// connection. The current control session is asked to stop; its teardown
// runs detached so the hand-off never waits for it.
func (c *Core) OnDiscoveryCredentials(creds remote.Credentials) {
	c.setCreds(&creds)
	c.ledger.Reset()
	c.stopRetry()
	c.retireActor()
	if !c.session.IsInvalid() {
		c.session.Shutdown()
	}
	c.setState(StateConnecting)
	c.logger.Info().Str("user", creds.Username).Msg("received credentials from discovery")
}

// AttemptConnection builds a control session with the stored credentials
// and returns a fresh access token. When the control session cannot be
// built the credentials are dropped and the core goes idle until the next
// hand-off.
func (c *Core) AttemptConnection(ctx context.Context) (string, error) {
	if c.creds == nil {
		return "", ErrNoCredentials
	}

	if c.session.IsInvalid() {
		c.session = c.engine.NewSession(c.sessionCfg)
		c.player.SetSession(c.session)
	}

	ctrl, err := c.engine.NewControlSession(ctx, c.connectCfg, c.session, *c.creds, c.player, c.mixer)
	if err != nil {
		c.setCreds(nil)
		c.setState(StateIdle)
		return "", fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	c.actor = &actor{id: uuid.NewString(), ctrl: ctrl}
	c.logger.Info().Str("session", c.actor.id).Msg("control session started")

	token, err := c.session.Token(ctx, TokenScopes...)
	c.setState(StateConnected)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	return token, nil
}

// OnControlSessionEnded decides whether to reconnect after the control
// session's task ended. It returns ErrReconnectLimit when reconnects are
// exhausted, which leaves the core terminated.
func (c *Core) OnControlSessionEnded() error {
	if c.actor != nil {
		c.logger.Info().Str("session", c.actor.id).Msg("control session ended")
	}
	c.actor = nil

	if c.creds == nil {
		c.setState(StateIdle)
		return nil
	}

	if !c.ledger.Allow(c.now()) {
		c.setCreds(nil)
		c.setState(StateTerminated)
		return ErrReconnectLimit
	}

	if !c.session.IsInvalid() {
		c.session.Shutdown()
	}

	if c.config.RetryDelay > 0 {
		c.retryTimer = time.NewTimer(c.config.RetryDelay)
		c.setState(StateDisconnectedPendingRetry)
		return nil
	}
	c.setState(StateConnecting)
	return nil
}

// OnRetryDue moves a pending retry to Connecting.
func (c *Core) OnRetryDue() {
	c.retryTimer = nil
	if c.State() == StateDisconnectedPendingRetry && c.creds != nil {
		c.setState(StateConnecting)
	}
}

// OnDiscoveryEnded forgets a discovery stream that closed by itself.
func (c *Core) OnDiscoveryEnded() {
	c.discovery = nil
}

// Shutdown stops forwarding events and releases the control session and
// discovery, each bounded by ctx.
func (c *Core) Shutdown(ctx context.Context) error {
	c.listener.Stop()
	c.stopRetry()

	g, gctx := errgroup.WithContext(ctx)
	if a := c.actor; a != nil {
		c.actor = nil
		g.Go(func() error {
			if err := a.ctrl.Shutdown(); err != nil {
				return fmt.Errorf("shutdown control session: %w", err)
			}
			select {
			case <-a.ctrl.Done():
				return nil
			case <-gctx.Done():
				return fmt.Errorf("control session %s: %w", a.id, gctx.Err())
			}
		})
	}
	if d := c.discovery; d != nil {
		c.discovery = nil
		g.Go(func() error {
			if err := d.Shutdown(gctx); err != nil {
				return fmt.Errorf("shutdown discovery: %w", err)
			}
			return nil
		})
	}
	err := g.Wait()

	if perr := c.player.Close(); perr != nil {
		err = errors.Join(err, fmt.Errorf("close player: %w", perr))
	}
	if !c.session.IsInvalid() {
		c.session.Shutdown()
	}
	c.stopPump()
	c.capture.Close()
	<-c.pumpDone

	c.setState(StateTerminated)
	return err
}

func (c *Core) retireActor() {
	old := c.actor
	c.actor = nil
	if old == nil {
		return
	}
	if err := old.ctrl.Shutdown(); err != nil {
		c.logger.Warn().Err(err).Str("session", old.id).Msg("failed to request control session shutdown")
	}
	// Nobody waits on this; the superseded session finishes at its own pace.
	go func() {
		<-old.ctrl.Done()
		c.logger.Debug().Str("session", old.id).Msg("superseded control session finished")
	}()
}

func (c *Core) stopRetry() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// setCreds replaces the credentials. Only the loop writes them, so the
// loop itself may read c.creds without the lock.
func (c *Core) setCreds(creds *remote.Credentials) {
	c.stateMu.Lock()
	c.creds = creds
	c.stateMu.Unlock()
}

func (c *Core) setState(s State) {
	c.stateMu.Lock()
	prev := c.state
	c.state = s
	c.stateMu.Unlock()

	if prev == s {
		return
	}
	c.logger.Debug().Stringer("from", prev).Stringer("state", s).Msg("connection state changed")
	if c.onState != nil {
		c.onState(s)
	}
}

func (c *Core) info(msg string) {
	if err := c.emitter.Emit(events.EventInfo, msg); err != nil {
		c.logger.Warn().Err(err).Msg("failed to emit info")
	}
}
