package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Eriyc/music-visualizer/events"
	"github.com/Eriyc/music-visualizer/remote"
)

// EngineConfig holds the orchestrator settings.
type EngineConfig struct {
	// ShutdownTimeout bounds the graceful teardown when Run returns
	ShutdownTimeout time.Duration
	// OnConnected runs in the background after every successful connection
	OnConnected func(ctx context.Context, token string)
	Logger      zerolog.Logger
}

// Engine is the single loop driving the session core. Every state change
// of the core happens on the goroutine running Run.
type Engine struct {
	core    *Core
	config  EngineConfig
	emitter events.Emitter
	logger  zerolog.Logger
}

// NewEngine creates the orchestrator for core.
func NewEngine(core *Core, config EngineConfig) *Engine {
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	return &Engine{
		core:    core,
		config:  config,
		emitter: core.emitter,
		logger:  config.Logger,
	}
}

type stepKind int

const (
	stepShutdown stepKind = iota
	stepCredentials
	stepDiscoveryEnded
	stepAttempt
	stepSessionEnded
	stepRetryDue
	stepPlayerInvalid
)

type step struct {
	kind  stepKind
	creds remote.Credentials
}

// Run drives the core until ctx is cancelled or a terminal condition is
// reached, then shuts the core down. It returns nil after cancellation,
// ErrReconnectLimit, ErrDiscoveryEnded or ErrPlayerInvalid otherwise.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().Msg("engine started")

	var runErr error
	for {
		s := e.next(ctx)
		done, err := e.apply(ctx, s)
		if done {
			runErr = err
			break
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.config.ShutdownTimeout)
	defer cancel()
	if err := e.core.Shutdown(shutdownCtx); err != nil {
		e.logger.Warn().Err(err).Msg("session core did not shut down cleanly")
	}

	e.logger.Info().Err(runErr).Msg("engine stopped")
	return runErr
}

// next picks the next step. Ready sources are taken in a fixed priority
// order; when none is ready it blocks on all enabled sources at once.
func (e *Engine) next(ctx context.Context) step {
	select {
	case <-ctx.Done():
		return step{kind: stepShutdown}
	default:
	}

	creds := e.core.DiscoveryCredentials()
	if creds != nil {
		select {
		case c, ok := <-creds:
			return credentialStep(c, ok)
		default:
		}
	}

	if e.core.ReadyToConnect() {
		return step{kind: stepAttempt}
	}

	sessionDone := e.core.SessionDone()
	retryDue := e.core.RetryDue()
	invalid := e.core.PlayerInvalidated()

	select {
	case <-sessionDone:
		return step{kind: stepSessionEnded}
	default:
	}
	select {
	case <-retryDue:
		return step{kind: stepRetryDue}
	default:
	}
	select {
	case <-invalid:
		return step{kind: stepPlayerInvalid}
	default:
	}

	select {
	case <-ctx.Done():
		return step{kind: stepShutdown}
	case c, ok := <-creds:
		return credentialStep(c, ok)
	case <-sessionDone:
		return step{kind: stepSessionEnded}
	case <-retryDue:
		return step{kind: stepRetryDue}
	case <-invalid:
		return step{kind: stepPlayerInvalid}
	}
}

func credentialStep(c remote.Credentials, ok bool) step {
	if !ok {
		return step{kind: stepDiscoveryEnded}
	}
	return step{kind: stepCredentials, creds: c}
}

func (e *Engine) apply(ctx context.Context, s step) (bool, error) {
	switch s.kind {
	case stepShutdown:
		e.logger.Info().Msg("shutdown requested")
		return true, nil

	case stepCredentials:
		e.core.OnDiscoveryCredentials(s.creds)
		return false, nil

	case stepDiscoveryEnded:
		e.core.OnDiscoveryEnded()
		e.logger.Error().Msg("discovery stopped unexpectedly")
		return true, ErrDiscoveryEnded

	case stepAttempt:
		e.connect(ctx)
		return false, nil

	case stepSessionEnded:
		if err := e.core.OnControlSessionEnded(); err != nil {
			e.logger.Error().Err(err).Msg("not reconnecting automatically")
			return true, err
		}
		e.logger.Info().Stringer("state", e.core.State()).Msg("control session ended, reconnecting")
		return false, nil

	case stepRetryDue:
		e.core.OnRetryDue()
		return false, nil

	case stepPlayerInvalid:
		e.logger.Error().Msg("player shut down unexpectedly")
		return true, ErrPlayerInvalid
	}
	return false, nil
}

func (e *Engine) connect(ctx context.Context) {
	token, err := e.core.AttemptConnection(ctx)
	switch {
	case errors.Is(err, ErrTokenUnavailable):
		e.logger.Warn().Err(err).Msg("connected without an access token")
		return
	case err != nil:
		e.logger.Warn().Err(err).Msg("failed to connect")
		return
	}

	if err := e.emitter.Emit(events.EventNewConnection, token); err != nil {
		e.logger.Error().Err(err).Msg("failed to emit new connection")
	}
	if e.config.OnConnected != nil {
		go e.config.OnConnected(ctx, token)
	}
}
