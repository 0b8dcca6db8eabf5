package localplay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Eriyc/music-visualizer/remote"
)

// playlist lists the .mp3 files directly inside dir in name order.
func playlist(dir string) ([]track, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("localplay: read media dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".mp3") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	tracks := make([]track, 0, len(names))
	for _, n := range names {
		tracks = append(tracks, newTrack(filepath.Join(dir, n)))
	}
	return tracks, nil
}

// control drives the player through the playlist until it is shut down,
// its session ends, or nothing in the playlist can be played.
type control struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startControl(parent context.Context, s *session, p *player, tracks []track, logger zerolog.Logger) *control {
	ctx, cancel := context.WithCancel(parent)
	c := &control{cancel: cancel, done: make(chan struct{})}

	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	p.SetSession(s)
	go func() {
		defer close(c.done)
		defer cancel()

		p.emit(remote.SessionConnected{ConnectionID: s.id, UserName: s.username()})
		c.run(ctx, p, tracks, logger)

		// A replaced session must not announce a disconnect over its successor.
		if p.boundTo(s) {
			p.emit(remote.SessionDisconnected{ConnectionID: s.id, UserName: s.username()})
		}
	}()
	return c
}

func (c *control) run(ctx context.Context, p *player, tracks []track, logger zerolog.Logger) {
	for {
		played := 0
		for _, t := range tracks {
			if ctx.Err() != nil {
				return
			}
			err := p.play(ctx, t)
			switch {
			case err == nil:
				played++
			case p.IsInvalid() || errors.Is(err, errPlayerClosed):
				logger.Error().Err(err).Msg("player unusable, ending control session")
				return
			default:
				logger.Warn().Err(err).Str("track", t.path).Msg("skipping track")
			}
		}
		if played == 0 {
			logger.Error().Msg("no playable tracks, ending control session")
			return
		}
	}
}

// Shutdown asks the session to stop without waiting for it.
func (c *control) Shutdown() error {
	c.cancel()
	return nil
}

func (c *control) Done() <-chan struct{} {
	return c.done
}
