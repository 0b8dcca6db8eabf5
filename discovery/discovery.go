// Package discovery announces the speaker on the local network and turns
// controller hand-offs into credentials.
package discovery

import (
	"context"

	"github.com/Eriyc/music-visualizer/remote"
)

// Stream produces credentials handed off by controllers.
type Stream interface {
	// Credentials is closed once the stream has shut down
	Credentials() <-chan remote.Credentials

	// Shutdown stops advertising and closes the credential channel
	Shutdown(ctx context.Context) error
}

// Config describes the advertised device.
type Config struct {
	DeviceID   string
	Name       string
	DeviceType string
	ClientID   string
	// Port is the HTTP port of the hand-off endpoint; 0 picks a free one
	Port int
}
