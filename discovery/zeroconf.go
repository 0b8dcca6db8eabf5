package discovery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"

	"github.com/Eriyc/music-visualizer/remote"
)

// ServiceType is the DNS-SD service controllers browse for.
const ServiceType = "_spotify-connect._tcp"

// Zeroconf answers controller hand-offs over HTTP and advertises the
// endpoint with mDNS.
type Zeroconf struct {
	config Config
	keys   *keyPair
	logger zerolog.Logger

	listener net.Listener
	http     *http.Server
	mdns     *mdns.Server

	// sendMu is held shared by handlers delivering credentials and
	// exclusively by Shutdown while it closes creds.
	sendMu    sync.RWMutex
	creds     chan remote.Credentials
	done      chan struct{}
	closeOnce sync.Once
	serveDone chan struct{}

	mu         sync.Mutex
	activeUser string
}

var _ Stream = (*Zeroconf)(nil)

// Launch starts the hand-off endpoint and the mDNS advertisement.
func Launch(config Config, logger zerolog.Logger) (*Zeroconf, error) {
	z, err := newZeroconf(config, logger)
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", config.Port))
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	z.serve(ln)

	port := ln.Addr().(*net.TCPAddr).Port
	service, err := mdns.NewMDNSService(config.Name, ServiceType, "", "", port, nil, []string{
		"CPath=/",
		"VERSION=1.0",
		"Stack=SP",
	})
	if err != nil {
		z.Shutdown(context.Background())
		return nil, fmt.Errorf("create mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{
		Zone:   service,
		Logger: log.New(z.logger, "", 0),
	})
	if err != nil {
		z.Shutdown(context.Background())
		return nil, fmt.Errorf("start mdns server: %w", err)
	}
	z.mdns = server

	z.logger.Info().Int("port", port).Str("service", ServiceType).Msg("discovery started")
	return z, nil
}

func newZeroconf(config Config, logger zerolog.Logger) (*Zeroconf, error) {
	if config.DeviceType == "" {
		config.DeviceType = "speaker"
	}
	keys, err := newKeyPair()
	if err != nil {
		return nil, err
	}
	return &Zeroconf{
		config: config,
		keys:   keys,
		logger: logger.With().Str("component", "discovery").Logger(),
		creds:  make(chan remote.Credentials, 4),
		done:   make(chan struct{}),
	}, nil
}

func (z *Zeroconf) serve(ln net.Listener) {
	z.listener = ln
	z.http = &http.Server{Handler: z}
	z.serveDone = make(chan struct{})
	go func() {
		defer close(z.serveDone)
		if err := z.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			z.logger.Error().Err(err).Msg("discovery endpoint stopped")
		}
	}()
}

// Addr returns the address of the hand-off endpoint.
func (z *Zeroconf) Addr() net.Addr {
	return z.listener.Addr()
}

func (z *Zeroconf) Credentials() <-chan remote.Credentials {
	return z.creds
}

func (z *Zeroconf) Shutdown(ctx context.Context) error {
	var err error
	z.closeOnce.Do(func() {
		close(z.done)
		if z.mdns != nil {
			err = errors.Join(err, z.mdns.Shutdown())
		}
		if z.http != nil {
			err = errors.Join(err, z.http.Shutdown(ctx))
			<-z.serveDone
		}
		z.sendMu.Lock()
		close(z.creds)
		z.sendMu.Unlock()
	})
	return err
}

type deviceInfo struct {
	Status           int    `json:"status"`
	StatusString     string `json:"statusString"`
	SpotifyError     int    `json:"spotifyError"`
	Version          string `json:"version"`
	DeviceID         string `json:"deviceID"`
	RemoteName       string `json:"remoteName"`
	ActiveUser       string `json:"activeUser"`
	PublicKey        string `json:"publicKey"`
	DeviceType       string `json:"deviceType"`
	LibraryVersion   string `json:"libraryVersion"`
	AccountReq       string `json:"accountReq"`
	BrandDisplayName string `json:"brandDisplayName"`
	ModelDisplayName string `json:"modelDisplayName"`
	VoiceSupport     string `json:"voiceSupport"`
	Availability     string `json:"availability"`
	ProductID        int    `json:"productID"`
	TokenType        string `json:"tokenType"`
	GroupStatus      string `json:"groupStatus"`
	ResolverVersion  string `json:"resolverVersion"`
	Scope            string `json:"scope"`
	ClientID         string `json:"clientID,omitempty"`
}

type addUserResult struct {
	Status       int    `json:"status"`
	StatusString string `json:"statusString"`
	SpotifyError int    `json:"spotifyError"`
}

func (z *Zeroconf) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch r.Form.Get("action") {
	case "getInfo":
		z.handleGetInfo(w)
	case "addUser":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		z.handleAddUser(w, r)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func (z *Zeroconf) handleGetInfo(w http.ResponseWriter) {
	z.mu.Lock()
	active := z.activeUser
	z.mu.Unlock()

	z.writeJSON(w, http.StatusOK, deviceInfo{
		Status:           101,
		StatusString:     "OK",
		Version:          "2.7.1",
		DeviceID:         z.config.DeviceID,
		RemoteName:       z.config.Name,
		ActiveUser:       active,
		PublicKey:        base64.StdEncoding.EncodeToString(z.keys.publicKey()),
		DeviceType:       deviceTypeName(z.config.DeviceType),
		LibraryVersion:   "0.1.0",
		AccountReq:       "PREMIUM",
		BrandDisplayName: "music-visualizer",
		ModelDisplayName: "music-visualizer",
		VoiceSupport:     "NO",
		TokenType:        "default",
		GroupStatus:      "NONE",
		ResolverVersion:  "0",
		Scope:            "streaming,client-authorization-universal",
		ClientID:         z.config.ClientID,
	})
}

func (z *Zeroconf) handleAddUser(w http.ResponseWriter, r *http.Request) {
	username := r.Form.Get("userName")
	blob64 := r.Form.Get("blob")
	clientKey64 := r.Form.Get("clientKey")
	if username == "" || blob64 == "" || clientKey64 == "" {
		z.writeJSON(w, http.StatusBadRequest, addUserResult{Status: 301, StatusString: "ERROR-MISSING-PARAMETER", SpotifyError: 0})
		return
	}

	creds, err := z.openHandOff(username, blob64, clientKey64)
	if err != nil {
		z.logger.Warn().Err(err).Str("user", username).Msg("rejected credential hand-off")
		z.writeJSON(w, http.StatusBadRequest, addUserResult{Status: 202, StatusString: "ERROR-INVALID-ARGUMENTS", SpotifyError: 0})
		return
	}

	if !z.deliver(r.Context(), creds) {
		if r.Context().Err() == nil {
			z.writeJSON(w, http.StatusServiceUnavailable, addUserResult{Status: 402, StatusString: "ERROR-SHUTTING-DOWN"})
		}
		return
	}

	z.mu.Lock()
	z.activeUser = username
	z.mu.Unlock()

	z.logger.Info().Str("user", username).Msg("accepted credential hand-off")
	z.writeJSON(w, http.StatusOK, addUserResult{Status: 101, StatusString: "OK", SpotifyError: 0})
}

// deliver queues creds for the orchestrator. It reports false once
// shutdown has begun or the request is gone.
func (z *Zeroconf) deliver(ctx context.Context, creds remote.Credentials) bool {
	z.sendMu.RLock()
	defer z.sendMu.RUnlock()

	select {
	case <-z.done:
		return false
	default:
	}
	select {
	case <-z.done:
		return false
	case <-ctx.Done():
		return false
	case z.creds <- creds:
		return true
	}
}

func (z *Zeroconf) openHandOff(username, blob64, clientKey64 string) (remote.Credentials, error) {
	blob, err := base64.StdEncoding.DecodeString(blob64)
	if err != nil {
		return remote.Credentials{}, fmt.Errorf("%w: blob: %v", ErrMalformedBlob, err)
	}
	clientKey, err := base64.StdEncoding.DecodeString(clientKey64)
	if err != nil {
		return remote.Credentials{}, fmt.Errorf("%w: client key: %v", ErrMalformedBlob, err)
	}

	inner, err := decryptBlob(z.keys.sharedSecret(clientKey), blob)
	if err != nil {
		return remote.Credentials{}, err
	}
	return credentialsFromBlob(username, inner, z.config.DeviceID)
}

func deviceTypeName(t string) string {
	switch t {
	case "computer":
		return "COMPUTER"
	case "tv":
		return "TV"
	case "avr":
		return "AVR"
	default:
		return "SPEAKER"
	}
}

func (z *Zeroconf) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		z.logger.Warn().Err(err).Msg("failed to write response")
	}
}
