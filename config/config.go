package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the daemon configuration read from the environment.
type Config struct {
	SettingsPath    string
	Name            string
	AudioDevice     string
	AudioFormat     string
	CaptureCapacity int
	MaxPending      int
	ListenAddr      string
	HealthAddr      string
	DiscoveryPort   int
	Engine          string
	MediaDir        string
	RetryDelay      time.Duration
	StrictEvents    bool
	Autostart       bool
	LogLevel        string
	LogFormat       string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		SettingsPath:    "data/data.txt",
		AudioFormat:     "S16",
		CaptureCapacity: 100,
		MaxPending:      26,
		ListenAddr:      "127.0.0.1:7878",
		Engine:          "local",
		MediaDir:        "media",
		LogLevel:        "info",
		LogFormat:       "console",
	}
}

// LoadConfig loads the given .env files (".env" when none are named) into
// the environment and reads the SPEAKER_* variables. Missing files are
// skipped; malformed values are errors.
func LoadConfig(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Default()
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("SPEAKER_SETTINGS", &cfg.SettingsPath)
	str("SPEAKER_NAME", &cfg.Name)
	str("SPEAKER_AUDIO_DEVICE", &cfg.AudioDevice)
	str("SPEAKER_AUDIO_FORMAT", &cfg.AudioFormat)
	num("SPEAKER_CAPTURE_CAPACITY", &cfg.CaptureCapacity)
	num("SPEAKER_MAX_PENDING_BLOCKS", &cfg.MaxPending)
	str("SPEAKER_LISTEN_ADDR", &cfg.ListenAddr)
	str("SPEAKER_HEALTH_ADDR", &cfg.HealthAddr)
	num("SPEAKER_DISCOVERY_PORT", &cfg.DiscoveryPort)
	str("SPEAKER_ENGINE", &cfg.Engine)
	str("SPEAKER_MEDIA_DIR", &cfg.MediaDir)
	if v, ok := lookup("SPEAKER_RETRY_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SPEAKER_RETRY_DELAY: %w", err))
		} else {
			cfg.RetryDelay = d
		}
	}
	flag("SPEAKER_STRICT_EVENTS", &cfg.StrictEvents)
	flag("SPEAKER_AUTOSTART", &cfg.Autostart)
	str("SPEAKER_LOG_LEVEL", &cfg.LogLevel)
	str("SPEAKER_LOG_FORMAT", &cfg.LogFormat)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// lookup returns a set, non-blank variable.
func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
