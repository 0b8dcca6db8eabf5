package remote

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestBase62KnownValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   TrackID
		want string
	}{
		{id: TrackID{Kind: KindTrack}, want: strings.Repeat("0", 22)},
		{id: TrackID{Kind: KindTrack, Lo: 61}, want: strings.Repeat("0", 21) + "Z"},
		{id: TrackID{Kind: KindEpisode, Lo: 62}, want: strings.Repeat("0", 20) + "10"},
	}
	for _, tt := range tests {
		got, err := tt.id.Base62()
		if err != nil {
			t.Fatalf("Base62(%+v): %v", tt.id, err)
		}
		if got != tt.want {
			t.Fatalf("Base62(%+v): expected %q, got %q", tt.id, tt.want, got)
		}
	}
}

func TestBase62RoundTrip(t *testing.T) {
	t.Parallel()

	ids := []TrackID{
		{Kind: KindTrack, Hi: 0x0123456789abcdef, Lo: 0xfedcba9876543210},
		{Kind: KindTrack, Hi: math.MaxUint64, Lo: math.MaxUint64},
		{Kind: KindEpisode, Hi: 1, Lo: 0},
		NewTrackID(KindTrack, [16]byte{0xde, 0xad, 0xbe, 0xef, 15: 0x01}),
	}
	for _, id := range ids {
		s, err := id.Base62()
		if err != nil {
			t.Fatalf("Base62: %v", err)
		}
		if len(s) != 22 {
			t.Fatalf("expected 22 characters, got %q", s)
		}
		back, err := ParseBase62(id.Kind, s)
		if err != nil {
			t.Fatalf("ParseBase62(%q): %v", s, err)
		}
		if back != id {
			t.Fatalf("round trip: expected %+v, got %+v", id, back)
		}
	}
}

func TestBase62RejectsUnrenderableKinds(t *testing.T) {
	t.Parallel()

	for _, kind := range []ItemKind{KindUnknown, KindLocal} {
		if _, err := (TrackID{Kind: kind, Lo: 7}).Base62(); !errors.Is(err, ErrInvalidTrackID) {
			t.Fatalf("kind %s: expected ErrInvalidTrackID, got %v", kind, err)
		}
	}
}

func TestParseBase62Errors(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"short",
		strings.Repeat("0", 21) + "!",
		strings.Repeat("Z", 22),
	}
	for _, in := range inputs {
		if _, err := ParseBase62(KindTrack, in); !errors.Is(err, ErrInvalidTrackID) {
			t.Fatalf("ParseBase62(%q): expected ErrInvalidTrackID, got %v", in, err)
		}
	}
}

func TestURIRoundTrip(t *testing.T) {
	t.Parallel()

	id := TrackID{Kind: KindEpisode, Hi: 42, Lo: 4242}
	uri, err := id.URI()
	if err != nil {
		t.Fatalf("URI: %v", err)
	}
	if !strings.HasPrefix(uri, "spotify:episode:") {
		t.Fatalf("unexpected uri %q", uri)
	}
	back, err := ParseURI(uri)
	if err != nil {
		t.Fatalf("ParseURI: %v", err)
	}
	if back != id {
		t.Fatalf("expected %+v, got %+v", id, back)
	}

	if _, err := ParseURI("spotify:artist:" + strings.Repeat("0", 22)); !errors.Is(err, ErrInvalidTrackID) {
		t.Fatalf("expected ErrInvalidTrackID for artist uri, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	const name = "registry-test"
	Register(name, func(Options) (Engine, error) {
		return nil, errors.New("not built")
	})

	found := false
	for _, n := range Engines() {
		if n == name {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %q in %v", name, Engines())
	}

	if _, err := Open(name, Options{}); err == nil || err.Error() != "not built" {
		t.Fatalf("expected factory error, got %v", err)
	}
	if _, err := Open("missing", Options{}); err == nil {
		t.Fatal("expected error for unknown engine")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate Register")
		}
	}()
	Register(name, func(Options) (Engine, error) { return nil, nil })
}
