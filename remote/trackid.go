package remote

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// ErrInvalidTrackID is returned when an identifier has no base62 form.
var ErrInvalidTrackID = errors.New("remote: invalid track id")

const (
	base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	base62Len      = 22
)

// ItemKind is the kind of playable item an identifier refers to.
type ItemKind int

const (
	KindUnknown ItemKind = iota
	KindTrack
	KindEpisode
	KindLocal
)

func (k ItemKind) String() string {
	switch k {
	case KindTrack:
		return "track"
	case KindEpisode:
		return "episode"
	case KindLocal:
		return "local"
	default:
		return "unknown"
	}
}

// TrackID is a 128-bit item identifier. Only tracks and episodes have an
// external base62 form.
type TrackID struct {
	Kind   ItemKind
	Hi, Lo uint64
}

// NewTrackID builds an identifier from 16 big-endian bytes.
func NewTrackID(kind ItemKind, raw [16]byte) TrackID {
	var hi, lo uint64
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(raw[i])
		lo = lo<<8 | uint64(raw[i+8])
	}
	return TrackID{Kind: kind, Hi: hi, Lo: lo}
}

// Base62 renders the identifier as the 22 character external string.
func (id TrackID) Base62() (string, error) {
	if id.Kind != KindTrack && id.Kind != KindEpisode {
		return "", fmt.Errorf("%w: %s item has no base62 form", ErrInvalidTrackID, id.Kind)
	}

	var out [base62Len]byte
	hi, lo := id.Hi, id.Lo
	for i := base62Len - 1; i >= 0; i-- {
		var r uint64
		hi, lo, r = divmod62(hi, lo)
		out[i] = base62Alphabet[r]
	}
	return string(out[:]), nil
}

// URI renders the identifier as a "spotify:<kind>:<base62>" URI.
func (id TrackID) URI() (string, error) {
	s, err := id.Base62()
	if err != nil {
		return "", err
	}
	return "spotify:" + id.Kind.String() + ":" + s, nil
}

// ParseBase62 decodes a 22 character base62 identifier.
func ParseBase62(kind ItemKind, s string) (TrackID, error) {
	if len(s) != base62Len {
		return TrackID{}, fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidTrackID, base62Len, len(s))
	}

	var hi, lo uint64
	for i := 0; i < len(s); i++ {
		d := strings.IndexByte(base62Alphabet, s[i])
		if d < 0 {
			return TrackID{}, fmt.Errorf("%w: invalid character %q", ErrInvalidTrackID, s[i])
		}

		ph, pl := bits.Mul64(lo, 62)
		oh, hh := bits.Mul64(hi, 62)
		if oh != 0 {
			return TrackID{}, fmt.Errorf("%w: value overflows 128 bits", ErrInvalidTrackID)
		}
		var carry uint64
		hi, carry = bits.Add64(hh, ph, 0)
		if carry != 0 {
			return TrackID{}, fmt.Errorf("%w: value overflows 128 bits", ErrInvalidTrackID)
		}
		lo, carry = bits.Add64(pl, uint64(d), 0)
		hi, carry = bits.Add64(hi, 0, carry)
		if carry != 0 {
			return TrackID{}, fmt.Errorf("%w: value overflows 128 bits", ErrInvalidTrackID)
		}
	}
	return TrackID{Kind: kind, Hi: hi, Lo: lo}, nil
}

// ParseURI decodes a "spotify:track:..." or "spotify:episode:..." URI.
func ParseURI(uri string) (TrackID, error) {
	parts := strings.Split(uri, ":")
	if len(parts) != 3 || parts[0] != "spotify" {
		return TrackID{}, fmt.Errorf("%w: malformed uri %q", ErrInvalidTrackID, uri)
	}
	switch parts[1] {
	case "track":
		return ParseBase62(KindTrack, parts[2])
	case "episode":
		return ParseBase62(KindEpisode, parts[2])
	default:
		return TrackID{}, fmt.Errorf("%w: unsupported item kind %q", ErrInvalidTrackID, parts[1])
	}
}

func divmod62(hi, lo uint64) (qhi, qlo, r uint64) {
	qhi = hi / 62
	qlo, r = bits.Div64(hi%62, lo, 62)
	return qhi, qlo, r
}
