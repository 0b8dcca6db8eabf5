package audio

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// SampleRate is the rate every rendered block is produced at.
	SampleRate = 44100
	// Channels is the interleaved channel count of every rendered block.
	Channels = 2
)

// ErrUnsupportedFormat is returned for any sample encoding other than S16 and F32.
var ErrUnsupportedFormat = errors.New("audio: unsupported sample format")

// Format identifies the encoding of a block of decoded samples.
type Format int

const (
	FormatS16 Format = iota + 1
	FormatF32
)

func (f Format) String() string {
	switch f {
	case FormatS16:
		return "S16"
	case FormatF32:
		return "F32"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Valid reports whether f is one of the supported encodings.
func (f Format) Valid() bool {
	return f == FormatS16 || f == FormatF32
}

// ParseFormat resolves a format name such as "S16" or "f32".
func ParseFormat(name string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "S16":
		return FormatS16, nil
	case "F32":
		return FormatF32, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// Block is a block of interleaved decoded samples. Exactly one of S16 or
// F32 is populated, matching Format.
type Block struct {
	Format Format
	S16    []int16
	F32    []float32
}

// S16Block wraps 16-bit integer samples.
func S16Block(samples []int16) Block {
	return Block{Format: FormatS16, S16: samples}
}

// F32Block wraps 32-bit float samples.
func F32Block(samples []float32) Block {
	return Block{Format: FormatF32, F32: samples}
}

// Len returns the number of samples in the block.
func (b Block) Len() int {
	switch b.Format {
	case FormatS16:
		return len(b.S16)
	case FormatF32:
		return len(b.F32)
	default:
		return 0
	}
}

// Chunk is a block of samples in the canonical capture format.
type Chunk []float32
