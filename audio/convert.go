package audio

import "fmt"

// Converter turns a rendered block into a capture chunk.
type Converter func(Block) Chunk

// CaptureConverter returns the converter for blocks of the given format.
func CaptureConverter(f Format) (Converter, error) {
	switch f {
	case FormatS16:
		return s16ToChunk, nil
	case FormatF32:
		return f32ToChunk, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

func s16ToChunk(b Block) Chunk {
	out := make(Chunk, len(b.S16))
	for i, s := range b.S16 {
		out[i] = float32(s) / 32767
	}
	return out
}

// The block may be reused by the renderer once Write returns, so the
// samples are copied rather than aliased.
func f32ToChunk(b Block) Chunk {
	out := make(Chunk, len(b.F32))
	copy(out, b.F32)
	return out
}
