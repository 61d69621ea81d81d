package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PCM16Scale maps a full-scale float sample to 16-bit PCM. Both ±1.0 map to
// ±32767, so the format is symmetric and -32768 is never produced.
const PCM16Scale = 32767

// Int16Sample converts one float sample to 16-bit PCM as round(s * 32767).
// Out-of-range input is clamped to ±32767; NaN maps to 0.
func Int16Sample(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v * PCM16Scale)
	if v > PCM16Scale {
		return PCM16Scale
	}
	if v < -PCM16Scale {
		return -PCM16Scale
	}
	return int16(v)
}

// EncodePCM16 encodes samples as concatenated little-endian 16-bit signed
// integers.
func EncodePCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(Int16Sample(s)))
	}
	return buf
}

// DecodePCM16 parses little-endian 16-bit PCM.
func DecodePCM16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm16 payload has odd length %d", len(data))
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out, nil
}

// Float32Samples scales 16-bit PCM back to [-1, 1].
func Float32Samples(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, v := range pcm {
		out[i] = float32(v) / PCM16Scale
	}
	return out
}
