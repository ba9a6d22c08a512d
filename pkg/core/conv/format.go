package conv

import (
	"fmt"
	"strconv"
	"strings"
)

// Encoding identifies the sample encoding of an audio format.
type Encoding string

const (
	// EncodingPCM is 16-bit signed little-endian linear PCM.
	EncodingPCM Encoding = "pcm"
	// EncodingULaw is 8-bit G.711 mu-law.
	EncodingULaw Encoding = "ulaw"
)

// Format describes a negotiated audio shape: encoding kind plus sample
// rate. Descriptors are resolved once at session creation and shared by
// reference; they are immutable after construction.
type Format struct {
	Encoding   Encoding
	SampleRate int
}

// String returns the symbolic identifier, e.g. "pcm_16000".
func (f Format) String() string {
	return fmt.Sprintf("%s_%d", f.Encoding, f.SampleRate)
}

// Default symbolic format identifiers used when the session config
// leaves a direction unspecified.
const (
	DefaultInputFormatID  = "pcm_16000"
	DefaultOutputFormatID = "pcm_16000"
)

var pcmSampleRates = map[int]bool{
	8000:  true,
	16000: true,
	22050: true,
	24000: true,
	44100: true,
	48000: true,
}

// ParseFormat resolves a symbolic audio format identifier into a
// concrete descriptor. Supported identifiers are pcm_{8000, 16000,
// 22050, 24000, 44100, 48000} and ulaw_8000.
func ParseFormat(id string) (Format, error) {
	kind, rate, ok := strings.Cut(id, "_")
	if !ok {
		return Format{}, fmt.Errorf("unsupported audio format %q", id)
	}
	hz, err := strconv.Atoi(rate)
	if err != nil {
		return Format{}, fmt.Errorf("unsupported audio format %q", id)
	}

	switch Encoding(kind) {
	case EncodingPCM:
		if !pcmSampleRates[hz] {
			return Format{}, fmt.Errorf("unsupported pcm sample rate %d", hz)
		}
		return Format{Encoding: EncodingPCM, SampleRate: hz}, nil
	case EncodingULaw:
		if hz != 8000 {
			return Format{}, fmt.Errorf("unsupported ulaw sample rate %d", hz)
		}
		return Format{Encoding: EncodingULaw, SampleRate: hz}, nil
	default:
		return Format{}, fmt.Errorf("unsupported audio format %q", id)
	}
}
