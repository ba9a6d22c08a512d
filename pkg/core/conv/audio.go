package conv

import (
	"encoding/binary"
	"math"
)

// pcm16Samples decodes 16-bit signed little-endian PCM into normalized
// float samples in [-1, 1). A trailing odd byte is ignored.
func pcm16Samples(pcm []byte) []float64 {
	samples := make([]float64, 0, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		samples = append(samples, float64(v)/32768.0)
	}
	return samples
}

// pcm16Stats reports the normalized peak absolute amplitude and the RMS
// level of a PCM16 block. The peak drives the capture suppression gate.
func pcm16Stats(pcm []byte) (peak, rms float64) {
	var sumSquares float64
	samples := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		f := float64(int16(binary.LittleEndian.Uint16(pcm[i:i+2]))) / 32768.0
		if abs := math.Abs(f); abs > peak {
			peak = abs
		}
		sumSquares += f * f
		samples++
	}
	if samples == 0 {
		return 0, 0
	}
	return peak, math.Sqrt(sumSquares / float64(samples))
}

// G.711 mu-law companding constants.
const (
	ulawBias = 0x84
	ulawClip = 32635
)

// pcm16ToULaw compands a 16-bit signed little-endian mono PCM block
// into 8-bit G.711 mu-law, one byte per sample.
func pcm16ToULaw(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int(int16(binary.LittleEndian.Uint16(pcm[i : i+2])))
		sign := 0
		if sample < 0 {
			sample = -sample
			sign = 0x80
		}
		if sample > ulawClip {
			sample = ulawClip
		}
		sample += ulawBias

		exponent := 7
		for mask := 0x4000; exponent > 0 && sample&mask == 0; mask >>= 1 {
			exponent--
		}
		mantissa := (sample >> (exponent + 3)) & 0x0F
		out[i/2] = ^byte(sign | exponent<<4 | mantissa)
	}
	return out
}

// ulawToPCM16 expands 8-bit G.711 mu-law into 16-bit signed
// little-endian mono PCM.
func ulawToPCM16(ulaw []byte) []byte {
	out := make([]byte, len(ulaw)*2)
	for i, b := range ulaw {
		b = ^b
		exponent := (b >> 4) & 0x07
		mantissa := b & 0x0F
		sample := ((int(mantissa) << 3) + ulawBias) << exponent
		sample -= ulawBias
		if b&0x80 != 0 {
			sample = -sample
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sample)))
	}
	return out
}

// resamplePCM16 converts a 16-bit mono PCM block between sample rates
// by nearest-sample mapping. Good enough for speech telemetry; anything
// feeding a codec should resample upstream.
func resamplePCM16(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return pcm
	}
	sampleCount := len(pcm) / 2
	outCount := sampleCount * toRate / fromRate

	out := make([]byte, outCount*2)
	for i := 0; i < outCount; i++ {
		src := i * fromRate / toRate
		if src >= sampleCount {
			src = sampleCount - 1
		}
		copy(out[i*2:i*2+2], pcm[src*2:src*2+2])
	}
	return out
}
