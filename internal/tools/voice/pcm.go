package voice

import (
	"encoding/binary"
	"fmt"
)

// silenceThreshold is the int16 amplitude below which a sample counts
// as silence for trim_silence.
const silenceThreshold = 512

// wavAudio holds decoded 16-bit PCM with its format.
type wavAudio struct {
	sampleRate int
	channels   int
	samples    []int16
}

func (w *wavAudio) duration() float64 {
	if w.sampleRate == 0 || w.channels == 0 {
		return 0
	}
	return float64(len(w.samples)) / float64(w.sampleRate*w.channels)
}

// decodeWAV parses a RIFF WAVE container holding uncompressed 16-bit
// PCM. Chunks other than fmt and data are skipped.
func decodeWAV(data []byte) (*wavAudio, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("missing RIFF/WAVE header")
	}

	var (
		out     wavAudio
		haveFmt bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			return nil, fmt.Errorf("chunk %q overruns file", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk too short")
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			if audioFormat != 1 {
				return nil, fmt.Errorf("unsupported audio format %d, want PCM", audioFormat)
			}
			out.channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			out.sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bits != 16 {
				return nil, fmt.Errorf("unsupported bit depth %d, want 16", bits)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("data chunk before fmt chunk")
			}
			if size%2 != 0 {
				return nil, fmt.Errorf("odd byte count in PCM data")
			}
			out.samples = make([]int16, size/2)
			for i := range out.samples {
				out.samples[i] = int16(binary.LittleEndian.Uint16(data[body+i*2 : body+i*2+2]))
			}
			return &out, nil
		}

		// Chunks are word-aligned.
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}
	return nil, fmt.Errorf("no data chunk found")
}

// encodeWAV renders the samples back into a RIFF WAVE container.
func encodeWAV(w *wavAudio) []byte {
	dataSize := len(w.samples) * 2
	byteRate := w.sampleRate * w.channels * 2
	blockAlign := w.channels * 2

	out := make([]byte, 44+dataSize)
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1)
	binary.LittleEndian.PutUint16(out[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], 16)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))
	for i, s := range w.samples {
		binary.LittleEndian.PutUint16(out[44+i*2:46+i*2], uint16(s))
	}
	return out
}

// normalize scales all samples so the peak reaches ~95% of full range.
func (w *wavAudio) normalize() {
	var peak int32
	for _, s := range w.samples {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	if peak == 0 {
		return
	}
	gain := float64(31129) / float64(peak) // 0.95 * 32767
	for i, s := range w.samples {
		w.samples[i] = clampSample(float64(s) * gain)
	}
}

// amplify multiplies all samples by gain, clamping to int16 range.
func (w *wavAudio) amplify(gain float64) {
	for i, s := range w.samples {
		w.samples[i] = clampSample(float64(s) * gain)
	}
}

// trimSilence drops leading and trailing frames whose amplitude stays
// below threshold across all channels.
func (w *wavAudio) trimSilence(threshold int16) {
	if w.channels == 0 {
		return
	}
	frames := len(w.samples) / w.channels

	loud := func(frame int) bool {
		for c := 0; c < w.channels; c++ {
			s := w.samples[frame*w.channels+c]
			if s > threshold || s < -threshold {
				return true
			}
		}
		return false
	}

	start := 0
	for start < frames && !loud(start) {
		start++
	}
	end := frames
	for end > start && !loud(end-1) {
		end--
	}
	w.samples = w.samples[start*w.channels : end*w.channels]
}

// toMono averages interleaved channels down to one. Uses int32
// arithmetic to prevent overflow.
func (w *wavAudio) toMono() {
	if w.channels <= 1 {
		return
	}
	frames := len(w.samples) / w.channels
	mono := make([]int16, frames)
	for i := range frames {
		var sum int32
		for c := 0; c < w.channels; c++ {
			sum += int32(w.samples[i*w.channels+c])
		}
		mono[i] = int16(sum / int32(w.channels))
	}
	w.samples = mono
	w.channels = 1
}

// resample converts the audio to dstRate using linear interpolation,
// per channel.
func (w *wavAudio) resample(dstRate int) {
	if dstRate <= 0 || dstRate == w.sampleRate || w.channels == 0 {
		return
	}
	srcFrames := len(w.samples) / w.channels
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(w.sampleRate))
	if dstFrames == 0 {
		w.samples = nil
		w.sampleRate = dstRate
		return
	}

	out := make([]int16, dstFrames*w.channels)
	ratio := float64(w.sampleRate) / float64(dstRate)
	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		for c := 0; c < w.channels; c++ {
			s0 := w.samples[srcIdx*w.channels+c]
			s1 := s0
			if srcIdx+1 < srcFrames {
				s1 = w.samples[(srcIdx+1)*w.channels+c]
			}
			out[i*w.channels+c] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
		}
	}
	w.samples = out
	w.sampleRate = dstRate
}

func clampSample(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
