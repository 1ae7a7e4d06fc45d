package audio

import (
	"fmt"
	"math"
	"time"
)

// EncodeFrame converts a captured frame into the wire format expected by the
// live service: each normalized float sample is clamped to [-1, 1], scaled to
// signed 16-bit, and serialized little-endian. The transform is pure and
// never fails; malformed frames are a programming error, not a runtime one.
func EncodeFrame(frame Frame) MediaChunk {
	data := make([]byte, len(frame.Samples)*2)
	for i, sample := range frame.Samples {
		s := int16(clamp(sample) * math.MaxInt16)
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return MediaChunk{
		MIMEType: fmt.Sprintf("audio/pcm;rate=%d", frame.SampleRate),
		Data:     data,
	}
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// DecodePCM16 converts little-endian s16le PCM bytes to normalized float32
// samples. An odd byte count means the chunk is corrupt; the caller should
// drop it and continue.
func DecodePCM16(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: odd byte count %d in s16le PCM", len(pcm))
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / math.MaxInt16
	}
	return out, nil
}

// PCMDuration returns the play length of raw s16le PCM at the given format.
// Returns an error for odd byte counts or a non-positive byte rate.
func PCMDuration(pcm []byte, f Format) (time.Duration, error) {
	if len(pcm)%2 != 0 {
		return 0, fmt.Errorf("audio: odd byte count %d in s16le PCM", len(pcm))
	}
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0, fmt.Errorf("audio: invalid format %+v", f)
	}
	return time.Duration(len(pcm)) * time.Second / time.Duration(bps), nil
}
