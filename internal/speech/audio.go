package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hraban/opus"
)

// RecognitionSampleRate is the PCM rate sent to recognizers.
const RecognitionSampleRate = 16000

// MinSampleRate is the lowest PCM rate accepted from candidates.
const MinSampleRate = 8000

// maxOpusFrameSamples covers a 120ms opus packet at 16kHz.
const maxOpusFrameSamples = 1920

// PCM16 returns the stream as little-endian PCM16 mono at its sample rate,
// decoding opus packets at RecognitionSampleRate.
func (a AudioStream) PCM16() ([]byte, int, error) {
	switch a.Encoding {
	case EncodingPCM16, "":
		rate := a.SampleRate
		if rate == 0 {
			rate = RecognitionSampleRate
		}
		if rate < MinSampleRate {
			return nil, 0, fmt.Errorf("sample rate %d below %d", rate, MinSampleRate)
		}
		return bytes.Join(a.Frames, nil), rate, nil
	case EncodingOpus:
		pcm, err := decodeOpus(a.Frames, RecognitionSampleRate)
		return pcm, RecognitionSampleRate, err
	}
	return nil, 0, fmt.Errorf("unsupported audio encoding %q", a.Encoding)
}

// Empty reports whether the stream carries no audio bytes.
func (a AudioStream) Empty() bool {
	for _, f := range a.Frames {
		if len(f) > 0 {
			return false
		}
	}
	return true
}

func decodeOpus(packets [][]byte, sampleRate int) ([]byte, error) {
	dec, err := opus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("opus decoder: %w", err)
	}
	samples := make([]int16, maxOpusFrameSamples)
	out := make([]byte, 0, len(packets)*640)
	for i, pkt := range packets {
		if len(pkt) == 0 {
			continue
		}
		n, err := dec.Decode(pkt, samples)
		if err != nil {
			return nil, fmt.Errorf("opus packet %d: %w", i, err)
		}
		out = appendPCM16(out, samples[:n])
	}
	return out, nil
}

func appendPCM16(dst []byte, samples []int16) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, len(samples)*2)...)
	o := dst[start:]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(o[i*2:], uint16(s))
	}
	return dst
}

// pcmDuration is the playback length of mono PCM16.
func pcmDuration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(pcm)/2) * time.Second / time.Duration(sampleRate)
}

// wavFromPCM wraps mono PCM16 in a canonical 44-byte RIFF header.
func wavFromPCM(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

var speechReplacements = []struct{ from, to string }{
	{"U.S.", "United States"},
	{"F-1", "F one"},
	{"I-20", "I twenty"},
	{"GPA", "G P A"},
}

var spaces = regexp.MustCompile(`\s+`)

// CleanForSpeech expands abbreviations voices tend to mispronounce.
func CleanForSpeech(text string) string {
	for _, r := range speechReplacements {
		text = strings.ReplaceAll(text, r.from, r.to)
	}
	return strings.TrimSpace(spaces.ReplaceAllString(text, " "))
}
