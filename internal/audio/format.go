// Package audio provides source reference handling, audio format detection
// and duration helpers shared by the player and its outputs.
package audio

import (
	"path"
	"strconv"
	"strings"
)

// Format describes the stream currently reaching the output.
type Format struct {
	Codec      string `json:"codec"`      // mp3, wav, ogg, m4a, aac
	SampleRate int    `json:"sampleRate"` // Hz, 0 when unknown
	BitDepth   int    `json:"bitDepth"`
	Channels   int    `json:"channels"`
	Encoding   string `json:"encoding"` // "PCM", "DSD64", ...
}

// supportedCodecs maps file extensions to codec names.
var supportedCodecs = map[string]string{
	".mp3": "mp3",
	".wav": "wav",
	".ogg": "ogg",
	".m4a": "m4a",
	".aac": "aac",
}

// CodecFromSource returns the codec implied by the source's extension, or ""
// when it is not a supported audio file. Query strings and fragments are
// ignored.
func CodecFromSource(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	return supportedCodecs[strings.ToLower(path.Ext(src))]
}

// ParseMPDAudio parses MPD's "samplerate:bits:channels" status field
// (e.g. "44100:16:2"). It returns nil when the field is malformed.
func ParseMPDAudio(field string) *Format {
	parts := strings.Split(field, ":")
	if len(parts) < 2 {
		return nil
	}

	sampleRate, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil
	}
	// MPD reports "f" for floating point and "dsd" for native DSD.
	bitDepth, err := strconv.Atoi(parts[1])
	if err != nil {
		bitDepth = 0
	}

	channels := 2
	if len(parts) >= 3 {
		if ch, err := strconv.Atoi(parts[2]); err == nil {
			channels = ch
		}
	}

	return &Format{
		SampleRate: sampleRate,
		BitDepth:   bitDepth,
		Channels:   channels,
		Encoding:   encodingFor(sampleRate),
	}
}

// encodingFor infers DSD from its characteristic rates.
func encodingFor(sampleRate int) string {
	switch sampleRate {
	case 2822400:
		return "DSD64"
	case 5644800:
		return "DSD128"
	case 11289600:
		return "DSD256"
	case 22579200:
		return "DSD512"
	default:
		return "PCM"
	}
}

// FormatSampleRate returns a human-readable sample rate string.
func FormatSampleRate(sampleRate int) string {
	if sampleRate >= 1000000 {
		return encodingFor(sampleRate)
	}
	if sampleRate >= 1000 {
		return strconv.FormatFloat(float64(sampleRate)/1000, 'f', -1, 64) + "kHz"
	}
	return strconv.Itoa(sampleRate) + "Hz"
}

// Equal reports whether two formats describe the same stream.
func (f *Format) Equal(o *Format) bool {
	if f == nil || o == nil {
		return f == nil && o == nil
	}
	return *f == *o
}
