package streams

import "strings"

// VideoQuality is the upstream's qn identifier. Numeric order matches the
// user-facing quality ladder.
type VideoQuality int

const (
	Quality360p    VideoQuality = 16
	Quality480p    VideoQuality = 32
	Quality720p    VideoQuality = 64
	Quality1080p   VideoQuality = 80
	Quality1080pPl VideoQuality = 112
	Quality1080p60 VideoQuality = 116
	Quality4K      VideoQuality = 120
	QualityHDR     VideoQuality = 125
	QualityDolby   VideoQuality = 126
	Quality8K      VideoQuality = 127
)

// AudioQuality is the upstream's audio stream id.
type AudioQuality int

const (
	Audio64K   AudioQuality = 30216
	Audio132K  AudioQuality = 30232
	AudioDolby AudioQuality = 30250
	AudioHiRes AudioQuality = 30251
	Audio192K  AudioQuality = 30280
)

// rank orders audio qualities for selection. Dolby and Hi-Res sort after
// 192k despite their smaller raw ids.
func (a AudioQuality) rank() int {
	if a == AudioDolby || a == AudioHiRes {
		return int(a) + 40
	}
	return int(a)
}

// Codec is a video codec family accepted by the user.
type Codec string

const (
	CodecAV1 Codec = "av1"
	CodecHEV Codec = "hev"
	CodecAVC Codec = "avc"
)

// sniffCodec maps a manifest codecs string ("hev1.1.6.L120.90", ...) to a
// family by substring, probing hev, avc, av01 in that order.
func sniffCodec(codecs string) (Codec, bool) {
	switch {
	case strings.Contains(codecs, "hev"):
		return CodecHEV, true
	case strings.Contains(codecs, "avc"):
		return CodecAVC, true
	case strings.Contains(codecs, "av01"):
		return CodecAV1, true
	}
	return "", false
}
