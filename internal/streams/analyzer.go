// Package streams interprets playurl manifests and picks the best video and
// audio streams under a user preference.
package streams

import (
	"github.com/amtoaer/bili-sync-sub000/internal/bilibili"
)

// FilterOption is the user's stream preference.
type FilterOption struct {
	VideoMaxQuality VideoQuality `json:"video_max_quality"`
	VideoMinQuality VideoQuality `json:"video_min_quality"`
	AudioMaxQuality AudioQuality `json:"audio_max_quality"`
	AudioMinQuality AudioQuality `json:"audio_min_quality"`
	Codecs          []Codec      `json:"codecs"`
	NoDolbyVideo    bool         `json:"no_dolby_video"`
	NoDolbyAudio    bool         `json:"no_dolby_audio"`
	NoHDR           bool         `json:"no_hdr"`
	NoHiRes         bool         `json:"no_hires"`
}

// DefaultFilterOption accepts everything up to 8k, hev before avc before av1.
func DefaultFilterOption() FilterOption {
	return FilterOption{
		VideoMaxQuality: Quality8K,
		VideoMinQuality: Quality360p,
		AudioMaxQuality: AudioHiRes,
		AudioMinQuality: Audio64K,
		Codecs:          []Codec{CodecHEV, CodecAVC, CodecAV1},
	}
}

func (f FilterOption) codecIndex(c Codec) int {
	for i, k := range f.Codecs {
		if k == c {
			return i
		}
	}
	return -1
}

// VideoStream is a selectable video entry.
type VideoStream struct {
	URL     string
	Backups []string
	Quality VideoQuality
	Codec   Codec
}

// Candidates lists the stream's urls in fetch order, primary first.
func (s VideoStream) Candidates() []string {
	return append([]string{s.URL}, s.Backups...)
}

// AudioStream is a selectable audio entry.
type AudioStream struct {
	URL     string
	Backups []string
	Quality AudioQuality
}

// Candidates lists the stream's urls in fetch order, primary first.
func (s AudioStream) Candidates() []string {
	return append([]string{s.URL}, s.Backups...)
}

// Selection is the analyzer's outcome: either one mixed stream, or a video
// stream plus an optional audio stream (some items are silent). Every entry
// keeps its mirror urls so a dead CDN node can be skipped.
type Selection struct {
	Mixed        *string
	MixedBackups []string
	Video        *VideoStream
	Audio        *AudioStream
}

// BestStreams parses a manifest and selects under the preference. An empty
// dash video array is the upstream's risk-control tell and surfaces as
// bilibili.ErrStreamsEmpty.
func BestStreams(m *bilibili.PlayURLManifest, opt FilterOption) (*Selection, error) {
	// FLV / HTML5-MP4 / try-MP4 manifests carry a flat durl list; there is
	// nothing to negotiate.
	if len(m.Durl) > 0 && (m.Format == "flv" || m.IsHTML5 || m.Dash == nil) {
		u := m.Durl[0].URL
		return &Selection{Mixed: &u, MixedBackups: m.Durl[0].Backups()}, nil
	}
	if m.Dash == nil || len(m.Dash.Video) == 0 {
		return nil, bilibili.ErrStreamsEmpty
	}

	videos := filterVideo(m.Dash.Video, opt)
	if len(videos) == 0 {
		return nil, bilibili.ErrStreamsEmpty
	}
	best := videos[0]
	for _, v := range videos[1:] {
		if videoLess(best, v, opt) {
			best = v
		}
	}

	audios := collectAudio(m.Dash, opt)
	var bestAudio *AudioStream
	for i := range audios {
		if bestAudio == nil || bestAudio.Quality.rank() < audios[i].Quality.rank() {
			bestAudio = &audios[i]
		}
	}

	return &Selection{Video: &best, Audio: bestAudio}, nil
}

func filterVideo(entries []bilibili.DashStream, opt FilterOption) []VideoStream {
	out := make([]VideoStream, 0, len(entries))
	for _, e := range entries {
		q := VideoQuality(e.ID)
		codec, ok := sniffCodec(e.Codecs)
		if !ok {
			continue
		}
		if q < opt.VideoMinQuality || q > opt.VideoMaxQuality {
			continue
		}
		if q == QualityHDR && opt.NoHDR {
			continue
		}
		if q == QualityDolby && opt.NoDolbyVideo {
			continue
		}
		if opt.codecIndex(codec) < 0 {
			continue
		}
		out = append(out, VideoStream{URL: e.URL(), Backups: e.Backups(), Quality: q, Codec: codec})
	}
	return out
}

// videoLess reports whether b beats a: higher quality first, then the codec
// listed earlier in the user preference.
func videoLess(a, b VideoStream, opt FilterOption) bool {
	if a.Quality != b.Quality {
		return a.Quality < b.Quality
	}
	return opt.codecIndex(a.Codec) > opt.codecIndex(b.Codec)
}

func collectAudio(dash *bilibili.Dash, opt FilterOption) []AudioStream {
	inBand := func(q AudioQuality) bool {
		return q.rank() >= opt.AudioMinQuality.rank() && q.rank() <= opt.AudioMaxQuality.rank()
	}
	out := make([]AudioStream, 0, len(dash.Audio)+2)
	for _, e := range dash.Audio {
		if q := AudioQuality(e.ID); inBand(q) {
			out = append(out, AudioStream{URL: e.URL(), Backups: e.Backups(), Quality: q})
		}
	}
	if dash.Flac != nil && dash.Flac.Audio != nil && !opt.NoHiRes {
		if q := AudioQuality(dash.Flac.Audio.ID); inBand(q) {
			out = append(out, AudioStream{URL: dash.Flac.Audio.URL(), Backups: dash.Flac.Audio.Backups(), Quality: q})
		}
	}
	if dash.Dolby != nil && len(dash.Dolby.Audio) > 0 && !opt.NoDolbyAudio {
		e := dash.Dolby.Audio[0]
		if q := AudioQuality(e.ID); inBand(q) {
			out = append(out, AudioStream{URL: e.URL(), Backups: e.Backups(), Quality: q})
		}
	}
	return out
}
