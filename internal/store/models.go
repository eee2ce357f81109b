package store

import (
	"encoding/json"
	"time"
)

// SourceKind tags the five feed flavors.
type SourceKind string

const (
	KindFavorite   SourceKind = "favorite"
	KindCollection SourceKind = "collection"
	KindSubmission SourceKind = "submission"
	KindWatchLater SourceKind = "watch_later"
	KindBangumi    SourceKind = "bangumi"
)

// CollectionKind splits the collection source into its two endpoints.
type CollectionKind string

const (
	CollectionSeries CollectionKind = "series"
	CollectionSeason CollectionKind = "season"
)

// VideoSource is one subscription row. Only the columns matching Kind carry
// meaning; the rest stay zero.
type VideoSource struct {
	ID      int64
	Kind    SourceKind
	Name    string
	Path    string
	Enabled bool

	FID                int64          // favorite list id
	UpperID            int64          // submission / collection owner
	CollectionID       int64          // series or season id
	CollectionKind     CollectionKind // which collection endpoint
	SeasonID           int64          // bangumi
	MediaID            int64          // bangumi
	EpID               int64          // bangumi
	DownloadAllSeasons bool           // bangumi option

	Rule        string // serialized rule, empty = download everything
	LatestRowAt time.Time
}

// Video is one remote item; the playable unit for single-page items, a
// container otherwise.
type Video struct {
	ID             int64
	SourceID       int64
	Bvid           string
	Title          string
	Intro          string
	Cover          string
	Category       int
	UpperID        int64
	UpperName      string
	UpperFace      string
	Ctime          time.Time
	Pubtime        time.Time
	FavTime        time.Time
	Tags           []string
	SinglePage     *bool
	Path           string
	DownloadStatus uint32
	ShouldDownload bool
	Valid          bool
}

// Page is one playable stream unit inside a video.
type Page struct {
	ID             int64
	VideoID        int64
	Cid            int64
	Pid            int
	Title          string
	Width          int
	Height         int
	Duration       int64
	Image          string
	DownloadStatus uint32
	Path           string
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeTags(raw string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeFromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0)
}
