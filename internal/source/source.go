// Package source normalizes the five heterogeneous remote feeds into a
// uniform newest-first stream of VideoInfo with per-source watermarking.
package source

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/amtoaer/bili-sync-sub000/internal/bilibili"
	"github.com/amtoaer/bili-sync-sub000/internal/store"
)

// VideoInfo is one normalized feed item.
type VideoInfo struct {
	Bvid      string
	Title     string
	Intro     string
	Cover     string
	Category  int
	UpperID   int64
	UpperName string
	UpperFace string
	Ctime     time.Time
	Pubtime   time.Time
	FavTime   time.Time
	Release   time.Time // drives the watermark comparison
}

// Adapter is the uniform capability set over one subscription.
type Adapter interface {
	// Stream yields items newest-first. An error item terminates the stream;
	// the consumer must not advance the watermark after one.
	Stream(ctx Context) iter.Seq2[*VideoInfo, error]

	// ShouldTake reports whether an item is new relative to the watermark.
	ShouldTake(release, watermark time.Time) bool

	// Draft stamps the source relation onto a video row for insertion.
	Draft(info *VideoInfo) *store.Video

	Source() *store.VideoSource
}

// Context carries what adapters need per cycle.
type Context struct {
	Ctx    context.Context
	Client *bilibili.Client
}

// ForSource builds the adapter matching a source row's kind.
func ForSource(src *store.VideoSource) (Adapter, error) {
	switch src.Kind {
	case store.KindFavorite:
		return &favoriteAdapter{base{src}}, nil
	case store.KindCollection:
		return &collectionAdapter{base{src}}, nil
	case store.KindSubmission:
		return &submissionAdapter{base{src}}, nil
	case store.KindWatchLater:
		return &watchLaterAdapter{base{src}}, nil
	case store.KindBangumi:
		return &bangumiAdapter{base{src}}, nil
	default:
		return nil, fmt.Errorf("source: unknown kind %q", src.Kind)
	}
}

// base supplies the default capability implementations.
type base struct {
	src *store.VideoSource
}

func (b *base) Source() *store.VideoSource { return b.src }

func (b *base) ShouldTake(release, watermark time.Time) bool {
	return release.After(watermark)
}

func (b *base) Draft(info *VideoInfo) *store.Video {
	category := info.Category
	if category == 0 {
		category = 2
	}
	return &store.Video{
		SourceID:       b.src.ID,
		Bvid:           info.Bvid,
		Title:          info.Title,
		Intro:          info.Intro,
		Cover:          info.Cover,
		Category:       category,
		UpperID:        info.UpperID,
		UpperName:      info.UpperName,
		UpperFace:      info.UpperFace,
		Ctime:          info.Ctime,
		Pubtime:        info.Pubtime,
		FavTime:        info.FavTime,
		Valid:          true,
		ShouldDownload: true,
	}
}
