package source

import (
	"iter"
	"time"

	"github.com/amtoaer/bili-sync-sub000/internal/bilibili"
)

// favoriteAdapter paginates /x/v3/fav/resource/list, 20 per page, ordered by
// collection time descending.
type favoriteAdapter struct{ base }

func (a *favoriteAdapter) Stream(sc Context) iter.Seq2[*VideoInfo, error] {
	return func(yield func(*VideoInfo, error) bool) {
		for pn := 1; ; pn++ {
			page, err := sc.Client.FavoriteList(sc.Ctx, a.src.FID, pn)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, m := range page.Medias {
				info := &VideoInfo{
					Bvid:      m.Bvid,
					Title:     m.Title,
					Intro:     m.Intro,
					Cover:     m.Cover,
					Category:  m.Type,
					UpperID:   m.Upper.Mid,
					UpperName: m.Upper.Name,
					UpperFace: m.Upper.Face,
					Ctime:     time.Unix(m.Ctime, 0),
					Pubtime:   time.Unix(m.Pubtime, 0),
					FavTime:   time.Unix(m.FavTime, 0),
					Release:   time.Unix(m.FavTime, 0),
				}
				if !yield(info, nil) {
					return
				}
			}
			if !page.HasMore || len(page.Medias) == 0 {
				return
			}
		}
	}
}

// collectionAdapter walks either the series or the season endpoint, 30 per
// page, publication-descending.
type collectionAdapter struct{ base }

func (a *collectionAdapter) Stream(sc Context) iter.Seq2[*VideoInfo, error] {
	return func(yield func(*VideoInfo, error) bool) {
		fetch := sc.Client.SeriesArchives
		if a.src.CollectionKind == "season" {
			fetch = sc.Client.SeasonArchives
		}
		seen := 0
		for pn := 1; ; pn++ {
			archives, total, err := fetch(sc.Ctx, a.src.UpperID, a.src.CollectionID, pn)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(archives) == 0 {
				return
			}
			for _, ar := range archives {
				// the listing has no fav_time; publication stands in so rule
				// evaluation still has a value
				info := &VideoInfo{
					Bvid:    ar.Bvid,
					Title:   ar.Title,
					Cover:   ar.Pic,
					Ctime:   time.Unix(ar.Ctime, 0),
					Pubtime: time.Unix(ar.Pubdate, 0),
					FavTime: time.Unix(ar.Pubdate, 0),
					Release: time.Unix(ar.Pubdate, 0),
				}
				if !yield(info, nil) {
					return
				}
			}
			seen += len(archives)
			if seen >= total {
				return
			}
		}
	}
}

// submissionAdapter walks an uploader's feed with WBI-signed pages; the
// upstream reports the total count, so pagination stops once covered.
type submissionAdapter struct{ base }

func (a *submissionAdapter) Stream(sc Context) iter.Seq2[*VideoInfo, error] {
	return func(yield func(*VideoInfo, error) bool) {
		for pn := 1; ; pn++ {
			page, err := sc.Client.UploaderSubmissions(sc.Ctx, a.src.UpperID, pn)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page.List.Vlist) == 0 {
				return
			}
			for _, e := range page.List.Vlist {
				info := &VideoInfo{
					Bvid:      e.Bvid,
					Title:     e.Title,
					Intro:     e.Description,
					Cover:     e.Pic,
					UpperID:   e.Mid,
					UpperName: e.Author,
					Ctime:     time.Unix(e.Created, 0),
					Pubtime:   time.Unix(e.Created, 0),
					FavTime:   time.Unix(e.Created, 0),
					Release:   time.Unix(e.Created, 0),
				}
				if !yield(info, nil) {
					return
				}
			}
			if page.Page.Count <= pn*30 {
				return
			}
		}
	}
}

// watchLaterAdapter reads the single-shot to-view queue.
type watchLaterAdapter struct{ base }

func (a *watchLaterAdapter) Stream(sc Context) iter.Seq2[*VideoInfo, error] {
	return func(yield func(*VideoInfo, error) bool) {
		list, err := sc.Client.WatchLater(sc.Ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, e := range list {
			info := &VideoInfo{
				Bvid:      e.Bvid,
				Title:     e.Title,
				Intro:     e.Desc,
				Cover:     e.Pic,
				UpperID:   e.Owner.Mid,
				UpperName: e.Owner.Name,
				UpperFace: e.Owner.Face,
				Ctime:     time.Unix(e.Ctime, 0),
				Pubtime:   time.Unix(e.Pubdate, 0),
				FavTime:   time.Unix(e.AddAt, 0),
				Release:   time.Unix(e.AddAt, 0),
			}
			if !yield(info, nil) {
				return
			}
		}
	}
}

// bangumiAdapter resolves a season and yields its episodes; with
// download_all_seasons it also walks the cross-referenced seasons.
// ShouldTake is always true: episode lists are re-scanned every cycle.
type bangumiAdapter struct{ base }

func (a *bangumiAdapter) ShouldTake(release, watermark time.Time) bool { return true }

func (a *bangumiAdapter) Stream(sc Context) iter.Seq2[*VideoInfo, error] {
	return func(yield func(*VideoInfo, error) bool) {
		season, err := sc.Client.BangumiSeasonBy(sc.Ctx, a.src.SeasonID, a.src.EpID, a.src.MediaID)
		if err != nil {
			yield(nil, err)
			return
		}
		if !a.yieldSeason(yield, season) {
			return
		}
		if !a.src.DownloadAllSeasons {
			return
		}
		for _, ref := range season.Seasons {
			if ref.SeasonID == season.SeasonID {
				continue
			}
			other, err := sc.Client.BangumiSeasonBy(sc.Ctx, ref.SeasonID, 0, 0)
			if err != nil {
				yield(nil, err)
				return
			}
			if !a.yieldSeason(yield, other) {
				return
			}
		}
	}
}

func (a *bangumiAdapter) yieldSeason(yield func(*VideoInfo, error) bool, season *bilibili.BangumiSeason) bool {
	// newest-first to match the other feeds
	for i := len(season.Episodes) - 1; i >= 0; i-- {
		ep := season.Episodes[i]
		title := ep.LongTitle
		if title == "" {
			title = ep.Title
		}
		info := &VideoInfo{
			Bvid:    ep.Bvid,
			Title:   season.SeasonTitle + " " + title,
			Intro:   season.Evaluate,
			Cover:   ep.Cover,
			Ctime:   time.Unix(ep.PubTime, 0),
			Pubtime: time.Unix(ep.PubTime, 0),
			FavTime: time.Unix(ep.PubTime, 0),
			Release: time.Unix(ep.PubTime, 0),
		}
		if !yield(info, nil) {
			return false
		}
	}
	return true
}
