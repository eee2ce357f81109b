package bilibili

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Feed endpoints backing the five source kinds. Adapters in internal/source
// drive the pagination; these calls fetch one page each.

// FavMedia is one entry of a favorite list page.
type FavMedia struct {
	Bvid  string `json:"bvid"`
	Title string `json:"title"`
	Cover string `json:"cover"`
	Intro string `json:"intro"`
	Type  int    `json:"type"`
	Upper struct {
		Mid  int64  `json:"mid"`
		Name string `json:"name"`
		Face string `json:"face"`
	} `json:"upper"`
	Ctime   int64 `json:"ctime"`
	Pubtime int64 `json:"pubtime"`
	FavTime int64 `json:"fav_time"`
}

// FavListPage is one page of /x/v3/fav/resource/list.
type FavListPage struct {
	Info struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	} `json:"info"`
	Medias  []FavMedia `json:"medias"`
	HasMore bool       `json:"has_more"`
}

// FavoriteList fetches one 20-item page of a favorite list, newest first.
func (c *Client) FavoriteList(ctx context.Context, fid int64, pn int) (*FavListPage, error) {
	var out FavListPage
	q := url.Values{
		"media_id": {strconv.FormatInt(fid, 10)},
		"pn":       {strconv.Itoa(pn)},
		"ps":       {"20"},
		"order":    {"mtime"},
		"type":     {"0"},
	}
	if err := c.GetJSON(ctx, c.endpoint("/x/v3/fav/resource/list"), q, &out); err != nil {
		return nil, fmt.Errorf("favorite list %d page %d: %w", fid, pn, err)
	}
	return &out, nil
}

// CollectionArchive is one entry of a series/season listing.
type CollectionArchive struct {
	Bvid    string `json:"bvid"`
	Title   string `json:"title"`
	Pic     string `json:"pic"`
	Ctime   int64  `json:"ctime"`
	Pubdate int64  `json:"pubdate"`
}

type collectionPage struct {
	Archives []CollectionArchive `json:"archives"`
	Page     struct {
		Total int `json:"total"`
	} `json:"page"`
}

// SeriesArchives fetches one 30-item page of a creator series, newest first.
func (c *Client) SeriesArchives(ctx context.Context, mid, seriesID int64, pn int) ([]CollectionArchive, int, error) {
	var out collectionPage
	q := url.Values{
		"mid":       {strconv.FormatInt(mid, 10)},
		"series_id": {strconv.FormatInt(seriesID, 10)},
		"pn":        {strconv.Itoa(pn)},
		"ps":        {"30"},
		"sort":      {"desc"},
	}
	if err := c.GetJSON(ctx, c.endpoint("/x/series/archives"), q, &out); err != nil {
		return nil, 0, fmt.Errorf("series %d page %d: %w", seriesID, pn, err)
	}
	return out.Archives, out.Page.Total, nil
}

// SeasonArchives fetches one 30-item page of a creator season, newest first.
func (c *Client) SeasonArchives(ctx context.Context, mid, seasonID int64, pn int) ([]CollectionArchive, int, error) {
	var out collectionPage
	q := url.Values{
		"mid":          {strconv.FormatInt(mid, 10)},
		"season_id":    {strconv.FormatInt(seasonID, 10)},
		"page_num":     {strconv.Itoa(pn)},
		"page_size":    {"30"},
		"sort_reverse": {"true"},
	}
	if err := c.GetJSON(ctx, c.endpoint("/x/polymer/web-space/seasons_archives_list"), q, &out); err != nil {
		return nil, 0, fmt.Errorf("season %d page %d: %w", seasonID, pn, err)
	}
	return out.Archives, out.Page.Total, nil
}

// SubmissionEntry is one entry of an uploader's feed.
type SubmissionEntry struct {
	Bvid        string `json:"bvid"`
	Title       string `json:"title"`
	Pic         string `json:"pic"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Mid         int64  `json:"mid"`
	Created     int64  `json:"created"`
}

// SubmissionPage is one WBI-signed page of /x/space/wbi/arc/search.
type SubmissionPage struct {
	List struct {
		Vlist []SubmissionEntry `json:"vlist"`
	} `json:"list"`
	Page struct {
		Count int `json:"count"`
		Pn    int `json:"pn"`
		Ps    int `json:"ps"`
	} `json:"page"`
}

// UploaderSubmissions fetches one 30-item page of an uploader's feed by
// publication date, newest first.
func (c *Client) UploaderSubmissions(ctx context.Context, mid int64, pn int) (*SubmissionPage, error) {
	var out SubmissionPage
	q := url.Values{
		"mid":   {strconv.FormatInt(mid, 10)},
		"order": {"pubdate"},
		"pn":    {strconv.Itoa(pn)},
		"ps":    {"30"},
	}
	if err := c.GetJSONWBI(ctx, c.endpoint("/x/space/wbi/arc/search"), q, &out); err != nil {
		return nil, fmt.Errorf("submissions mid=%d page %d: %w", mid, pn, err)
	}
	return &out, nil
}

// ToViewEntry is one entry of the watch-later queue.
type ToViewEntry struct {
	Bvid    string `json:"bvid"`
	Title   string `json:"title"`
	Pic     string `json:"pic"`
	Desc    string `json:"desc"`
	Ctime   int64  `json:"ctime"`
	Pubdate int64  `json:"pubdate"`
	AddAt   int64  `json:"add_at"`
	Owner   Owner  `json:"owner"`
}

// WatchLater fetches the whole watch-later queue; the endpoint does not
// paginate.
func (c *Client) WatchLater(ctx context.Context) ([]ToViewEntry, error) {
	var out struct {
		List []ToViewEntry `json:"list"`
	}
	if err := c.GetJSON(ctx, c.endpoint("/x/v2/history/toview"), nil, &out); err != nil {
		return nil, fmt.Errorf("watch later: %w", err)
	}
	return out.List, nil
}

// BangumiEpisode is one episode of a season.
type BangumiEpisode struct {
	ID        int64  `json:"id"`
	Aid       int64  `json:"aid"`
	Bvid      string `json:"bvid"`
	Cid       int64  `json:"cid"`
	Title     string `json:"title"`
	LongTitle string `json:"long_title"`
	Cover     string `json:"cover"`
	PubTime   int64  `json:"pub_time"`
	Duration  int64  `json:"duration"`
}

// BangumiSeason is the /pgc/view/web/season payload, reduced to what the
// adapter needs.
type BangumiSeason struct {
	SeasonID    int64            `json:"season_id"`
	MediaID     int64            `json:"media_id"`
	SeasonTitle string           `json:"season_title"`
	Title       string           `json:"title"`
	Evaluate    string           `json:"evaluate"`
	Cover       string           `json:"cover"`
	Episodes    []BangumiEpisode `json:"episodes"`
	Seasons     []struct {
		SeasonID    int64  `json:"season_id"`
		SeasonTitle string `json:"season_title"`
	} `json:"seasons"`
}

// BangumiSeasonBy resolves a season by exactly one of season, ep or media id.
func (c *Client) BangumiSeasonBy(ctx context.Context, seasonID, epID, mediaID int64) (*BangumiSeason, error) {
	q := url.Values{}
	switch {
	case seasonID != 0:
		q.Set("season_id", strconv.FormatInt(seasonID, 10))
	case epID != 0:
		q.Set("ep_id", strconv.FormatInt(epID, 10))
	case mediaID != 0:
		q.Set("media_id", strconv.FormatInt(mediaID, 10))
	default:
		return nil, fmt.Errorf("bangumi: no season/ep/media id")
	}
	var out BangumiSeason
	if err := c.GetJSON(ctx, c.endpoint("/pgc/view/web/season"), q, &out); err != nil {
		return nil, fmt.Errorf("bangumi season: %w", err)
	}
	return &out, nil
}
