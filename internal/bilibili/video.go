package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Detail endpoint payloads. Field names follow the upstream JSON.

// Dimension is the intrinsic size of a stream; Rotate=1 means the stored
// width/height are swapped.
type Dimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Rotate int `json:"rotate"`
}

// Normalized returns width/height with rotation applied.
func (d Dimension) Normalized() (int, int) {
	if d.Rotate != 0 {
		return d.Height, d.Width
	}
	return d.Width, d.Height
}

// PageInfo is one playable unit of a video.
type PageInfo struct {
	Cid        int64     `json:"cid"`
	Page       int       `json:"page"`
	Part       string    `json:"part"`
	Duration   int64     `json:"duration"`
	FirstFrame string    `json:"first_frame"`
	Dimension  Dimension `json:"dimension"`
}

// Owner is the uploader of a video.
type Owner struct {
	Mid  int64  `json:"mid"`
	Name string `json:"name"`
	Face string `json:"face"`
}

// VideoDetail is the /x/web-interface/view payload.
type VideoDetail struct {
	Bvid    string     `json:"bvid"`
	Aid     int64      `json:"aid"`
	Title   string     `json:"title"`
	Desc    string     `json:"desc"`
	Pic     string     `json:"pic"`
	Pubdate int64      `json:"pubdate"`
	Ctime   int64      `json:"ctime"`
	Owner   Owner      `json:"owner"`
	Pages   []PageInfo `json:"pages"`
}

// VideoDetail fetches the detail payload for one bvid.
func (c *Client) VideoDetail(ctx context.Context, bvid string) (*VideoDetail, error) {
	var out VideoDetail
	q := url.Values{"bvid": {bvid}}
	if err := c.GetJSON(ctx, c.endpoint("/x/web-interface/view"), q, &out); err != nil {
		return nil, fmt.Errorf("video detail %s: %w", bvid, err)
	}
	return &out, nil
}

// VideoTags fetches the tag names attached to a video.
func (c *Client) VideoTags(ctx context.Context, bvid string) ([]string, error) {
	var raw []struct {
		TagName string `json:"tag_name"`
	}
	q := url.Values{"bvid": {bvid}}
	if err := c.GetJSON(ctx, c.endpoint("/x/tag/archive/tags"), q, &raw); err != nil {
		return nil, fmt.Errorf("video tags %s: %w", bvid, err)
	}
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		tags = append(tags, t.TagName)
	}
	return tags, nil
}

// PlayURL manifest, raw shape. The streams package interprets it.

type DurlEntry struct {
	URL        string   `json:"url"`
	BackupURL  []string `json:"backup_url"`
	BackupURL2 []string `json:"backupUrl"`
	Length     int64    `json:"length"`
}

// Backups returns the entry's mirror urls under whichever spelling the
// manifest used.
func (d DurlEntry) Backups() []string {
	if len(d.BackupURL) > 0 {
		return d.BackupURL
	}
	return d.BackupURL2
}

type DashStream struct {
	ID         int64    `json:"id"`
	BaseURL    string   `json:"base_url"`
	BaseURL2   string   `json:"baseUrl"`
	BackupURL  []string `json:"backup_url"`
	BackupURL2 []string `json:"backupUrl"`
	Codecs     string   `json:"codecs"`
	Bandwidth  int64    `json:"bandwidth"`
}

// URL returns whichever base url spelling the manifest used.
func (s DashStream) URL() string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	return s.BaseURL2
}

// Backups returns the stream's mirror urls under whichever spelling the
// manifest used.
func (s DashStream) Backups() []string {
	if len(s.BackupURL) > 0 {
		return s.BackupURL
	}
	return s.BackupURL2
}

type Dash struct {
	Video []DashStream `json:"video"`
	Audio []DashStream `json:"audio"`
	Dolby *struct {
		Audio []DashStream `json:"audio"`
	} `json:"dolby"`
	Flac *struct {
		Audio *DashStream `json:"audio"`
	} `json:"flac"`
}

// PlayURLManifest is the /x/player/wbi/playurl payload.
type PlayURLManifest struct {
	Format  string      `json:"format"`
	IsHTML5 bool        `json:"is_html5"`
	Durl    []DurlEntry `json:"durl"`
	Dash    *Dash       `json:"dash"`
}

// PlayURL fetches the stream manifest for one page. WBI-signed.
func (c *Client) PlayURL(ctx context.Context, bvid string, cid int64) (*PlayURLManifest, error) {
	var out PlayURLManifest
	q := url.Values{
		"bvid":  {bvid},
		"cid":   {strconv.FormatInt(cid, 10)},
		"qn":    {"127"},
		"fnval": {"4048"},
		"fourk": {"1"},
	}
	if err := c.GetJSONWBI(ctx, c.endpoint("/x/player/wbi/playurl"), q, &out); err != nil {
		return nil, fmt.Errorf("playurl %s cid=%d: %w", bvid, cid, err)
	}
	return &out, nil
}

// DanmakuSegment fetches one 360 s protobuf segment of bullet comments.
// segmentIndex is 1-based.
func (c *Client) DanmakuSegment(ctx context.Context, aid, cid int64, segmentIndex int) ([]byte, error) {
	q := url.Values{
		"type":          {"1"},
		"oid":           {strconv.FormatInt(cid, 10)},
		"pid":           {strconv.FormatInt(aid, 10)},
		"segment_index": {strconv.Itoa(segmentIndex)},
	}
	body, err := c.GetBytes(ctx, c.endpoint("/x/v2/dm/web/seg.so"), q)
	if err != nil {
		return nil, fmt.Errorf("danmaku segment %d cid=%d: %w", segmentIndex, cid, err)
	}
	return body, nil
}

// SubtitleTrack describes one subtitle language available for a page.
type SubtitleTrack struct {
	Lan         string `json:"lan"`
	LanDoc      string `json:"lan_doc"`
	SubtitleURL string `json:"subtitle_url"`
}

// SubtitleTracks enumerates subtitle tracks via the player-v2 endpoint.
func (c *Client) SubtitleTracks(ctx context.Context, aid, cid int64) ([]SubtitleTrack, error) {
	var out struct {
		Subtitle struct {
			Subtitles []SubtitleTrack `json:"subtitles"`
		} `json:"subtitle"`
	}
	q := url.Values{
		"aid": {strconv.FormatInt(aid, 10)},
		"cid": {strconv.FormatInt(cid, 10)},
	}
	if err := c.GetJSON(ctx, c.endpoint("/x/player/v2"), q, &out); err != nil {
		return nil, fmt.Errorf("subtitle tracks cid=%d: %w", cid, err)
	}
	return out.Subtitle.Subtitles, nil
}

// SubtitleCue is one cue of a subtitle track body.
type SubtitleCue struct {
	From    float64 `json:"from"`
	To      float64 `json:"to"`
	Content string  `json:"content"`
}

// SubtitleBody fetches and parses one track's cue list. Track URLs are
// protocol-relative.
func (c *Client) SubtitleBody(ctx context.Context, trackURL string) ([]SubtitleCue, error) {
	if len(trackURL) >= 2 && trackURL[:2] == "//" {
		trackURL = "https:" + trackURL
	}
	body, err := c.GetBytes(ctx, trackURL, nil)
	if err != nil {
		return nil, fmt.Errorf("subtitle body: %w", err)
	}
	var parsed struct {
		Body []SubtitleCue `json:"body"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("subtitle body: %w", err)
	}
	return parsed.Body, nil
}
