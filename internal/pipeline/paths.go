package pipeline

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/amtoaer/bili-sync-sub000/internal/pathtpl"
	"github.com/amtoaer/bili-sync-sub000/internal/store"
)

// templates holds the compiled path templates for one cycle. They are rebuilt
// whenever the config version changes.
type templates struct {
	video *pathtpl.Template
	page  *pathtpl.Template
}

func compileTemplates(videoName, pageName string) (*templates, error) {
	v, err := pathtpl.Compile(videoName)
	if err != nil {
		return nil, err
	}
	p, err := pathtpl.Compile(pageName)
	if err != nil {
		return nil, err
	}
	return &templates{video: v, page: p}, nil
}

func videoContext(v *store.Video) map[string]any {
	return map[string]any{
		"bvid":       v.Bvid,
		"title":      v.Title,
		"upper_name": v.UpperName,
		"upper_mid":  strconv.FormatInt(v.UpperID, 10),
		"pubtime":    v.Pubtime.Format("2006-01-02"),
		"fav_time":   v.FavTime.Format("2006-01-02"),
	}
}

func pageContext(v *store.Video, p *store.Page) map[string]any {
	ctx := videoContext(v)
	ctx["ptitle"] = p.Title
	ctx["pid"] = strconv.Itoa(p.Pid)
	ctx["pid_pad"] = fmt.Sprintf("%02d", p.Pid)
	return ctx
}

// pageBase computes the extension-less path every page artifact hangs off.
// Multi-page videos follow the Kodi season layout; single-page videos are
// flat movies inside the video directory.
func (t *templates) pageBase(v *store.Video, p *store.Page) (string, error) {
	name, err := t.page.Render(pageContext(v, p))
	if err != nil {
		return "", err
	}
	if v.SinglePage != nil && *v.SinglePage {
		return filepath.Join(v.Path, name), nil
	}
	return filepath.Join(v.Path, "Season 1", fmt.Sprintf("%s - S01E%02d", name, p.Pid)), nil
}

// upperDir shards uploader assets by the first character of the mid so one
// directory never collects millions of entries.
func upperDir(base string, mid int64) string {
	id := strconv.FormatInt(mid, 10)
	return filepath.Join(base, id[:1], id)
}
