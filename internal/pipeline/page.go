package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/amtoaer/bili-sync-sub000/internal/bilibili"
	"github.com/amtoaer/bili-sync-sub000/internal/danmaku"
	"github.com/amtoaer/bili-sync-sub000/internal/metrics"
	"github.com/amtoaer/bili-sync-sub000/internal/nfo"
	"github.com/amtoaer/bili-sync-sub000/internal/status"
	"github.com/amtoaer/bili-sync-sub000/internal/store"
	"github.com/amtoaer/bili-sync-sub000/internal/streams"
	"github.com/amtoaer/bili-sync-sub000/internal/subtitle"
)

// danmakuSegmentSeconds is the fixed upstream segmentation of bullet
// comments.
const danmakuSegmentSeconds = 360

// processPage runs the five page-level sub-tasks in order and persists the
// page's status. It reports whether the page reached completion.
func (p *Pipeline) processPage(ctx context.Context, v *store.Video, pg *store.Page, batch *statusBatch) (bool, error) {
	base, err := p.tpl.pageBase(v, pg)
	if err != nil {
		return false, err
	}
	st := status.New(pg.DownloadStatus)
	single := v.SinglePage != nil && *v.SinglePage
	aid, err := bilibili.BvidToAid(v.Bvid)
	if err != nil {
		return false, err
	}

	tasks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"poster", func(ctx context.Context) error {
			if single {
				return p.fetchCoverPair(ctx, v.Cover, base+"-poster.jpg", base+"-fanart.jpg")
			}
			if pg.Image == "" {
				return nil
			}
			return p.dl.Fetch(ctx, pg.Image, base+"-thumb.jpg")
		}},
		{"video", func(ctx context.Context) error {
			return p.fetchMedia(ctx, v, pg, base)
		}},
		{"info", func(ctx context.Context) error {
			var data []byte
			var err error
			if single {
				data, err = nfo.Movie(nfoVideo(v), p.cfg.NfoTimeType)
			} else {
				data, err = nfo.Episode(pg.Title, pg.Pid)
			}
			if err != nil {
				return err
			}
			return writeSidecar(base+".nfo", data)
		}},
		{"danmaku", func(ctx context.Context) error {
			return p.fetchDanmaku(ctx, aid, pg, base)
		}},
		{"subtitle", func(ctx context.Context) error {
			return p.fetchSubtitles(ctx, aid, pg.Cid, base)
		}},
	}

	results := make([]status.TaskResult, len(tasks))
	for i, t := range tasks {
		switch {
		case st.Succeeded(i):
			results[i] = status.Skipped
			continue
		case !st.ShouldRun(i):
			results[i] = status.Ignored
			continue
		}
		err := t.fn(ctx)
		switch {
		case err == nil:
			results[i] = status.Succeeded
		case errors.Is(err, bilibili.ErrRiskControl):
			results[i] = status.Ignored
			for j := i + 1; j < len(tasks); j++ {
				results[j] = status.Ignored
			}
			st.Apply(results)
			pg.DownloadStatus = st.Value()
			if serr := batch.addPage(ctx, pg); serr != nil {
				p.logger.Error().Err(serr).Msg("page status save failed during abort")
			}
			return false, err
		case errors.Is(err, bilibili.ErrNotFound):
			results[i] = status.Ignored
		default:
			results[i] = status.Failed
			metrics.TaskFailures.WithLabelValues(t.name).Inc()
			p.logger.Warn().
				Str("event", "task.failed").
				Str("bvid", v.Bvid).
				Int("pid", pg.Pid).
				Str("task", t.name).
				Err(err).
				Msg("page sub-task failed")
		}
	}

	st.Apply(results)
	pg.DownloadStatus = st.Value()
	return st.Completed(), batch.addPage(ctx, pg)
}

// fetchMedia negotiates the best streams for the page and materializes the
// final container. Dash video and audio land in temp files first, then ffmpeg
// remuxes them; mixed-container manifests stream straight to the target.
func (p *Pipeline) fetchMedia(ctx context.Context, v *store.Video, pg *store.Page, base string) error {
	manifest, err := p.client.PlayURL(ctx, v.Bvid, pg.Cid)
	if err != nil {
		return err
	}
	sel, err := streams.BestStreams(manifest, p.cfg.Filter)
	if err != nil {
		return err
	}
	out := base + ".mp4"
	if sel.Mixed != nil {
		urls := append([]string{*sel.Mixed}, sel.MixedBackups...)
		if err := p.dl.FetchFirst(ctx, urls, out); err != nil {
			return err
		}
		pg.Path = out
		return nil
	}

	tmpVideo := fmt.Sprintf("%s.tmp_video", base)
	if err := p.dl.FetchFirst(ctx, sel.Video.Candidates(), tmpVideo); err != nil {
		return err
	}
	tmpAudio := ""
	if sel.Audio != nil {
		tmpAudio = fmt.Sprintf("%s.tmp_audio", base)
		if err := p.dl.FetchFirst(ctx, sel.Audio.Candidates(), tmpAudio); err != nil {
			os.Remove(tmpVideo)
			return err
		}
	}
	if err := p.dl.Merge(ctx, tmpVideo, tmpAudio, out); err != nil {
		return err
	}
	pg.Path = out
	return nil
}

// fetchDanmaku walks the page's 360-second segments, merges the decoded
// danmus and compiles them into one .ass sidecar. Pages with no danmus write
// nothing.
func (p *Pipeline) fetchDanmaku(ctx context.Context, aid int64, pg *store.Page, base string) error {
	segments := int(pg.Duration/danmakuSegmentSeconds) + 1
	var all []danmaku.Danmu
	for i := 1; i <= segments; i++ {
		raw, err := p.client.DanmakuSegment(ctx, aid, pg.Cid, i)
		if err != nil {
			return err
		}
		danmus, err := danmaku.DecodeSegment(raw)
		if err != nil {
			return err
		}
		all = append(all, danmus...)
	}
	if len(all) == 0 {
		return nil
	}
	cfg := danmaku.NewCanvasConfig(pg.Width, pg.Height, p.cfg.Danmaku)
	var buf bytes.Buffer
	if err := danmaku.WriteASS(&buf, all, cfg); err != nil {
		return err
	}
	return writeSidecar(base+".zh-CN.default.ass", buf.Bytes())
}

// fetchSubtitles renders every available track as a language-suffixed .srt.
// No tracks is not an error.
func (p *Pipeline) fetchSubtitles(ctx context.Context, aid, cid int64, base string) error {
	tracks, err := p.client.SubtitleTracks(ctx, aid, cid)
	if err != nil {
		return err
	}
	for _, track := range tracks {
		if track.SubtitleURL == "" {
			continue
		}
		cues, err := p.client.SubtitleBody(ctx, track.SubtitleURL)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := subtitle.WriteSRT(&buf, cues); err != nil {
			return err
		}
		if err := writeSidecar(base+"."+track.Lan+".srt", buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
