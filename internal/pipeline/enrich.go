package pipeline

import (
	"context"
	"errors"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/amtoaer/bili-sync-sub000/internal/bilibili"
	"github.com/amtoaer/bili-sync-sub000/internal/source"
	"github.com/amtoaer/bili-sync-sub000/internal/store"
)

// enrich resolves every untouched row of a source: video detail and tags are
// fetched in parallel, the page layout recorded, the target path rendered and
// the source rule re-evaluated against the now-complete picture.
func (p *Pipeline) enrich(ctx context.Context, src *store.VideoSource) error {
	videos, err := p.store.UnenrichedVideos(ctx, src.ID)
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		return nil
	}
	rule := source.CompileRule(src.Rule)

	for _, v := range videos {
		var (
			detail *bilibili.VideoDetail
			tags   []string
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			detail, err = p.client.VideoDetail(gctx, v.Bvid)
			return err
		})
		g.Go(func() error {
			var err error
			tags, err = p.client.VideoTags(gctx, v.Bvid)
			return err
		})
		if err := g.Wait(); err != nil {
			if errors.Is(err, bilibili.ErrNotFound) {
				p.logger.Warn().
					Str("event", "enrich.gone").
					Str("bvid", v.Bvid).
					Msg("video no longer exists, marking invalid")
				if err := p.store.MarkVideoInvalid(ctx, v.ID); err != nil {
					return err
				}
				continue
			}
			if errors.Is(err, bilibili.ErrRiskControl) {
				return err
			}
			p.logger.Error().
				Str("event", "enrich.failed").
				Str("bvid", v.Bvid).
				Err(err).
				Msg("enrichment failed, will retry next cycle")
			continue
		}

		pages := make([]store.Page, 0, len(detail.Pages))
		for _, pi := range detail.Pages {
			w, h := pi.Dimension.Normalized()
			pages = append(pages, store.Page{
				VideoID:  v.ID,
				Cid:      pi.Cid,
				Pid:      pi.Page,
				Title:    pi.Part,
				Width:    w,
				Height:   h,
				Duration: pi.Duration,
				Image:    pi.FirstFrame,
			})
		}

		single := len(pages) == 1
		v.Tags = tags
		v.SinglePage = &single

		name, err := p.tpl.video.Render(videoContext(v))
		if err != nil {
			return err
		}
		v.Path = filepath.Join(src.Path, name)
		v.ShouldDownload = rule.Eval(source.RuleInput{
			Title:     v.Title,
			Tags:      tags,
			FavTime:   v.FavTime,
			PubTime:   v.Pubtime,
			PageCount: len(pages),
		})

		if err := p.store.SetEnriched(ctx, v, pages); err != nil {
			return err
		}
	}
	return nil
}
