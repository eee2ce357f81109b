package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/amtoaer/bili-sync-sub000/internal/bilibili"
	"github.com/amtoaer/bili-sync-sub000/internal/metrics"
	"github.com/amtoaer/bili-sync-sub000/internal/nfo"
	"github.com/amtoaer/bili-sync-sub000/internal/status"
	"github.com/amtoaer/bili-sync-sub000/internal/store"
)

const statusFlushSize = 10

// statusBatch accumulates per-row status writes and flushes them in groups
// so a crash mid-stage loses at most a few rows of progress.
type statusBatch struct {
	mu     sync.Mutex
	st     *store.Store
	videos []*store.Video
	pages  []*store.Page
}

func (b *statusBatch) addVideo(ctx context.Context, v *store.Video) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.videos = append(b.videos, v)
	if len(b.videos) < statusFlushSize {
		return nil
	}
	err := b.st.SaveVideoStatus(ctx, b.videos)
	b.videos = b.videos[:0]
	return err
}

func (b *statusBatch) addPage(ctx context.Context, p *store.Page) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages = append(b.pages, p)
	if len(b.pages) < statusFlushSize {
		return nil
	}
	err := b.st.SavePageStatus(ctx, b.pages)
	b.pages = b.pages[:0]
	return err
}

func (b *statusBatch) flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.st.SaveVideoStatus(ctx, b.videos); err != nil {
		return err
	}
	b.videos = b.videos[:0]
	if err := b.st.SavePageStatus(ctx, b.pages); err != nil {
		return err
	}
	b.pages = b.pages[:0]
	return nil
}

// download fans the source's pending videos out over the configured
// concurrency: one goroutine per video up to the video bound, pages inside a
// video sharing one weighted semaphore.
func (p *Pipeline) download(ctx context.Context, src *store.VideoSource) error {
	targets, err := p.store.DownloadTargets(ctx, src.ID)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return nil
	}
	if p.dryRun {
		for _, v := range targets {
			p.logger.Info().
				Str("event", "download.dry_run").
				Str("bvid", v.Bvid).
				Str("path", v.Path).
				Msg("would download")
		}
		return nil
	}

	batch := &statusBatch{st: p.store}
	pageSem := semaphore.NewWeighted(int64(p.cfg.Concurrency.Page))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency.Video)
	for _, v := range targets {
		g.Go(func() error {
			return p.processVideo(gctx, v, pageSem, batch)
		})
	}
	err = g.Wait()
	// persist whatever completed before a failure
	if ferr := batch.flush(ctx); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

// processVideo runs the five video-level sub-tasks in order. A risk-control
// signal persists the partial status and aborts; any other failure marks the
// slot and moves on.
func (p *Pipeline) processVideo(ctx context.Context, v *store.Video, pageSem *semaphore.Weighted, batch *statusBatch) error {
	st := status.New(v.DownloadStatus)
	single := v.SinglePage != nil && *v.SinglePage
	owner := v.UpperID != 0 && p.claimUpper(v.UpperID)

	tasks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"cover", func(ctx context.Context) error {
			if single {
				return nil
			}
			return p.fetchCoverPair(ctx, v.Cover,
				filepath.Join(v.Path, "poster.jpg"),
				filepath.Join(v.Path, "fanart.jpg"))
		}},
		{"info", func(ctx context.Context) error {
			if single {
				return nil
			}
			data, err := nfo.TVShow(nfoVideo(v), p.cfg.NfoTimeType)
			if err != nil {
				return err
			}
			return writeSidecar(filepath.Join(v.Path, "tvshow.nfo"), data)
		}},
		{"upper_face", func(ctx context.Context) error {
			if !owner || v.UpperFace == "" {
				return nil
			}
			return p.dl.Fetch(ctx, v.UpperFace,
				filepath.Join(upperDir(p.upperBase, v.UpperID), "folder.jpg"))
		}},
		{"upper_info", func(ctx context.Context) error {
			if !owner {
				return nil
			}
			data, err := nfo.Person(v.UpperID, v.Pubtime)
			if err != nil {
				return err
			}
			return writeSidecar(filepath.Join(upperDir(p.upperBase, v.UpperID), "person.nfo"), data)
		}},
		{"pages", func(ctx context.Context) error {
			return p.processPages(ctx, v, pageSem, batch)
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
			// the signal says nothing about this item; leave its counter alone
			results[i] = status.Ignored
			for j := i + 1; j < len(tasks); j++ {
				results[j] = status.Ignored
			}
			st.Apply(results)
			v.DownloadStatus = st.Value()
			if serr := batch.addVideo(ctx, v); serr != nil {
				p.logger.Error().Err(serr).Msg("status save failed during abort")
			}
			return err
		case errors.Is(err, bilibili.ErrNotFound):
			results[i] = status.Ignored
		default:
			results[i] = status.Failed
			metrics.TaskFailures.WithLabelValues(t.name).Inc()
			p.logger.Warn().
				Str("event", "task.failed").
				Str("bvid", v.Bvid).
				Str("task", t.name).
				Err(err).
				Msg("video sub-task failed")
		}
	}

	st.Apply(results)
	v.DownloadStatus = st.Value()
	if st.Completed() {
		metrics.VideosCompleted.Inc()
		p.logger.Info().
			Str("event", "video.completed").
			Str("bvid", v.Bvid).
			Str("path", v.Path).
			Msg("video fully downloaded")
	}
	return batch.addVideo(ctx, v)
}

// processPages dispatches the video's pages under the shared page semaphore
// and folds their outcomes into the video's pages slot.
func (p *Pipeline) processPages(ctx context.Context, v *store.Video, sem *semaphore.Weighted, batch *statusBatch) error {
	pages, err := p.store.PagesOf(ctx, v.ID)
	if err != nil {
		return err
	}
	allDone := true
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, pg := range pages {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			done, err := p.processPage(gctx, v, pg, batch)
			if err != nil {
				return err
			}
			if !done {
				mu.Lock()
				allDone = false
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if !allDone {
		return fmt.Errorf("video %s: some pages incomplete", v.Bvid)
	}
	return nil
}

func (p *Pipeline) fetchCoverPair(ctx context.Context, url, poster, fanart string) error {
	if url == "" {
		return nil
	}
	if err := p.dl.Fetch(ctx, url, poster); err != nil {
		return err
	}
	return copyFile(poster, fanart)
}

func nfoVideo(v *store.Video) nfo.Video {
	return nfo.Video{
		Bvid:      v.Bvid,
		Name:      v.Title,
		Intro:     v.Intro,
		UpperID:   v.UpperID,
		UpperName: v.UpperName,
		FavTime:   v.FavTime,
		PubTime:   v.Pubtime,
		Tags:      v.Tags,
	}
}

func (p *Pipeline) claimUpper(mid int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.visited[mid]; ok {
		return false
	}
	p.visited[mid] = struct{}{}
	return true
}

// writeSidecar atomically replaces a metadata file so readers never see a
// half-written sidecar.
func writeSidecar(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
