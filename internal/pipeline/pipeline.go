// Package pipeline runs the three-stage sync cycle: refresh discovers new
// remote items per source, enrich resolves their page layout and metadata,
// and download materializes every approved item on disk.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/amtoaer/bili-sync-sub000/internal/bilibili"
	"github.com/amtoaer/bili-sync-sub000/internal/config"
	"github.com/amtoaer/bili-sync-sub000/internal/downloader"
	"github.com/amtoaer/bili-sync-sub000/internal/log"
	"github.com/amtoaer/bili-sync-sub000/internal/metrics"
	"github.com/amtoaer/bili-sync-sub000/internal/source"
	"github.com/amtoaer/bili-sync-sub000/internal/store"
)

// ErrAborted marks a cycle cut short by upstream risk control. Statuses
// accumulated before the abort are already persisted.
var ErrAborted = errors.New("pipeline: aborted by risk control")

const insertChunk = 10

// Pipeline drives sync cycles over the store and the upstream client.
type Pipeline struct {
	store    *store.Store
	client   *bilibili.Client
	dl       *downloader.Downloader
	cfg      *config.Config
	tpl      *templates
	tplCache *config.Versioned[*templates]
	logger   zerolog.Logger

	upperBase string
	dryRun    bool

	// uploaders already materialized this cycle, so N videos of one
	// uploader write the avatar and person sidecar once.
	mu      sync.Mutex
	visited map[int64]struct{}
}

// New builds a pipeline. upperBase is the directory uploader assets live
// under; dryRun makes the download stage log instead of touching disk.
func New(st *store.Store, client *bilibili.Client, cfg *config.Config, upperBase string, dryRun bool) (*Pipeline, error) {
	cache := config.NewVersioned(func(c *config.Config) (*templates, error) {
		return compileTemplates(c.VideoName, c.PageName)
	})
	tpl, err := cache.Get(cfg, 0)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return &Pipeline{
		store:     st,
		client:    client,
		dl:        downloader.New(client, cfg.FfmpegPath),
		cfg:       cfg,
		tpl:       tpl,
		tplCache:  cache,
		logger:    log.WithComponent("pipeline"),
		upperBase: upperBase,
		dryRun:    dryRun,
	}, nil
}

// reloadConfig picks up the stored config when its version moved, so edits
// made through the store (including a rotated credential) apply on the next
// cycle without a restart.
func (p *Pipeline) reloadConfig(ctx context.Context) error {
	payload, version, err := p.store.LoadConfig(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		return nil
	}
	cfg, err := config.Parse(payload)
	if err != nil {
		return err
	}
	tpl, err := p.tplCache.Get(cfg, version)
	if err != nil {
		return err
	}
	p.cfg = cfg
	p.tpl = tpl
	p.dl = downloader.New(p.client, cfg.FfmpegPath)
	p.client.SetRateLimit(cfg.RateLimit.Budget())
	p.client.SetCredential(&cfg.Credential)
	return nil
}

// RunCycle processes every enabled source through all three stages. A risk
// control signal anywhere aborts the remainder of the cycle.
func (p *Pipeline) RunCycle(ctx context.Context) error {
	p.mu.Lock()
	p.visited = make(map[int64]struct{})
	p.mu.Unlock()

	if err := p.reloadConfig(ctx); err != nil {
		metrics.CyclesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("pipeline: config reload: %w", err)
	}

	sources, err := p.store.EnabledSources(ctx)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("error").Inc()
		return err
	}
	for _, src := range sources {
		if err := p.runSource(ctx, src); err != nil {
			if errors.Is(err, bilibili.ErrRiskControl) {
				metrics.RiskControlHits.Inc()
				metrics.CyclesTotal.WithLabelValues("aborted").Inc()
				p.logger.Warn().
					Str("event", "cycle.aborted").
					Int64("source_id", src.ID).
					Msg("risk control triggered, aborting cycle")
				return fmt.Errorf("%w: %w", ErrAborted, err)
			}
			// other failures are per-source; the cycle continues
			p.logger.Error().
				Str("event", "source.failed").
				Int64("source_id", src.ID).
				Err(err).
				Msg("source processing failed")
		}
	}
	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	return nil
}

func (p *Pipeline) runSource(ctx context.Context, src *store.VideoSource) error {
	adapter, err := source.ForSource(src)
	if err != nil {
		return err
	}
	if err := p.refresh(ctx, adapter); err != nil {
		return fmt.Errorf("refresh source %d: %w", src.ID, err)
	}
	if err := p.enrich(ctx, src); err != nil {
		return fmt.Errorf("enrich source %d: %w", src.ID, err)
	}
	if err := p.download(ctx, src); err != nil {
		return fmt.Errorf("download source %d: %w", src.ID, err)
	}
	return nil
}

// refresh pulls the source's feed newest-first, stops at the first item at or
// below the watermark, and inserts the rest in chunks. The watermark only
// advances after the stream ended without error, so a mid-stream failure
// leaves already-inserted rows behind but re-scans them next cycle.
func (p *Pipeline) refresh(ctx context.Context, adapter source.Adapter) error {
	src := adapter.Source()
	watermark := src.LatestRowAt

	var (
		newest   time.Time
		inserted int
		batch    = make([]*store.Video, 0, insertChunk)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.store.InsertVideos(ctx, batch); err != nil {
			return err
		}
		inserted += len(batch)
		batch = batch[:0]
		return nil
	}

	for info, err := range adapter.Stream(source.Context{Ctx: ctx, Client: p.client}) {
		if err != nil {
			// keep what landed, do not move the watermark
			if ferr := flush(); ferr != nil {
				return ferr
			}
			return err
		}
		if !adapter.ShouldTake(info.Release, watermark) {
			break
		}
		if info.Release.After(newest) {
			newest = info.Release
		}
		batch = append(batch, adapter.Draft(info))
		if len(batch) == insertChunk {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	metrics.VideosRefreshed.Add(float64(inserted))
	if !newest.IsZero() {
		if err := p.store.AdvanceWatermark(ctx, src.ID, newest); err != nil {
			return err
		}
	}
	p.logger.Debug().
		Str("event", "refresh.done").
		Int64("source_id", src.ID).
		Int("inserted", inserted).
		Msg("refresh finished")
	return nil
}
