package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data.sqlite"), DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func boolPtr(b bool) *bool { return &b }

func TestUpsertSourceIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	src := &VideoSource{Kind: KindFavorite, Name: "fav", Path: "/media/fav", Enabled: true, FID: 42}
	require.NoError(t, s.UpsertSource(ctx, src))
	require.NotZero(t, src.ID)
	first := src.ID

	again := &VideoSource{Kind: KindFavorite, Name: "renamed", Path: "/media/fav2", Enabled: true, FID: 42}
	require.NoError(t, s.UpsertSource(ctx, again))
	assert.Equal(t, first, again.ID)

	got, err := s.SourceByID(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
}

func TestWatermarkMonotonic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	src := &VideoSource{Kind: KindWatchLater, Name: "wl", Path: "/media/wl", Enabled: true}
	require.NoError(t, s.UpsertSource(ctx, src))

	t1 := time.Unix(1000, 0)
	t0 := time.Unix(500, 0)
	require.NoError(t, s.AdvanceWatermark(ctx, src.ID, t1))
	require.NoError(t, s.AdvanceWatermark(ctx, src.ID, t0)) // must not rewind

	got, err := s.SourceByID(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, t1.Unix(), got.LatestRowAt.Unix())
}

func TestInsertVideosIgnoresDuplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	src := &VideoSource{Kind: KindFavorite, Name: "fav", Path: "/p", Enabled: true, FID: 1}
	require.NoError(t, s.UpsertSource(ctx, src))

	v := &Video{SourceID: src.ID, Bvid: "BV1Tr421n746", Title: "t", Valid: true, Category: 2}
	require.NoError(t, s.InsertVideos(ctx, []*Video{v}))
	require.NoError(t, s.InsertVideos(ctx, []*Video{{SourceID: src.ID, Bvid: "BV1Tr421n746", Title: "changed", Valid: true}}))

	unenriched, err := s.UnenrichedVideos(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, unenriched, 1)
	assert.Equal(t, "t", unenriched[0].Title)
}

func TestEnrichmentFlow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	src := &VideoSource{Kind: KindFavorite, Name: "fav", Path: "/p", Enabled: true, FID: 1}
	require.NoError(t, s.UpsertSource(ctx, src))
	require.NoError(t, s.InsertVideos(ctx, []*Video{
		{SourceID: src.ID, Bvid: "BV1Tr421n746", Title: "a", Valid: true, Category: 2},
	}))

	vids, err := s.UnenrichedVideos(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, vids, 1)
	v := vids[0]

	v.Tags = []string{"tag1", "tag2"}
	v.SinglePage = boolPtr(false)
	v.Path = "/p/a"
	v.ShouldDownload = true
	pages := []Page{
		{VideoID: v.ID, Cid: 100, Pid: 1, Title: "p1", Duration: 30},
		{VideoID: v.ID, Cid: 101, Pid: 2, Title: "p2", Duration: 40},
	}
	require.NoError(t, s.SetEnriched(ctx, v, pages))

	// enriched rows leave the unenriched set
	vids, err = s.UnenrichedVideos(ctx, src.ID)
	require.NoError(t, err)
	assert.Empty(t, vids)

	// P1: single_page reflects the page count
	targets, err := s.DownloadTargets(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.NotNil(t, targets[0].SinglePage)
	assert.False(t, *targets[0].SinglePage)
	assert.Equal(t, []string{"tag1", "tag2"}, targets[0].Tags)

	got, err := s.PagesOf(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Pid)

	// re-running the page insert leaves the originals alone
	require.NoError(t, s.SetEnriched(ctx, v, pages))
	got, err = s.PagesOf(ctx, v.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMarkVideoInvalidExcludes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	src := &VideoSource{Kind: KindFavorite, Name: "fav", Path: "/p", Enabled: true, FID: 1}
	require.NoError(t, s.UpsertSource(ctx, src))
	require.NoError(t, s.InsertVideos(ctx, []*Video{
		{SourceID: src.ID, Bvid: "BV1sH4y1s7fe", Valid: true, Category: 2},
	}))
	vids, err := s.UnenrichedVideos(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, vids, 1)

	require.NoError(t, s.MarkVideoInvalid(ctx, vids[0].ID))
	vids, err = s.UnenrichedVideos(ctx, src.ID)
	require.NoError(t, err)
	assert.Empty(t, vids)
}

func TestSaveStatusConverges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	src := &VideoSource{Kind: KindFavorite, Name: "fav", Path: "/p", Enabled: true, FID: 1}
	require.NoError(t, s.UpsertSource(ctx, src))
	require.NoError(t, s.InsertVideos(ctx, []*Video{
		{SourceID: src.ID, Bvid: "BV1Tr421n746", Valid: true, Category: 2},
	}))
	vids, err := s.UnenrichedVideos(ctx, src.ID)
	require.NoError(t, err)
	v := vids[0]
	v.SinglePage = boolPtr(true)
	v.ShouldDownload = true
	require.NoError(t, s.SetEnriched(ctx, v, []Page{{VideoID: v.ID, Cid: 1, Pid: 1}}))

	v.DownloadStatus = 0x7FFF | 1<<31
	require.NoError(t, s.SaveVideoStatus(ctx, []*Video{v}))

	// completed rows leave the download set
	targets, err := s.DownloadTargets(ctx, src.ID)
	require.NoError(t, err)
	assert.Empty(t, targets)

	pages, err := s.PagesOf(ctx, v.ID)
	require.NoError(t, err)
	pages[0].DownloadStatus = 42
	pages[0].Path = "/p/a/1.mp4"
	require.NoError(t, s.SavePageStatus(ctx, pages))
	pages, err = s.PagesOf(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), pages[0].DownloadStatus)
	assert.Equal(t, "/p/a/1.mp4", pages[0].Path)
}

func TestConfigVersioning(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, version, err := s.LoadConfig(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)

	v1, err := s.SaveConfig(ctx, `{"a":1}`)
	require.NoError(t, err)
	v2, err := s.SaveConfig(ctx, `{"a":2}`)
	require.NoError(t, err)
	assert.Greater(t, v2, v1)

	payload, version, err := s.LoadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, v2, version)
	assert.Equal(t, `{"a":2}`, payload)
}
