package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/amtoaer/bili-sync-sub000/internal/status"
)

const videoColumns = `id, source_id, bvid, title, intro, cover, category, upper_id,
	upper_name, upper_face, ctime, pubtime, favtime, tags, single_page, path,
	download_status, should_download, valid`

func scanVideo(row interface{ Scan(...any) error }) (*Video, error) {
	var v Video
	var ctime, pubtime, favtime int64
	var tags string
	err := row.Scan(&v.ID, &v.SourceID, &v.Bvid, &v.Title, &v.Intro, &v.Cover,
		&v.Category, &v.UpperID, &v.UpperName, &v.UpperFace, &ctime, &pubtime,
		&favtime, &tags, &v.SinglePage, &v.Path, &v.DownloadStatus,
		&v.ShouldDownload, &v.Valid)
	if err != nil {
		return nil, err
	}
	v.Ctime = timeFromUnix(ctime)
	v.Pubtime = timeFromUnix(pubtime)
	v.FavTime = timeFromUnix(favtime)
	v.Tags = decodeTags(tags)
	return &v, nil
}

// InsertVideos inserts a refresh batch, ignoring rows whose (source, bvid)
// already exists so enrichment state is never clobbered.
func (s *Store) InsertVideos(ctx context.Context, batch []*Video) error {
	if len(batch) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO video (source_id, bvid, title, intro, cover, category,
		upper_id, upper_name, upper_face, ctime, pubtime, favtime, valid) VALUES `)
	args := make([]any, 0, len(batch)*13)
	for i, v := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, v.SourceID, v.Bvid, v.Title, v.Intro, v.Cover, v.Category,
			v.UpperID, v.UpperName, v.UpperFace, unixOrZero(v.Ctime),
			unixOrZero(v.Pubtime), unixOrZero(v.FavTime), v.Valid)
	}
	sb.WriteString(` ON CONFLICT (source_id, bvid) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("store: insert videos: %w", err)
	}
	return nil
}

// UnenrichedVideos selects the enrichment stage's input: untouched, valid
// rows whose page layout is still unknown.
func (s *Store) UnenrichedVideos(ctx context.Context, sourceID int64) ([]*Video, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+videoColumns+` FROM video
		WHERE source_id = ? AND download_status = 0 AND single_page IS NULL AND valid = 1
		ORDER BY id`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("store: unenriched videos: %w", err)
	}
	defer rows.Close()
	var out []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan video: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// MarkVideoInvalid flags a permanently-gone row so later stages skip it.
func (s *Store) MarkVideoInvalid(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE video SET valid = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: mark invalid: %w", err)
	}
	return nil
}

const pageInsertChunk = 50

// SetEnriched commits one video's enrichment atomically: tags, single_page,
// path and rule verdict on the video plus the page batch, chunked 50 at a
// time with conflicting pages left alone.
func (s *Store) SetEnriched(ctx context.Context, v *Video, pages []Page) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: set enriched: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE video SET tags = ?, single_page = ?, path = ?, should_download = ?
		WHERE id = ?`,
		encodeTags(v.Tags), v.SinglePage, v.Path, v.ShouldDownload, v.ID)
	if err != nil {
		return fmt.Errorf("store: set enriched video: %w", err)
	}

	for start := 0; start < len(pages); start += pageInsertChunk {
		end := min(start+pageInsertChunk, len(pages))
		chunk := pages[start:end]
		var sb strings.Builder
		sb.WriteString(`INSERT INTO page (video_id, cid, pid, title, width, height, duration, image) VALUES `)
		args := make([]any, 0, len(chunk)*8)
		for i, p := range chunk {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, p.VideoID, p.Cid, p.Pid, p.Title, p.Width, p.Height, p.Duration, p.Image)
		}
		sb.WriteString(` ON CONFLICT (video_id, pid) DO NOTHING`)
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("store: insert pages: %w", err)
		}
	}
	return tx.Commit()
}

// DownloadTargets selects the download stage's input: valid, rule-approved
// video-category rows whose status has not reached completion.
func (s *Store) DownloadTargets(ctx context.Context, sourceID int64) ([]*Video, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+videoColumns+` FROM video
		WHERE source_id = ? AND valid = 1 AND should_download = 1 AND category = 2
			AND single_page IS NOT NULL AND `+status.UnfinishedExpr("download_status")+`
		ORDER BY id`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("store: download targets: %w", err)
	}
	defer rows.Close()
	var out []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan video: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SaveVideoStatus persists a batch of per-video status outcomes with an
// upsert so in-cycle interleavings converge row by row.
func (s *Store) SaveVideoStatus(ctx context.Context, batch []*Video) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save video status: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, v := range batch {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO video (id, source_id, bvid, download_status, path)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				download_status = excluded.download_status,
				path = excluded.path`,
			v.ID, v.SourceID, v.Bvid, v.DownloadStatus, v.Path)
		if err != nil {
			return fmt.Errorf("store: save video status %d: %w", v.ID, err)
		}
	}
	return tx.Commit()
}
