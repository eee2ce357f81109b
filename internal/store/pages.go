package store

import (
	"context"
	"fmt"
)

const pageColumns = `id, video_id, cid, pid, title, width, height, duration, image,
	download_status, path`

// PagesOf lists a video's pages in pid order.
func (s *Store) PagesOf(ctx context.Context, videoID int64) ([]*Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pageColumns+` FROM page WHERE video_id = ? ORDER BY pid`, videoID)
	if err != nil {
		return nil, fmt.Errorf("store: pages of %d: %w", videoID, err)
	}
	defer rows.Close()
	var out []*Page
	for rows.Next() {
		var p Page
		err := rows.Scan(&p.ID, &p.VideoID, &p.Cid, &p.Pid, &p.Title, &p.Width,
			&p.Height, &p.Duration, &p.Image, &p.DownloadStatus, &p.Path)
		if err != nil {
			return nil, fmt.Errorf("store: scan page: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// SavePageStatus persists a batch of per-page status outcomes.
func (s *Store) SavePageStatus(ctx context.Context, batch []*Page) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save page status: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, p := range batch {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO page (id, video_id, cid, pid, download_status, path)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				download_status = excluded.download_status,
				path = excluded.path`,
			p.ID, p.VideoID, p.Cid, p.Pid, p.DownloadStatus, p.Path)
		if err != nil {
			return fmt.Errorf("store: save page status %d: %w", p.ID, err)
		}
	}
	return tx.Commit()
}
