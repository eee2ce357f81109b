package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const sourceColumns = `id, kind, name, path, enabled, f_id, upper_id, collection_id,
	collection_kind, season_id, media_id, ep_id, download_all_seasons, rule, latest_row_at`

func scanSource(row interface{ Scan(...any) error }) (*VideoSource, error) {
	var s VideoSource
	var latest int64
	err := row.Scan(&s.ID, &s.Kind, &s.Name, &s.Path, &s.Enabled, &s.FID, &s.UpperID,
		&s.CollectionID, &s.CollectionKind, &s.SeasonID, &s.MediaID, &s.EpID,
		&s.DownloadAllSeasons, &s.Rule, &latest)
	if err != nil {
		return nil, err
	}
	s.LatestRowAt = timeFromUnix(latest)
	return &s, nil
}

// UpsertSource inserts a source or refreshes its mutable attributes when the
// natural key already exists. The watermark is never touched here.
func (s *Store) UpsertSource(ctx context.Context, src *VideoSource) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO video_source (kind, name, path, enabled, f_id, upper_id, collection_id,
			collection_kind, season_id, media_id, ep_id, download_all_seasons, rule, latest_row_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, f_id, upper_id, collection_id, collection_kind, season_id, media_id, ep_id)
		DO UPDATE SET name = excluded.name, path = excluded.path,
			enabled = excluded.enabled, download_all_seasons = excluded.download_all_seasons,
			rule = excluded.rule`,
		src.Kind, src.Name, src.Path, src.Enabled, src.FID, src.UpperID, src.CollectionID,
		src.CollectionKind, src.SeasonID, src.MediaID, src.EpID, src.DownloadAllSeasons,
		src.Rule, unixOrZero(src.LatestRowAt))
	if err != nil {
		return fmt.Errorf("store: upsert source: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		src.ID = id
	}
	if src.ID == 0 {
		row := s.db.QueryRowContext(ctx, `
			SELECT `+sourceColumns+` FROM video_source
			WHERE kind = ? AND f_id = ? AND upper_id = ? AND collection_id = ?
				AND collection_kind = ? AND season_id = ? AND media_id = ? AND ep_id = ?`,
			src.Kind, src.FID, src.UpperID, src.CollectionID,
			src.CollectionKind, src.SeasonID, src.MediaID, src.EpID)
		got, err := scanSource(row)
		if err != nil {
			return fmt.Errorf("store: upsert source readback: %w", err)
		}
		src.ID = got.ID
	}
	return nil
}

// EnabledSources lists every enabled source in insertion order.
func (s *Store) EnabledSources(ctx context.Context) ([]*VideoSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM video_source WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: enabled sources: %w", err)
	}
	defer rows.Close()
	var out []*VideoSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// SourceByID fetches one source row.
func (s *Store) SourceByID(ctx context.Context, id int64) (*VideoSource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM video_source WHERE id = ?`, id)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: source %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: source by id: %w", err)
	}
	return src, nil
}

// AdvanceWatermark moves latest_row_at forward; it never rewinds.
func (s *Store) AdvanceWatermark(ctx context.Context, id int64, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE video_source SET latest_row_at = ? WHERE id = ? AND latest_row_at < ?`,
		t.Unix(), id, t.Unix())
	if err != nil {
		return fmt.Errorf("store: advance watermark: %w", err)
	}
	return nil
}
