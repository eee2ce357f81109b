// Package downloader moves remote media onto disk: streamed fetches for
// covers, avatars and dash segments, plus the ffmpeg remux that joins a
// video and an audio stream into the final file.
package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/amtoaer/bili-sync-sub000/internal/bilibili"
)

// Downloader fetches through the shared upstream client so every byte moved
// counts against the same rate budget.
type Downloader struct {
	client *bilibili.Client
	ffmpeg string
}

// New builds a Downloader. ffmpegPath may be a bare binary name resolved via
// PATH or an absolute path.
func New(client *bilibili.Client, ffmpegPath string) *Downloader {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Downloader{client: client, ffmpeg: ffmpegPath}
}

// Fetch streams url into path, creating parent directories. It writes through
// a .part file so a crashed fetch never leaves a truncated target behind.
func (d *Downloader) Fetch(ctx context.Context, url, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	body, err := d.client.Stream(ctx, url)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer body.Close()

	part := path + ".part"
	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(part)
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(part)
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	if err := os.Rename(part, path); err != nil {
		os.Remove(part)
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	return nil
}

// FetchFirst tries each url in order and keeps the first that succeeds.
func (d *Downloader) FetchFirst(ctx context.Context, urls []string, path string) error {
	var last error
	for _, u := range urls {
		if u == "" {
			continue
		}
		if err := d.Fetch(ctx, u, path); err != nil {
			last = err
			continue
		}
		return nil
	}
	if last == nil {
		last = fmt.Errorf("no urls")
	}
	return fmt.Errorf("fetch %s: %w", path, last)
}

// Merge remuxes a video and an audio stream into out without re-encoding.
// Either input may be empty for single-stream sources. The inputs are always
// removed, success or not.
func (d *Downloader) Merge(ctx context.Context, videoPath, audioPath, out string) error {
	defer func() {
		if videoPath != "" {
			os.Remove(videoPath)
		}
		if audioPath != "" {
			os.Remove(audioPath)
		}
	}()
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("merge %s: %w", out, err)
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	switch {
	case videoPath != "" && audioPath != "":
		args = append(args, "-i", videoPath, "-i", audioPath)
	case videoPath != "":
		args = append(args, "-i", videoPath)
	case audioPath != "":
		args = append(args, "-i", audioPath)
	default:
		return fmt.Errorf("merge %s: no inputs", out)
	}
	args = append(args, "-c", "copy", "-y", out)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.ffmpeg, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return fmt.Errorf("merge %s: %w: %s", out, err, msg)
		}
		return fmt.Errorf("merge %s: %w", out, err)
	}
	return nil
}
