// Package config holds the engine configuration: a JSON blob persisted in
// the store with a monotonic version, plus the daemon's yaml bootstrap file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amtoaer/bili-sync-sub000/internal/bilibili"
	"github.com/amtoaer/bili-sync-sub000/internal/danmaku"
	"github.com/amtoaer/bili-sync-sub000/internal/nfo"
	"github.com/amtoaer/bili-sync-sub000/internal/streams"
)

// Concurrency bounds the download fan-out.
type Concurrency struct {
	Video int `json:"video"`
	Page  int `json:"page"`
}

// RateLimit is the serialized request budget: Limit tokens per Interval
// milliseconds.
type RateLimit struct {
	Limit      int   `json:"limit"`
	IntervalMS int64 `json:"interval"`
}

// Budget converts to the client's representation.
func (r RateLimit) Budget() bilibili.RateLimit {
	return bilibili.RateLimit{Limit: r.Limit, Interval: time.Duration(r.IntervalMS) * time.Millisecond}
}

// Config is the engine configuration blob.
type Config struct {
	VideoName string `json:"video_name"`
	PageName  string `json:"page_name"`
	UpperPath string `json:"upper_path"`

	NfoTimeType nfo.TimeType `json:"nfo_time_type"`

	Trigger     Trigger              `json:"trigger"`
	RateLimit   RateLimit            `json:"rate_limit"`
	Concurrency Concurrency          `json:"concurrency"`
	Filter      streams.FilterOption `json:"filter_option"`
	Danmaku     danmaku.Option       `json:"danmaku_option"`
	Credential  bilibili.Credential  `json:"credential"`

	FfmpegPath string `json:"ffmpeg_path"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		VideoName:   "{{title}}",
		PageName:    "{{bvid}}",
		UpperPath:   "upper",
		NfoTimeType: nfo.TimeFav,
		Trigger:     Trigger{IntervalSec: 1200},
		RateLimit:   RateLimit{Limit: 4, IntervalMS: 250},
		Concurrency: Concurrency{Video: 3, Page: 2},
		Filter:      streams.DefaultFilterOption(),
		Danmaku:     danmaku.DefaultOption(),
		FfmpegPath:  "ffmpeg",
	}
}

// Parse decodes a stored blob, falling back to defaults for an empty one.
func Parse(payload string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(payload) == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(payload), cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate collects every startup problem into one bulleted error.
func (c *Config) Validate() error {
	var problems []string
	if c.VideoName == "" {
		problems = append(problems, "video_name template is empty")
	}
	if c.PageName == "" {
		problems = append(problems, "page_name template is empty")
	}
	if err := c.Trigger.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Concurrency.Video < 1 || c.Concurrency.Page < 1 {
		problems = append(problems, "concurrency must be at least 1")
	}
	if len(c.Filter.Codecs) == 0 {
		problems = append(problems, "filter_option.codecs is empty")
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New("config invalid:\n- " + strings.Join(problems, "\n- "))
}

// Bootstrap is the small on-disk file the daemon reads before it has a
// database: where to bind, where the data lives.
type Bootstrap struct {
	Bind     string `yaml:"bind"`
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
}

// LoadBootstrap reads the yaml file, or returns defaults when it is absent.
func LoadBootstrap(path string) (*Bootstrap, error) {
	b := &Bootstrap{Bind: "127.0.0.1:12345", DataDir: "."}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: bootstrap: %w", err)
	}
	if err := yaml.Unmarshal(raw, b); err != nil {
		return nil, fmt.Errorf("config: bootstrap: %w", err)
	}
	return b, nil
}
