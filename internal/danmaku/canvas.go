package danmaku

import (
	"math"
)

// Option is the user's danmaku rendering preference.
type Option struct {
	Duration         float64 `json:"duration"` // seconds a danmu takes to cross the canvas
	Font             string  `json:"font"`
	FontSize         int     `json:"font_size"`
	WidthRatio       float64 `json:"width_ratio"`
	HorizontalGap    float64 `json:"horizontal_gap"`
	LaneSize         int     `json:"lane_size"`
	FloatPercentage  float64 `json:"float_percentage"`
	BottomPercentage float64 `json:"bottom_percentage"`
	Opacity          uint8   `json:"opacity"`
	Bold             bool    `json:"bold"`
	Outline          float64 `json:"outline"`
	TimeOffset       float64 `json:"time_offset"` // seconds, applied before layout
}

// DefaultOption mirrors the player's stock look.
func DefaultOption() Option {
	return Option{
		Duration:         15,
		Font:             "黑体",
		FontSize:         25,
		WidthRatio:       1.2,
		HorizontalGap:    20,
		LaneSize:         32,
		FloatPercentage:  0.5,
		BottomPercentage: 0.3,
		Opacity:          76,
		Bold:             true,
		Outline:          0.8,
		TimeOffset:       0,
	}
}

// CanvasConfig is the layout geometry: the page dimension scaled so height
// is 720 with aspect preserved, plus the option.
type CanvasConfig struct {
	Width  int
	Height int
	Opt    Option
}

// NewCanvasConfig normalizes a page's rotated dimension onto the 720-high
// canvas.
func NewCanvasConfig(pageWidth, pageHeight int, opt Option) CanvasConfig {
	if pageWidth <= 0 || pageHeight <= 0 {
		pageWidth, pageHeight = 1280, 720
	}
	h := 720
	w := int(math.Round(float64(pageWidth) * 720 / float64(pageHeight)))
	return CanvasConfig{Width: w, Height: h, Opt: opt}
}

// length is the rendered width of a danmu: 2 units per ascii rune, 3 per
// wide rune, a third of the font size each, stretched by the width ratio.
func (c CanvasConfig) length(content string) float64 {
	units := 0
	for _, r := range content {
		if r < 128 {
			units += 2
		} else {
			units += 3
		}
	}
	return float64(c.Opt.FontSize) * float64(units) / 3 * c.Opt.WidthRatio
}

type lane struct {
	used      bool
	shootTime float64 // seconds when the last danmu entered
	length    float64
}

// hit classifies a candidate against one lane.
type hitKind int

const (
	hitSeparate hitKind = iota
	hitDelay
	hitNotEnoughTime
)

type hit struct {
	kind  hitKind
	delay float64
}

// collide applies the §-velocity model: both the resident danmu (t1, l1) and
// the candidate (t2, l2) cross the canvas in T seconds, so the longer one is
// faster.
func (c CanvasConfig) collide(ln lane, t2, l2 float64) hit {
	W := float64(c.Width)
	T := c.Opt.Duration
	gap := c.Opt.HorizontalGap
	t1, l1 := ln.shootTime, ln.length

	v1 := (W + l1) / T
	v2 := (W + l2) / T
	deltaX := v1*(t2-t1) - l1

	if deltaX < gap {
		if l2 <= l1 {
			return hit{kind: hitDelay, delay: (gap - deltaX) / v1}
		}
		return hit{kind: hitDelay, delay: T - (W-gap)/v2 - (t2 - t1)}
	}
	if l2 <= l1 {
		return hit{kind: hitSeparate}
	}
	// The candidate is faster; check where its head sits when the resident
	// disappears at t1+T.
	pos := W - v2*(t1+T-t2)
	if pos < W-gap {
		return hit{kind: hitNotEnoughTime}
	}
	return hit{kind: hitDelay, delay: (pos - (W - gap)) / v2}
}

// Drawn is one laid-out danmu ready for the .ass writer.
type Drawn struct {
	Start    float64 // seconds
	End      float64
	Y        int
	Length   float64
	FontSize int32
	Color    uint32
	Content  string
}

// Canvas lays danmus onto floating lanes. Feed it danmus sorted by progress.
type Canvas struct {
	cfg   CanvasConfig
	lanes []lane
}

// NewCanvas sizes the floating-lane region from the float percentage.
func NewCanvas(cfg CanvasConfig) *Canvas {
	n := int(cfg.Opt.FloatPercentage * float64(cfg.Height) / float64(cfg.Opt.LaneSize))
	if n < 1 {
		n = 1
	}
	return &Canvas{cfg: cfg, lanes: make([]lane, n)}
}

const maxDelay = 1.0 // seconds; beyond this the danmu is dropped

// Draw places one danmu, returning false when every lane would need more
// than a second of delay. All modes are treated as floating.
func (c *Canvas) Draw(d Danmu) (Drawn, bool) {
	t2 := float64(d.Progress)/1000 + c.cfg.Opt.TimeOffset
	if t2 < 0 {
		return Drawn{}, false
	}
	l2 := c.cfg.length(d.Content)

	bestLane := -1
	bestDelay := math.Inf(1)
	for i := range c.lanes {
		if !c.lanes[i].used {
			bestLane, bestDelay = i, 0
			break
		}
		h := c.cfg.collide(c.lanes[i], t2, l2)
		switch h.kind {
		case hitSeparate:
			bestLane, bestDelay = i, 0
		case hitDelay:
			if h.delay < bestDelay {
				bestLane, bestDelay = i, h.delay
			}
		case hitNotEnoughTime:
			// lane unusable for this danmu
		}
		if bestDelay == 0 {
			break
		}
	}
	if bestLane < 0 || bestDelay > maxDelay {
		return Drawn{}, false
	}

	start := t2 + bestDelay
	c.lanes[bestLane] = lane{used: true, shootTime: start, length: l2}
	return Drawn{
		Start:    start,
		End:      start + c.cfg.Opt.Duration,
		Y:        bestLane * c.cfg.Opt.LaneSize,
		Length:   l2,
		FontSize: d.FontSize,
		Color:    d.Color,
		Content:  d.Content,
	}, true
}

// Width exposes the canvas width for the writer's move coordinates.
func (c *Canvas) Width() int { return c.cfg.Width }
