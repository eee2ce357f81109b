package danmaku

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// WriteASS compiles a sorted-by-progress danmu list into an .ass subtitle
// stream with a single Float style and one Dialogue per placed danmu.
func WriteASS(w io.Writer, danmus []Danmu, cfg CanvasConfig) error {
	sort.SliceStable(danmus, func(i, j int) bool {
		return danmus[i].Progress < danmus[j].Progress
	})

	if err := writeASSHeader(w, cfg); err != nil {
		return err
	}
	canvas := NewCanvas(cfg)
	for _, d := range danmus {
		drawn, ok := canvas.Draw(d)
		if !ok {
			continue
		}
		override := fmt.Sprintf("\\move(%d,%d,%d,%d)",
			canvas.Width(), drawn.Y, -int(drawn.Length), drawn.Y)
		if drawn.Color != 0 && drawn.Color != 0xFFFFFF {
			override += "\\c" + assBGR(drawn.Color)
		}
		line := fmt.Sprintf("Dialogue: 0,%s,%s,Float,,0,0,0,,{%s}%s\n",
			assTime(drawn.Start), assTime(drawn.End),
			override, escapeASS(drawn.Content))
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeASSHeader(w io.Writer, cfg CanvasConfig) error {
	opt := cfg.Opt
	bold := 0
	if opt.Bold {
		bold = -1
	}
	alpha := 255 - opt.Opacity
	header := fmt.Sprintf(`[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
WrapStyle: 2
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Float,%s,%d,&H%02X%06X,&H%02X%06X,&H%02X000000,&H%02X000000,%d,0,0,0,100,100,0,0,1,%.1f,0,7,0,0,0,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`,
		cfg.Width, cfg.Height,
		opt.Font, opt.FontSize,
		alpha, 0xFFFFFF, alpha, 0xFFFFFF, alpha, alpha,
		bold, opt.Outline)
	_, err := io.WriteString(w, header)
	return err
}

// assTime renders seconds as H:MM:SS.cc.
func assTime(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	cs := int64(sec * 100)
	return fmt.Sprintf("%d:%02d:%02d.%02d",
		cs/360000, cs/6000%60, cs/100%60, cs%100)
}

// escapeASS neutralizes the override-block characters.
func escapeASS(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "{", "｛")
	s = strings.ReplaceAll(s, "}", "｝")
	return s
}

// assBGR renders a packed RGB value as the ASS &HBBGGRR& colour override.
func assBGR(rgb uint32) string {
	r := (rgb >> 16) & 0xFF
	g := (rgb >> 8) & 0xFF
	b := rgb & 0xFF
	return fmt.Sprintf("&H%02X%02X%02X&", b, g, r)
}
