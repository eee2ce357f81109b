package danmaku

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func encodeElem(d Danmu) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldProgress, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(d.Progress)))
	b = protowire.AppendTag(b, fieldMode, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Mode))
	b = protowire.AppendTag(b, fieldFontSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.FontSize))
	b = protowire.AppendTag(b, fieldColor, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Color))
	b = protowire.AppendTag(b, fieldContent, protowire.BytesType)
	b = protowire.AppendString(b, d.Content)
	return b
}

func encodeSegment(danmus ...Danmu) []byte {
	var b []byte
	for _, d := range danmus {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeElem(d))
	}
	return b
}

func TestDecodeSegment(t *testing.T) {
	in := []Danmu{
		{Progress: 1500, Mode: 1, FontSize: 25, Color: 0xFF0000, Content: "前方高能"},
		{Progress: 3000, Mode: 5, FontSize: 18, Color: 0xFFFFFF, Content: "hello"},
	}
	got, err := DecodeSegment(encodeSegment(in...))
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestDecodeSegmentSkipsUnknownFields(t *testing.T) {
	elem := encodeElem(Danmu{Progress: 10, Content: "x"})
	// unknown varint field 9 (weight) and bytes field 12 (idStr)
	elem = protowire.AppendTag(elem, 9, protowire.VarintType)
	elem = protowire.AppendVarint(elem, 7)
	elem = protowire.AppendTag(elem, 12, protowire.BytesType)
	elem = protowire.AppendString(elem, "123456789")

	var seg []byte
	seg = protowire.AppendTag(seg, 1, protowire.BytesType)
	seg = protowire.AppendBytes(seg, elem)

	got, err := DecodeSegment(seg)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].Content)
}

func TestDecodeSegmentTruncated(t *testing.T) {
	seg := encodeSegment(Danmu{Progress: 10, Content: "x"})
	_, err := DecodeSegment(seg[:len(seg)-3])
	assert.Error(t, err)
}

func testConfig() CanvasConfig {
	opt := DefaultOption()
	opt.Duration = 15
	opt.HorizontalGap = 20
	return NewCanvasConfig(1920, 1080, opt)
}

func TestCanvasNormalization(t *testing.T) {
	cfg := NewCanvasConfig(1920, 1080, DefaultOption())
	assert.Equal(t, 720, cfg.Height)
	assert.Equal(t, 1280, cfg.Width)

	// rotation-normalized portrait page
	cfg = NewCanvasConfig(1080, 1920, DefaultOption())
	assert.Equal(t, 405, cfg.Width)
}

func TestLengthAsciiVsWide(t *testing.T) {
	cfg := testConfig()
	ascii := cfg.length("aa")   // 4 units
	wide := cfg.length("弹幕") // 6 units
	assert.Greater(t, wide, ascii)
	assert.InDelta(t, float64(cfg.Opt.FontSize)*4/3*cfg.Opt.WidthRatio, ascii, 1e-9)
}

func TestDrawFirstEmptyLane(t *testing.T) {
	canvas := NewCanvas(testConfig())
	a, ok := canvas.Draw(Danmu{Progress: 0, Content: "first"})
	require.True(t, ok)
	assert.Equal(t, 0, a.Y)

	// immediately after, lane 0 is blocked, so the next goes to lane 1
	b, ok := canvas.Draw(Danmu{Progress: 10, Content: "second"})
	require.True(t, ok)
	assert.Equal(t, canvas.cfg.Opt.LaneSize, b.Y)
}

func TestDrawSeparateWhenFarApart(t *testing.T) {
	canvas := NewCanvas(testConfig())
	_, ok := canvas.Draw(Danmu{Progress: 0, Content: "short"})
	require.True(t, ok)

	// a full duration later the lane is clear again
	d, ok := canvas.Draw(Danmu{Progress: 20000, Content: "short"})
	require.True(t, ok)
	assert.Equal(t, 0, d.Y)
	assert.InDelta(t, 20.0, d.Start, 1e-9)
}

func TestDrawDropsWhenDelayTooLarge(t *testing.T) {
	cfg := testConfig()
	canvas := NewCanvas(cfg)
	long := strings.Repeat("超长弹幕", 40)
	// saturate every lane at t=0 with long danmus
	for i := 0; i < len(canvas.lanes); i++ {
		_, ok := canvas.Draw(Danmu{Progress: 0, Content: long})
		require.True(t, ok, "lane %d", i)
	}
	// an even longer candidate right behind them cannot fit within 1 s
	_, ok := canvas.Draw(Danmu{Progress: 100, Content: strings.Repeat(long, 2)})
	assert.False(t, ok)
}

func TestDrawCollisionInvariant(t *testing.T) {
	// P6: committed placements never violate the gap by more than the
	// rounding slack of the delay formula.
	cfg := testConfig()
	canvas := NewCanvas(cfg)
	W := float64(cfg.Width)
	T := cfg.Opt.Duration
	type placed struct{ t, l float64 }
	lanes := map[int]placed{}

	inputs := []Danmu{
		{Progress: 0, Content: "aaaa"},
		{Progress: 200, Content: "bbbbbbbb"},
		{Progress: 400, Content: "cc"},
		{Progress: 600, Content: strings.Repeat("d", 30)},
		{Progress: 800, Content: "ee"},
		{Progress: 5000, Content: "ffffff"},
		{Progress: 5100, Content: "gg"},
	}
	for _, in := range inputs {
		drawn, ok := canvas.Draw(in)
		if !ok {
			continue
		}
		laneIdx := drawn.Y / cfg.Opt.LaneSize
		if prev, exists := lanes[laneIdx]; exists {
			v1 := (W + prev.l) / T
			deltaX := v1*(drawn.Start-prev.t) - prev.l
			assert.GreaterOrEqual(t, deltaX, cfg.Opt.HorizontalGap-cfg.Opt.HorizontalGap/v1,
				"lane %d gap violated", laneIdx)
		}
		lanes[laneIdx] = placed{t: drawn.Start, l: drawn.Length}
	}
}

func TestTimeOffset(t *testing.T) {
	cfg := testConfig()
	cfg.Opt.TimeOffset = 2.5
	canvas := NewCanvas(cfg)
	d, ok := canvas.Draw(Danmu{Progress: 1000, Content: "x"})
	require.True(t, ok)
	assert.InDelta(t, 3.5, d.Start, 1e-9)

	// offset pushing a danmu before zero drops it
	cfg.Opt.TimeOffset = -10
	canvas = NewCanvas(cfg)
	_, ok = canvas.Draw(Danmu{Progress: 1000, Content: "x"})
	assert.False(t, ok)
}

func TestWriteASS(t *testing.T) {
	var buf bytes.Buffer
	err := WriteASS(&buf, []Danmu{
		{Progress: 2000, FontSize: 25, Color: 0xFF0000, Content: "红色弹幕"},
		{Progress: 1000, FontSize: 25, Color: 0xFFFFFF, Content: "white"},
	}, testConfig())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "[Script Info]")
	assert.Contains(t, out, "Style: Float,")
	// sorted by progress: white dialogue first
	white := strings.Index(out, "white")
	red := strings.Index(out, "红色弹幕")
	require.Positive(t, white)
	require.Positive(t, red)
	assert.Less(t, white, red)
	assert.Contains(t, out, "\\move(")
	// red carries a colour override in BGR
	assert.Contains(t, out, "\\c&H0000FF&")
	assert.NotContains(t, out, "0:00:01.00,0:00:01.00")
}

func TestASSTime(t *testing.T) {
	assert.Equal(t, "0:00:00.00", assTime(0))
	assert.Equal(t, "0:03:26.44", assTime(206.45))
	assert.Equal(t, "1:00:01.50", assTime(3601.5))
}

func TestEscapeASS(t *testing.T) {
	assert.Equal(t, "｛x｝ y", escapeASS("{x}\ny"))
}
