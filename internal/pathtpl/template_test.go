package pathtpl

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, src string, ctx map[string]any) string {
	t.Helper()
	tpl, err := Compile(src)
	require.NoError(t, err)
	out, err := tpl.Render(ctx)
	require.NoError(t, err)
	return out
}

func TestTruncateAndSeparatorProtection(t *testing.T) {
	out := render(t, "{{ truncate title 7 }}/test/a", map[string]any{
		"title": "关注/永雏塔菲喵",
	})
	assert.Equal(t, "关注_永雏塔菲/test/a", out)
}

func TestTruncateShorterThanLimit(t *testing.T) {
	out := render(t, "{{ truncate title 10 }}", map[string]any{"title": "abc"})
	assert.Equal(t, "abc", out)
}

func TestRenderedValueSeparatorsNeverSurvive(t *testing.T) {
	out := render(t, "{{ title }}", map[string]any{"title": `a/b\c:d`})
	assert.NotContains(t, strings.ReplaceAll(out, string(os.PathSeparator), ""), "/")
	assert.Equal(t, "a_b_c_d", out)
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		`a<b>c:d"e`:  "a_b_c_d_e",
		"..hidden..": "hidden",
		"con":        "con_",
		"COM7":       "COM7_",
		"lpt0":       "lpt0_",
		"normal":     "normal",
		"con.f":      "con.f",
	}
	for in, want := range cases {
		assert.Equal(t, want, Sanitize(in), in)
	}
}

func TestSanitizeAppliesPerSegment(t *testing.T) {
	out := render(t, "{{ name }}/keep", map[string]any{"name": "aux"})
	assert.Equal(t, "aux_"+string(os.PathSeparator)+"keep", out)

	out = render(t, "{{ name }}/keep", map[string]any{"name": "ends.."})
	assert.Equal(t, "ends"+string(os.PathSeparator)+"keep", out)
}

func TestSanitizeControlChars(t *testing.T) {
	assert.Equal(t, "a_b", Sanitize("a\x01b"))
	assert.Equal(t, "a_b", Sanitize("a\x7fb"))
}

func TestHTMLishTitlesAreNotEscaped(t *testing.T) {
	out := render(t, "{{ title }}", map[string]any{"title": "a & b"})
	assert.Equal(t, "a & b", out)
}

func TestCompileError(t *testing.T) {
	_, err := Compile("{{ unclosed")
	assert.Error(t, err)
}
