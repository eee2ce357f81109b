// Package pathtpl renders user-supplied handlebars templates into safe
// filesystem path fragments. The platform path separator inside the template
// text is protected by a sentinel so templates can express directory
// structure, while separators produced by rendered values are sanitized away.
package pathtpl

import (
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/aymerick/raymond"
)

const sepSentinel = "__SEP__"

var registerOnce sync.Once

func registerHelpers() {
	registerOnce.Do(func() {
		// truncate keeps the first n characters of a UTF-8 string.
		raymond.RegisterHelper("truncate", func(s string, n int) string {
			runes := []rune(s)
			if n < 0 || n >= len(runes) {
				return s
			}
			return string(runes[:n])
		})
	})
}

// Template is a compiled path template.
type Template struct {
	tpl *raymond.Template
}

// Compile parses a template, protecting literal path separators first.
func Compile(src string) (*Template, error) {
	registerHelpers()
	protected := strings.ReplaceAll(src, string(os.PathSeparator), sepSentinel)
	t, err := raymond.Parse(protected)
	if err != nil {
		return nil, fmt.Errorf("pathtpl: parse %q: %w", src, err)
	}
	return &Template{tpl: t}, nil
}

// Render executes the template and sanitizes the result into a path-safe
// string. Separators written in the template survive; separators coming out
// of rendered values are replaced.
func (t *Template) Render(ctx map[string]any) (string, error) {
	out, err := t.tpl.Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("pathtpl: render: %w", err)
	}
	// raymond HTML-escapes interpolations; paths are not HTML.
	out = html.UnescapeString(out)
	// each template-authored segment is a filename of its own, so device
	// names and trailing dots are caught per path element
	parts := strings.Split(out, sepSentinel)
	for i, part := range parts {
		parts[i] = Sanitize(part)
	}
	return strings.Join(parts, string(os.PathSeparator)), nil
}

var (
	reservedChars   = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\x7f-\x9f]`)
	windowsReserved = regexp.MustCompile(`(?i)^(con|prn|aux|nul|com[0-9]|lpt[0-9])$`)
)

// Sanitize makes a rendered name safe as a filename: reserved characters
// become underscores, leading/trailing dots are stripped, and Windows device
// names get an underscore suffix.
func Sanitize(name string) string {
	s := reservedChars.ReplaceAllString(name, "_")
	s = strings.Trim(s, ".")
	if windowsReserved.MatchString(s) {
		s += "_"
	}
	return s
}
