// Package subtitle renders upstream subtitle tracks into minimal SRT files.
package subtitle

import (
	"fmt"
	"io"

	"github.com/amtoaer/bili-sync-sub000/internal/bilibili"
)

// FormatTime renders seconds as an SRT timestamp, HH:MM:SS,mmm. Hours grow
// past two digits for absurdly long inputs instead of wrapping.
func FormatTime(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int64(sec * 1000)
	return fmt.Sprintf("%02d:%02d:%02d,%03d",
		ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}

// WriteSRT emits one cue per segment.
func WriteSRT(w io.Writer, cues []bilibili.SubtitleCue) error {
	for i, cue := range cues {
		_, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			i+1, FormatTime(cue.From), FormatTime(cue.To), cue.Content)
		if err != nil {
			return err
		}
	}
	return nil
}
