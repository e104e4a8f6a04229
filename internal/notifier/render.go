package notifier

import (
	"fmt"
	"html"
	"strings"

	"rosterbot/internal/dispatch"
)

// resultLineCap keeps summaries within one Telegram message for large
// rosters; the rest is folded into a counter line.
const resultLineCap = 50

func renderCompleted(s dispatch.Summary) string {
	var b strings.Builder
	ok := s.Completed - s.Failed
	if s.Failed == 0 {
		fmt.Fprintf(&b, "✅ <b>Roster processed</b>\nAll %d lines succeeded.\n", s.Completed)
	} else {
		fmt.Fprintf(&b, "✅ <b>Roster processed</b>\n%d of %d lines succeeded, %d failed.\n", ok, s.Completed, s.Failed)
	}
	writeResults(&b, s.Results)
	return b.String()
}

func renderFailed(s dispatch.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ <b>Roster processing failed</b>\n%d of %d lines failed. Please review the document and try again.\n",
		s.Failed, s.Completed)
	writeResults(&b, s.Results)
	return b.String()
}

func writeResults(b *strings.Builder, results []dispatch.Outcome) {
	if len(results) == 0 {
		return
	}
	b.WriteString("\n")
	shown := results
	if len(shown) > resultLineCap {
		shown = shown[:resultLineCap]
	}
	for _, r := range shown {
		label := r.Label
		if label == "" {
			label = "(unnamed line)"
		}
		mark := "✓"
		if !r.Success {
			mark = "✗"
		}
		fmt.Fprintf(b, "%s %s", mark, esc(label))
		if r.Detail != "" {
			fmt.Fprintf(b, " — <i>%s</i>", esc(r.Detail))
		}
		b.WriteString("\n")
	}
	if rest := len(results) - len(shown); rest > 0 {
		fmt.Fprintf(b, "… and %d more lines\n", rest)
	}
}

// esc escapes text for Telegram HTML parse mode.
func esc(s string) string { return html.EscapeString(s) }
