package forward

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"

	"vibergram/internal/domain"
)

// Render converts source rich-text spans into the destination's plain-text
// markup. Explicit links become "text (url)", bare URLs become an anchor
// wrapping the literal URL, and every other span kind is copied unchanged —
// the destination API has no bold/italic support. Text outside spans is
// copied verbatim.
//
// Span offsets are UTF-16 code units over the original text, so the text is
// re-indexed in that unit before slicing; byte or rune indexing would
// misplace emoji and non-Latin scripts.
//
// Spans arrive in arbitrary order and are sorted by start offset first.
// Overlapping spans are undefined upstream; the policy here is to process
// them in sorted order with a copy cursor that never moves backwards, so an
// overlap duplicates the span's own text but nothing after it.
func Render(text string, spans []domain.Span) string {
	if len(spans) == 0 {
		return text
	}

	units := utf16.Encode([]rune(text))

	sorted := make([]domain.Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OffsetUTF16 < sorted[j].OffsetUTF16
	})

	var b strings.Builder
	cur := 0
	for _, sp := range sorted {
		start := clamp(sp.OffsetUTF16, 0, len(units))
		end := clamp(sp.OffsetUTF16+sp.LengthUTF16, start, len(units))
		if cur < start {
			b.WriteString(decodeUTF16(units[cur:start]))
			cur = start
		}
		seg := decodeUTF16(units[start:end])
		switch {
		case sp.Kind == domain.SpanExplicitLink && sp.URL != "":
			fmt.Fprintf(&b, "%s (%s)", seg, sp.URL)
		case sp.Kind == domain.SpanBareURL:
			fmt.Fprintf(&b, "<a href=%q>%s</a>", seg, seg)
		default:
			b.WriteString(seg)
		}
		if end > cur {
			cur = end
		}
	}
	if cur < len(units) {
		b.WriteString(decodeUTF16(units[cur:]))
	}
	return b.String()
}

func decodeUTF16(units []uint16) string {
	return string(utf16.Decode(units))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
