package domain

import "time"

// SpanKind classifies a rich-text annotation on a source post.
type SpanKind string

const (
	SpanExplicitLink SpanKind = "explicit-link" // hyperlinked text carrying a separate URL
	SpanBareURL      SpanKind = "bare-url"      // a literal URL written in the text
	SpanOther        SpanKind = "other"         // bold, italic, mention, ... — copied as plain text
)

// Span is a rich-text annotation over a range of the original message.
// Offset and Length are UTF-16 code units, the unit the source platform
// reports, not bytes and not runes.
type Span struct {
	OffsetUTF16 int
	LengthUTF16 int
	Kind        SpanKind
	URL         string // set for SpanExplicitLink
}

// PhotoVariant is one resolution of a source photo. Variants arrive in
// ascending quality order; the last element is the best one.
type PhotoVariant struct {
	URL      string
	SizeRank int // width in pixels, used only for ordering
}

// Video is the source video with the metadata the destination API wants
// passed through unchanged.
type Video struct {
	URL             string
	SizeBytes       int64
	DurationSeconds int
}

// SourcePost is an immutable snapshot of one published channel message.
// A post may carry text, a photo, and a video at the same time; each is
// forwarded independently.
type SourcePost struct {
	SourceChatID string
	SourceTitle  string // channel title or username, for owner-facing logs
	Text         string
	TextSpans    []Span
	Photo        []PhotoVariant
	Video        *Video
	Caption      string
	CaptionSpans []Span
	ReceivedAt   time.Time
}
