package domain

// OutboundKind tags the variant of an OutboundMessage.
type OutboundKind string

const (
	OutboundText    OutboundKind = "text"
	OutboundPicture OutboundKind = "picture"
	OutboundVideo   OutboundKind = "video"
)

// OutboundMessage is one destination-platform message, serialized at the
// client boundary. Each variant carries only the fields its kind uses.
type OutboundMessage struct {
	Kind            OutboundKind
	Text            string // message body or media caption
	MediaURL        string // picture and video only
	SizeBytes       int64  // video only
	DurationSeconds int    // video only
}

func TextMessage(text string) OutboundMessage {
	return OutboundMessage{Kind: OutboundText, Text: text}
}

func PictureMessage(mediaURL, caption string) OutboundMessage {
	return OutboundMessage{Kind: OutboundPicture, Text: caption, MediaURL: mediaURL}
}

func VideoMessage(mediaURL, caption string, sizeBytes int64, durationSeconds int) OutboundMessage {
	return OutboundMessage{
		Kind:            OutboundVideo,
		Text:            caption,
		MediaURL:        mediaURL,
		SizeBytes:       sizeBytes,
		DurationSeconds: durationSeconds,
	}
}
