package domain

import "context"

// AccountMember is one member of a destination channel account.
type AccountMember struct {
	ID   string
	Name string
	Role string // "superadmin", "admin", ...
}

// DestinationClient encapsulates one destination channel's remote
// operations, bound to a single credential. Implementations are stateless
// aside from the credential and safe for concurrent use.
type DestinationClient interface {
	// SetWebhook registers the callback URL. Registration is not required
	// for outbound delivery, so callers treat a returned error as a
	// non-fatal warning.
	SetWebhook(ctx context.Context, url string) error

	// AccountInfo fetches the channel's member list. An error means the
	// sender cannot be resolved and the destination must be skipped for
	// this attempt.
	AccountInfo(ctx context.Context) ([]AccountMember, error)

	// SendText sends exactly one pre-chunked piece of text. Text over the
	// platform message ceiling must have been split by the caller.
	SendText(ctx context.Context, text, senderID string) error

	// SendPicture sends a picture. A caption over the platform caption
	// ceiling is delivered as a separate text message after the picture.
	SendPicture(ctx context.Context, mediaURL, caption, senderID string) error

	// SendVideo sends a video, passing size and duration through unchanged.
	// Caption overflow behaves as in SendPicture.
	SendVideo(ctx context.Context, mediaURL, caption string, sizeBytes int64, durationSeconds int, senderID string) error
}

// ClientFactory constructs a DestinationClient for one credential.
type ClientFactory func(token string) DestinationClient

// BindingRegistry is the persisted channel registry. The forwarding core
// only reads active bindings; the CRUD surface serves the owner commands.
type BindingRegistry interface {
	Create(ctx context.Context, b ChannelBinding) (int64, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]ChannelBinding, error)
	SetActive(ctx context.Context, id, ownerID int64, active bool) (bool, error)
	Delete(ctx context.Context, id, ownerID int64) (bool, error)
	ListActiveBySource(ctx context.Context, sourceChatID string) ([]ChannelBinding, error)
}

// Notifier delivers fire-and-forget messages to the operator's admin chat.
type Notifier interface {
	NotifyAdmin(message string)
}

// PostBus carries source posts from the platform adapter to the dispatcher.
type PostBus interface {
	Publish(post SourcePost)
	Subscribe() <-chan SourcePost
	Close()
}
