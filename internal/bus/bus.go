// Package bus carries source posts from the platform adapter to the
// forwarding dispatcher in-process.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"vibergram/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based post bus.
type InMemoryBus struct {
	posts  chan domain.SourcePost
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

var _ domain.PostBus = (*InMemoryBus)(nil)

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		posts:  make(chan domain.SourcePost, bufferSize),
		logger: logger,
	}
}

// Publish blocks up to 10 seconds if the bus is full instead of dropping.
// Post volume is human-authored, so a full bus means the consumer died.
func (b *InMemoryBus) Publish(post domain.SourcePost) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.posts <- post:
	default:
		b.logger.Warn("post bus full, waiting...", "source", post.SourceChatID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.posts <- post:
			b.logger.Info("post delivered after wait", "source", post.SourceChatID)
		case <-timer.C:
			b.logger.Error("post dropped: bus full for 10s", "source", post.SourceChatID)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.SourcePost {
	return b.posts
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.posts)
	}
}
