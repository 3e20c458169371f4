package domain

import "time"

// ChannelBinding links one source channel to one destination channel for
// one owning user. No two active bindings may share the same
// (OwnerID, SourceChatID, ViberToken) triple; the registry enforces this.
type ChannelBinding struct {
	ID           int64
	OwnerID      int64
	ViberToken   string
	SourceChatID string
	Active       bool
	CreatedAt    time.Time
}
