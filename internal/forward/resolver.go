package forward

import (
	"context"
	"sync"

	"vibergram/internal/domain"
)

// SenderResolver resolves the destination-account member a message is sent
// as. Results are cached per credential for the lifetime of one dispatch
// cycle, so several bindings on the same credential, or a media message plus
// its caption fallback, cost a single account-info round trip. The cache is
// never reused across posts — a stale admin list must not outlive a dispatch.
type SenderResolver struct {
	mu    sync.Mutex
	cache map[string]string
}

func NewSenderResolver() *SenderResolver {
	return &SenderResolver{cache: make(map[string]string)}
}

// SenderID returns the id of the channel's superadmin, or the first admin
// when no superadmin exists. The false return means the account has no
// usable member yet; that is an expected state, not an error, and callers
// skip the destination for this attempt.
func (r *SenderResolver) SenderID(ctx context.Context, token string, client domain.DestinationClient) (string, bool) {
	r.mu.Lock()
	if id, ok := r.cache[token]; ok {
		r.mu.Unlock()
		return id, true
	}
	r.mu.Unlock()

	members, err := client.AccountInfo(ctx)
	if err != nil {
		return "", false
	}
	id, ok := pickSender(members)
	if !ok {
		return "", false
	}

	r.mu.Lock()
	r.cache[token] = id
	r.mu.Unlock()
	return id, true
}

func pickSender(members []domain.AccountMember) (string, bool) {
	for _, m := range members {
		if m.Role == "superadmin" {
			return m.ID, true
		}
	}
	for _, m := range members {
		if m.Role == "admin" {
			return m.ID, true
		}
	}
	return "", false
}
