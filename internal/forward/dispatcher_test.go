package forward

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"vibergram/internal/domain"
)

// --- fakes ---

type fakeClient struct {
	mu        sync.Mutex
	members   []domain.AccountMember
	infoErr   error
	infoCalls int

	webhookErr error
	webhooks   []string

	textErr    error
	pictureErr error
	videoErr   error
	panicText  bool

	sent []string // operation log, e.g. "text:hello" or "picture:url|caption"
}

func (f *fakeClient) SetWebhook(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks = append(f.webhooks, url)
	return f.webhookErr
}

func (f *fakeClient) AccountInfo(ctx context.Context) ([]domain.AccountMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoCalls++
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.members, nil
}

func (f *fakeClient) SendText(ctx context.Context, text, senderID string) error {
	if f.panicText {
		panic("send exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.textErr != nil {
		return f.textErr
	}
	f.sent = append(f.sent, "text:"+text)
	return nil
}

func (f *fakeClient) SendPicture(ctx context.Context, mediaURL, caption, senderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pictureErr != nil {
		return f.pictureErr
	}
	f.sent = append(f.sent, "picture:"+mediaURL+"|"+caption)
	return nil
}

func (f *fakeClient) SendVideo(ctx context.Context, mediaURL, caption string, sizeBytes int64, durationSeconds int, senderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.videoErr != nil {
		return f.videoErr
	}
	f.sent = append(f.sent, fmt.Sprintf("video:%s|%s|%d|%d", mediaURL, caption, sizeBytes, durationSeconds))
	return nil
}

func (f *fakeClient) operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeRegistry struct {
	bindings []domain.ChannelBinding
	err      error
}

func (r *fakeRegistry) ListActiveBySource(ctx context.Context, sourceChatID string) ([]domain.ChannelBinding, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []domain.ChannelBinding
	for _, b := range r.bindings {
		if b.SourceChatID == sourceChatID && b.Active {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeRegistry) Create(ctx context.Context, b domain.ChannelBinding) (int64, error) {
	return 0, errors.New("not implemented")
}
func (r *fakeRegistry) ListByOwner(ctx context.Context, ownerID int64) ([]domain.ChannelBinding, error) {
	return nil, errors.New("not implemented")
}
func (r *fakeRegistry) SetActive(ctx context.Context, id, ownerID int64, active bool) (bool, error) {
	return false, errors.New("not implemented")
}
func (r *fakeRegistry) Delete(ctx context.Context, id, ownerID int64) (bool, error) {
	return false, errors.New("not implemented")
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) NotifyAdmin(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

// --- fixtures ---

func adminMembers() []domain.AccountMember {
	return []domain.AccountMember{{ID: "admin-1", Name: "Ann", Role: "superadmin"}}
}

func testBindings(n int) []domain.ChannelBinding {
	out := make([]domain.ChannelBinding, n)
	for i := range out {
		out[i] = domain.ChannelBinding{
			ID:           int64(i + 1),
			OwnerID:      int64(100 + i),
			ViberToken:   fmt.Sprintf("token-%d", i+1),
			SourceChatID: "-1001",
			Active:       true,
		}
	}
	return out
}

func newTestDispatcher(reg domain.BindingRegistry, clients map[string]*fakeClient, notifier domain.Notifier, limit int) *Dispatcher {
	return New(Config{
		Registry: reg,
		Clients: func(token string) domain.DestinationClient {
			return clients[token]
		},
		Notifier:         notifier,
		WebhookURL:       "https://hooks.example.com/viber",
		MessageByteLimit: limit,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func textPost(text string) domain.SourcePost {
	return domain.SourcePost{SourceChatID: "-1001", SourceTitle: "@news", Text: text}
}

// --- tests ---

func TestDispatchNoBindingsDiscardsSilently(t *testing.T) {
	notifier := &fakeNotifier{}
	d := newTestDispatcher(&fakeRegistry{}, nil, notifier, 0)

	outcomes := d.Dispatch(context.Background(), textPost("hello"))
	if outcomes != nil {
		t.Fatalf("expected nil outcomes, got %v", outcomes)
	}
	if notifier.count() != 0 {
		t.Fatalf("expected no admin notifications, got %d", notifier.count())
	}
}

func TestDispatchRegistryErrorNotifiesAdmin(t *testing.T) {
	notifier := &fakeNotifier{}
	d := newTestDispatcher(&fakeRegistry{err: errors.New("db locked")}, nil, notifier, 0)

	if outcomes := d.Dispatch(context.Background(), textPost("hello")); outcomes != nil {
		t.Fatalf("expected nil outcomes, got %v", outcomes)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected 1 admin notification, got %d", notifier.count())
	}
}

func TestDispatchFanOutIsolation(t *testing.T) {
	// Destination 2 always fails; 1 and 3 must still succeed.
	clients := map[string]*fakeClient{
		"token-1": {members: adminMembers()},
		"token-2": {members: adminMembers(), textErr: errors.New("transport down")},
		"token-3": {members: adminMembers()},
	}
	notifier := &fakeNotifier{}
	d := newTestDispatcher(&fakeRegistry{bindings: testBindings(3)}, clients, notifier, 0)

	outcomes := d.Dispatch(context.Background(), textPost("hello"))
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	wantKinds := []domain.OutcomeKind{domain.OutcomeSuccess, domain.OutcomeFailure, domain.OutcomeSuccess}
	for i, want := range wantKinds {
		if outcomes[i].Kind != want {
			t.Errorf("outcome %d: kind %s, want %s (detail: %s)", i, outcomes[i].Kind, want, outcomes[i].Detail)
		}
	}
	if got := clients["token-1"].operations(); len(got) != 1 || got[0] != "text:hello" {
		t.Errorf("destination 1 operations: %v", got)
	}
	if got := clients["token-3"].operations(); len(got) != 1 || got[0] != "text:hello" {
		t.Errorf("destination 3 operations: %v", got)
	}
	if notifier.count() != 1 {
		t.Errorf("expected 1 failure notification, got %d", notifier.count())
	}
}

func TestDispatchPanicIsolation(t *testing.T) {
	clients := map[string]*fakeClient{
		"token-1": {members: adminMembers(), panicText: true},
		"token-2": {members: adminMembers()},
	}
	d := newTestDispatcher(&fakeRegistry{bindings: testBindings(2)}, clients, &fakeNotifier{}, 0)

	outcomes := d.Dispatch(context.Background(), textPost("boom"))
	if outcomes[0].Kind != domain.OutcomeFailure || !strings.Contains(outcomes[0].Detail, "internal error") {
		t.Errorf("outcome 0: %+v", outcomes[0])
	}
	if outcomes[1].Kind != domain.OutcomeSuccess {
		t.Errorf("sibling task affected by panic: %+v", outcomes[1])
	}
}

func TestDispatchTextChunksSentInOrder(t *testing.T) {
	clients := map[string]*fakeClient{"token-1": {members: adminMembers()}}
	d := newTestDispatcher(&fakeRegistry{bindings: testBindings(1)}, clients, &fakeNotifier{}, 4)

	d.Dispatch(context.Background(), textPost("abcdefghij"))

	want := []string{"text:abcd", "text:efgh", "text:ij"}
	got := clients["token-1"].operations()
	if len(got) != len(want) {
		t.Fatalf("operations %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("operation %d: %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDispatchPhotoSelectsBestVariant(t *testing.T) {
	clients := map[string]*fakeClient{"token-1": {members: adminMembers()}}
	d := newTestDispatcher(&fakeRegistry{bindings: testBindings(1)}, clients, &fakeNotifier{}, 0)

	post := domain.SourcePost{
		SourceChatID: "-1001",
		Photo: []domain.PhotoVariant{
			{URL: "https://files.example.com/low", SizeRank: 90},
			{URL: "https://files.example.com/mid", SizeRank: 320},
			{URL: "https://files.example.com/high", SizeRank: 1280},
		},
		Caption: "a caption",
	}
	outcomes := d.Dispatch(context.Background(), post)
	if outcomes[0].Kind != domain.OutcomeSuccess {
		t.Fatalf("outcome: %+v", outcomes[0])
	}
	got := clients["token-1"].operations()
	if len(got) != 1 || got[0] != "picture:https://files.example.com/high|a caption" {
		t.Fatalf("operations: %v", got)
	}
}

func TestDispatchVideoMetadataPassedThrough(t *testing.T) {
	clients := map[string]*fakeClient{"token-1": {members: adminMembers()}}
	d := newTestDispatcher(&fakeRegistry{bindings: testBindings(1)}, clients, &fakeNotifier{}, 0)

	post := domain.SourcePost{
		SourceChatID: "-1001",
		Video:        &domain.Video{URL: "https://files.example.com/v.mp4", SizeBytes: 1048576, DurationSeconds: 42},
		Caption:      "clip",
	}
	d.Dispatch(context.Background(), post)

	got := clients["token-1"].operations()
	if len(got) != 1 || got[0] != "video:https://files.example.com/v.mp4|clip|1048576|42" {
		t.Fatalf("operations: %v", got)
	}
}

func TestDispatchUnresolvedSenderSkipsDestination(t *testing.T) {
	clients := map[string]*fakeClient{
		"token-1": {infoErr: errors.New("unreachable")},
		"token-2": {members: adminMembers()},
	}
	d := newTestDispatcher(&fakeRegistry{bindings: testBindings(2)}, clients, &fakeNotifier{}, 0)

	outcomes := d.Dispatch(context.Background(), textPost("hello"))
	if outcomes[0].Kind != domain.OutcomeFailure {
		t.Errorf("outcome 0: %+v", outcomes[0])
	}
	if len(clients["token-1"].operations()) != 0 {
		t.Errorf("skipped destination still sent: %v", clients["token-1"].operations())
	}
	if outcomes[1].Kind != domain.OutcomeSuccess {
		t.Errorf("sibling outcome: %+v", outcomes[1])
	}
}

func TestDispatchWebhookFailureIsNonFatal(t *testing.T) {
	clients := map[string]*fakeClient{
		"token-1": {members: adminMembers(), webhookErr: errors.New("bad url")},
	}
	d := newTestDispatcher(&fakeRegistry{bindings: testBindings(1)}, clients, &fakeNotifier{}, 0)

	outcomes := d.Dispatch(context.Background(), textPost("hello"))
	if outcomes[0].Kind != domain.OutcomeSuccess {
		t.Fatalf("webhook failure aborted delivery: %+v", outcomes[0])
	}
}

func TestDispatchPartialFailure(t *testing.T) {
	// Text delivers, photo does not: some content made it through.
	clients := map[string]*fakeClient{
		"token-1": {members: adminMembers(), pictureErr: errors.New("media rejected")},
	}
	d := newTestDispatcher(&fakeRegistry{bindings: testBindings(1)}, clients, &fakeNotifier{}, 0)

	post := domain.SourcePost{
		SourceChatID: "-1001",
		Text:         "hello",
		Photo:        []domain.PhotoVariant{{URL: "https://files.example.com/p", SizeRank: 100}},
	}
	outcomes := d.Dispatch(context.Background(), post)
	if outcomes[0].Kind != domain.OutcomePartialFailure {
		t.Fatalf("outcome: %+v", outcomes[0])
	}
	if !strings.Contains(outcomes[0].Detail, "photo") {
		t.Fatalf("detail should name the failed branch: %q", outcomes[0].Detail)
	}
}

func TestDispatchSharedCredentialResolvesOnce(t *testing.T) {
	// Two bindings on one credential: the resolver cache spares the
	// second account-info round trip.
	shared := &fakeClient{members: adminMembers()}
	clients := map[string]*fakeClient{"token-x": shared}
	bindings := []domain.ChannelBinding{
		{ID: 1, OwnerID: 1, ViberToken: "token-x", SourceChatID: "-1001", Active: true},
		{ID: 2, OwnerID: 2, ViberToken: "token-x", SourceChatID: "-1001", Active: true},
	}
	d := newTestDispatcher(&fakeRegistry{bindings: bindings}, clients, &fakeNotifier{}, 0)

	d.Dispatch(context.Background(), textPost("hello"))
	if shared.infoCalls > 2 {
		t.Fatalf("expected at most 2 account-info calls (racing tasks), got %d", shared.infoCalls)
	}
}
