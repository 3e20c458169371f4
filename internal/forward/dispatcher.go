package forward

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"vibergram/internal/domain"
	"vibergram/internal/metrics"
)

// defaultMessageByteLimit is the destination message ceiling used when the
// config leaves it unset. Keep in sync with viber.MaxMessageBytes.
const defaultMessageByteLimit = 7000

// Config wires the dispatcher's collaborators.
type Config struct {
	Registry domain.BindingRegistry
	Clients  domain.ClientFactory
	Notifier domain.Notifier

	// WebhookURL is registered best-effort on every delivery task, the way
	// the platform wants it re-asserted. Empty disables registration.
	WebhookURL string

	// MessageByteLimit is the destination's per-message byte ceiling.
	// Zero means the platform default.
	MessageByteLimit int

	Logger *slog.Logger
}

// Dispatcher fans one source post out to every active binding for its
// source channel. Tasks run concurrently and independently; one binding's
// failure never prevents, delays, or corrupts delivery to another. There is
// no retry: at most one attempt per post per destination.
type Dispatcher struct {
	registry   domain.BindingRegistry
	clients    domain.ClientFactory
	notifier   domain.Notifier
	webhookURL string
	maxBytes   int
	logger     *slog.Logger
}

func New(cfg Config) *Dispatcher {
	if cfg.MessageByteLimit <= 0 {
		cfg.MessageByteLimit = defaultMessageByteLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		registry:   cfg.Registry,
		clients:    cfg.Clients,
		notifier:   cfg.Notifier,
		webhookURL: cfg.WebhookURL,
		maxBytes:   cfg.MessageByteLimit,
		logger:     cfg.Logger,
	}
}

// Dispatch delivers post to every active binding of its source channel and
// returns one outcome per binding, in registry order. A channel with no
// bindings is a normal condition and returns nil. Dispatch blocks until
// every task reached a terminal state; there is no cancellation of
// individual in-flight tasks beyond ctx.
func (d *Dispatcher) Dispatch(ctx context.Context, post domain.SourcePost) []domain.DeliveryOutcome {
	metrics.PostsDispatched.Inc()

	bindings, err := d.registry.ListActiveBySource(ctx, post.SourceChatID)
	if err != nil {
		d.logger.Error("binding lookup failed", "source", post.SourceChatID, "err", err)
		d.notifier.NotifyAdmin(fmt.Sprintf("binding lookup failed for %s: %v", post.SourceChatID, err))
		return nil
	}
	if len(bindings) == 0 {
		return nil
	}

	d.logger.Info("dispatching post",
		"source", post.SourceChatID,
		"bindings", len(bindings),
		"has_text", post.Text != "",
		"has_photo", len(post.Photo) > 0,
		"has_video", post.Video != nil,
	)

	resolver := NewSenderResolver()
	outcomes := make([]domain.DeliveryOutcome, len(bindings))

	var wg sync.WaitGroup
	for i, b := range bindings {
		wg.Add(1)
		metrics.ActiveTasks.Inc()
		go func(i int, b domain.ChannelBinding) {
			defer wg.Done()
			defer metrics.ActiveTasks.Dec()
			defer func() {
				// A panicking task must not take its siblings down.
				if r := recover(); r != nil {
					d.logger.Error("delivery task panicked", "binding", b.ID, "panic", r)
					outcomes[i] = outcome(b, domain.OutcomeFailure, fmt.Sprintf("internal error: %v", r))
				}
			}()
			outcomes[i] = d.deliver(ctx, b, post, resolver)
		}(i, b)
	}
	wg.Wait()

	for _, o := range outcomes {
		metrics.DeliveriesTotal.Inc()
		if o.Failed() {
			metrics.DeliveryFailures.Inc()
			d.notifier.NotifyAdmin(fmt.Sprintf("delivery to binding %d: %s (%s)", o.BindingID, o.Kind, o.Detail))
		}
	}
	return outcomes
}

// deliver runs one binding's delivery attempt: best-effort webhook
// registration, sender resolution, then each content type the post carries.
func (d *Dispatcher) deliver(ctx context.Context, b domain.ChannelBinding, post domain.SourcePost, resolver *SenderResolver) domain.DeliveryOutcome {
	client := d.clients(b.ViberToken)

	if d.webhookURL != "" {
		if err := client.SetWebhook(ctx, d.webhookURL); err != nil {
			// Webhook registration is not required for outbound delivery.
			d.logger.Warn("webhook registration failed", "binding", b.ID, "err", err)
		}
	}

	senderID, ok := resolver.SenderID(ctx, b.ViberToken, client)
	if !ok {
		d.logger.Warn("no resolvable channel admin, skipping destination", "binding", b.ID)
		return outcome(b, domain.OutcomeFailure, "cannot resolve channel admin")
	}

	var errs []string
	sent := 0

	if post.Text != "" {
		rendered := Render(post.Text, post.TextSpans)
		chunks := Chunk(rendered, d.maxBytes)
		for n, chunk := range chunks {
			// Chunks go out strictly in order; a failed chunk stops the
			// rest so the destination never sees a gap in the middle.
			if err := client.SendText(ctx, chunk, senderID); err != nil {
				errs = append(errs, fmt.Sprintf("text chunk %d/%d: %v", n+1, len(chunks), err))
				break
			}
			sent++
		}
	}

	if len(post.Photo) > 0 {
		best := post.Photo[len(post.Photo)-1]
		caption := Render(post.Caption, post.CaptionSpans)
		if err := client.SendPicture(ctx, best.URL, caption, senderID); err != nil {
			errs = append(errs, fmt.Sprintf("photo: %v", err))
		} else {
			sent++
		}
	}

	if post.Video != nil {
		caption := Render(post.Caption, post.CaptionSpans)
		v := post.Video
		if err := client.SendVideo(ctx, v.URL, caption, v.SizeBytes, v.DurationSeconds, senderID); err != nil {
			errs = append(errs, fmt.Sprintf("video: %v", err))
		} else {
			sent++
		}
	}

	switch {
	case len(errs) == 0:
		return outcome(b, domain.OutcomeSuccess, "")
	case sent > 0:
		return outcome(b, domain.OutcomePartialFailure, strings.Join(errs, "; "))
	default:
		return outcome(b, domain.OutcomeFailure, strings.Join(errs, "; "))
	}
}

func outcome(b domain.ChannelBinding, kind domain.OutcomeKind, detail string) domain.DeliveryOutcome {
	return domain.DeliveryOutcome{BindingID: b.ID, OwnerID: b.OwnerID, Kind: kind, Detail: detail}
}
