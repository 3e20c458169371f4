// Package channel implements the Telegram source-platform adapter: it
// ingests channel posts, serves the owner command surface, and doubles as
// the admin notification sink.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"vibergram/internal/domain"
	"vibergram/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram polls the Bot API and publishes every channel post to the bus.
type Telegram struct {
	token       string
	adminChatID int64
	webhookURL  string
	testToken   string

	registry domain.BindingRegistry
	clients  domain.ClientFactory
	bus      domain.PostBus

	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

var _ domain.Notifier = (*Telegram)(nil)

type TelegramConfig struct {
	Token       string
	AdminChatID int64
	WebhookURL  string
	TestToken   string
	Registry    domain.BindingRegistry
	Clients     domain.ClientFactory
	Bus         domain.PostBus
	Logger      *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	return &Telegram{
		token:       cfg.Token,
		adminChatID: cfg.AdminChatID,
		webhookURL:  cfg.WebhookURL,
		testToken:   cfg.TestToken,
		registry:    cfg.Registry,
		clients:     cfg.Clients,
		bus:         cfg.Bus,
		logger:      cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and begins polling for updates. It returns
// when ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	// my_chat_member is not delivered unless asked for explicitly.
	u.AllowedUpdates = []string{"message", "channel_post", "my_chat_member"}
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.ChannelPost != nil:
		t.handleChannelPost(update.ChannelPost)
	case update.MyChatMember != nil:
		t.handlePromotion(update.MyChatMember)
	case update.Message != nil && update.Message.IsCommand():
		t.handleCommand(ctx, update.Message)
	}
}

func (t *Telegram) handleChannelPost(msg *tgbotapi.Message) {
	metrics.PostsReceived.Inc()
	post := t.buildPost(msg)
	t.logger.Info("channel post received",
		"chat_id", post.SourceChatID,
		"has_text", post.Text != "",
		"has_photo", len(post.Photo) > 0,
		"has_video", post.Video != nil,
	)
	t.bus.Publish(post)
}

// buildPost snapshots one channel post into the pipeline's source format.
// Media file ids are resolved into direct download URLs here, so the rest
// of the pipeline never touches the Bot API.
func (t *Telegram) buildPost(msg *tgbotapi.Message) domain.SourcePost {
	post := domain.SourcePost{
		SourceChatID: strconv.FormatInt(msg.Chat.ID, 10),
		SourceTitle:  chatLabel(msg.Chat),
		Text:         msg.Text,
		TextSpans:    mapEntities(msg.Entities),
		Caption:      msg.Caption,
		CaptionSpans: mapEntities(msg.CaptionEntities),
		ReceivedAt:   time.Now(),
	}

	for _, p := range msg.Photo {
		url, err := t.bot.GetFileDirectURL(p.FileID)
		if err != nil {
			t.logger.Warn("cannot resolve photo file", "file_id", p.FileID, "err", err)
			continue
		}
		post.Photo = append(post.Photo, domain.PhotoVariant{URL: url, SizeRank: p.Width})
	}

	if msg.Video != nil {
		url, err := t.bot.GetFileDirectURL(msg.Video.FileID)
		if err != nil {
			t.logger.Warn("cannot resolve video file", "file_id", msg.Video.FileID, "err", err)
		} else {
			post.Video = &domain.Video{
				URL:             url,
				SizeBytes:       int64(msg.Video.FileSize),
				DurationSeconds: msg.Video.Duration,
			}
		}
	}

	return post
}

// mapEntities converts Bot API entities into source spans. Offsets arrive
// in UTF-16 code units and are passed through untouched; the renderer does
// the unit math.
func mapEntities(entities []tgbotapi.MessageEntity) []domain.Span {
	if len(entities) == 0 {
		return nil
	}
	spans := make([]domain.Span, 0, len(entities))
	for _, e := range entities {
		span := domain.Span{OffsetUTF16: e.Offset, LengthUTF16: e.Length, Kind: domain.SpanOther}
		switch e.Type {
		case "text_link":
			span.Kind = domain.SpanExplicitLink
			span.URL = e.URL
		case "url":
			span.Kind = domain.SpanBareURL
		}
		spans = append(spans, span)
	}
	return spans
}

// handlePromotion reacts to the bot being made a channel administrator: it
// DMs the promoting user the chat id and setup instructions. When the DM is
// not possible (the user never started the bot), the message lands in the
// channel itself so the information is not lost.
func (t *Telegram) handlePromotion(m *tgbotapi.ChatMemberUpdated) {
	if m.NewChatMember.Status != "administrator" {
		return
	}

	text := fmt.Sprintf(
		"The bot was added to a channel:\nTitle: %s\nType: %s\nChat ID: %d\n\n"+
			"To set up forwarding, use:\n/setup <viber_token> %d",
		m.Chat.Title, m.Chat.Type, m.Chat.ID, m.Chat.ID,
	)

	if _, err := t.bot.Send(tgbotapi.NewMessage(m.From.ID, text)); err != nil {
		t.logger.Warn("cannot DM promoting user, replying in channel", "user", m.From.ID, "err", err)
		t.send(m.Chat.ID, text)
	}
}

// NotifyAdmin implements domain.Notifier. Fire-and-forget by contract.
func (t *Telegram) NotifyAdmin(message string) {
	if t.adminChatID == 0 || t.bot == nil {
		return
	}
	t.send(t.adminChatID, message)
}

// NotifyOwner sends a progress or failure line to a binding owner's
// private chat.
func (t *Telegram) NotifyOwner(ownerID int64, message string) {
	if t.bot == nil {
		return
	}
	t.send(ownerID, message)
}

// ReportOutcomes tells each binding owner how their delivery went.
func (t *Telegram) ReportOutcomes(post domain.SourcePost, outcomes []domain.DeliveryOutcome) {
	for _, o := range outcomes {
		switch o.Kind {
		case domain.OutcomeSuccess:
			t.NotifyOwner(o.OwnerID, fmt.Sprintf("Post from %s forwarded to Viber (binding %d).", post.SourceTitle, o.BindingID))
		case domain.OutcomePartialFailure:
			t.NotifyOwner(o.OwnerID, fmt.Sprintf("Post from %s partially forwarded (binding %d): %s", post.SourceTitle, o.BindingID, o.Detail))
		default:
			t.NotifyOwner(o.OwnerID, fmt.Sprintf("Forwarding from %s failed (binding %d): %s", post.SourceTitle, o.BindingID, o.Detail))
		}
	}
}

func (t *Telegram) send(chatID int64, text string) {
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		t.logger.Error("telegram send failed", "chat_id", chatID, "err", err)
	}
}

func chatLabel(chat *tgbotapi.Chat) string {
	if chat == nil {
		return ""
	}
	if chat.UserName != "" {
		return "@" + chat.UserName
	}
	return chat.Title
}
