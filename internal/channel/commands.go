package channel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"vibergram/internal/domain"
	"vibergram/internal/forward"
	"vibergram/internal/registry"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const startText = `Hi! I duplicate posts from Telegram channels into Viber channels.

Commands:
/setup <viber_token> <telegram_chat_id> - add a channel to forward
   (find <viber_token> under the Viber channel's Developer Tools;
    to get <telegram_chat_id>, add me to the channel as administrator)
/list - show your configured channels
/pause <channel_id> - suspend forwarding
/continue <channel_id> - resume forwarding
/delete <channel_id> - remove a channel
/ping - test the Viber integration`

func (t *Telegram) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		t.send(msg.Chat.ID, startText)
	case "setup":
		t.cmdSetup(ctx, msg)
	case "list":
		t.cmdList(ctx, msg)
	case "pause":
		t.cmdSetActive(ctx, msg, false)
	case "continue":
		t.cmdSetActive(ctx, msg, true)
	case "delete":
		t.cmdDelete(ctx, msg)
	case "ping":
		t.cmdPing(ctx, msg)
	default:
		t.send(msg.Chat.ID, "Unknown command. Type /start for the command list.")
	}
}

// cmdSetup validates both platform endpoints before anything is stored: the
// Viber token must answer get_account_info and the bot must be an
// administrator of the Telegram channel. Only validated bindings go active.
func (t *Telegram) cmdSetup(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		t.send(msg.Chat.ID, "Wrong format. Use: /setup <viber_token> <telegram_chat_id>")
		return
	}
	viberToken, chatArg := args[0], args[1]

	t.send(msg.Chat.ID, "Checking the Viber token and registering the webhook...")

	client := t.clients(viberToken)
	if t.webhookURL != "" {
		if err := client.SetWebhook(ctx, t.webhookURL); err != nil {
			// Not required for outbound delivery.
			t.logger.Warn("webhook registration failed during setup", "err", err)
		}
	}
	if _, err := client.AccountInfo(ctx); err != nil {
		t.logger.Warn("viber token validation failed", "err", err)
		t.send(msg.Chat.ID, "Invalid Viber token.")
		return
	}

	chatID, err := strconv.ParseInt(chatArg, 10, 64)
	if err != nil {
		t.send(msg.Chat.ID, "Invalid Telegram chat id.")
		return
	}
	member, err := t.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: t.bot.Self.ID},
	})
	if err != nil || (member.Status != "administrator" && member.Status != "creator") {
		t.send(msg.Chat.ID, "The bot is not an administrator of that channel.")
		return
	}

	id, err := t.registry.Create(ctx, domain.ChannelBinding{
		OwnerID:      msg.From.ID,
		ViberToken:   viberToken,
		SourceChatID: chatArg,
		Active:       true,
	})
	if errors.Is(err, registry.ErrDuplicateBinding) {
		t.send(msg.Chat.ID, "This channel is already added.")
		return
	}
	if err != nil {
		t.logger.Error("binding create failed", "err", err)
		t.send(msg.Chat.ID, "Setup failed: "+err.Error())
		return
	}

	t.NotifyAdmin(fmt.Sprintf("New channel connected: %s (binding %d)", chatArg, id))
	t.send(msg.Chat.ID, fmt.Sprintf("Setup saved. Channel: %s, binding id: %d", chatArg, id))
}

func (t *Telegram) cmdList(ctx context.Context, msg *tgbotapi.Message) {
	bindings, err := t.registry.ListByOwner(ctx, msg.From.ID)
	if err != nil {
		t.logger.Error("binding list failed", "err", err)
		t.send(msg.Chat.ID, "Cannot list channels right now.")
		return
	}
	if len(bindings) == 0 {
		t.send(msg.Chat.ID, "You have no configured channels.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your channels:")
	for _, b := range bindings {
		status := "active"
		if !b.Active {
			status = "paused"
		}
		fmt.Fprintf(&sb, "\n\nID: %d\nTelegram Chat ID: %s\nViber Token: %s\nStatus: %s",
			b.ID, b.SourceChatID, tokenPreview(b.ViberToken), status)
	}
	t.send(msg.Chat.ID, sb.String())
}

func (t *Telegram) cmdSetActive(ctx context.Context, msg *tgbotapi.Message, active bool) {
	verb := "resumed"
	usage := "/continue <channel_id>"
	if !active {
		verb = "paused"
		usage = "/pause <channel_id>"
	}

	id, ok := parseBindingID(msg.CommandArguments())
	if !ok {
		t.send(msg.Chat.ID, "Specify a channel id: "+usage)
		return
	}

	changed, err := t.registry.SetActive(ctx, id, msg.From.ID, active)
	if errors.Is(err, registry.ErrDuplicateBinding) {
		t.send(msg.Chat.ID, "Cannot resume: an identical active channel already exists.")
		return
	}
	if err != nil {
		t.logger.Error("binding update failed", "id", id, "err", err)
		t.send(msg.Chat.ID, "Update failed: "+err.Error())
		return
	}
	if !changed {
		t.send(msg.Chat.ID, "Channel not found or not yours.")
		return
	}
	t.send(msg.Chat.ID, fmt.Sprintf("Forwarding for channel ID %d %s.", id, verb))
}

func (t *Telegram) cmdDelete(ctx context.Context, msg *tgbotapi.Message) {
	id, ok := parseBindingID(msg.CommandArguments())
	if !ok {
		t.send(msg.Chat.ID, "Specify a channel id: /delete <channel_id>")
		return
	}

	deleted, err := t.registry.Delete(ctx, id, msg.From.ID)
	if err != nil {
		t.logger.Error("binding delete failed", "id", id, "err", err)
		t.send(msg.Chat.ID, "Delete failed: "+err.Error())
		return
	}
	if !deleted {
		t.send(msg.Chat.ID, "Channel not found or not yours.")
		return
	}
	t.send(msg.Chat.ID, fmt.Sprintf("Channel ID %d deleted.", id))
}

// cmdPing round-trips a "ping" message through the configured test channel.
func (t *Telegram) cmdPing(ctx context.Context, msg *tgbotapi.Message) {
	if t.testToken == "" {
		t.send(msg.Chat.ID, "No Viber test token configured.")
		return
	}
	t.send(msg.Chat.ID, "Running /ping...")

	client := t.clients(t.testToken)
	if t.webhookURL != "" {
		if err := client.SetWebhook(ctx, t.webhookURL); err != nil {
			t.logger.Warn("webhook registration failed during ping", "err", err)
		}
	}

	senderID, ok := forward.NewSenderResolver().SenderID(ctx, t.testToken, client)
	if !ok {
		t.send(msg.Chat.ID, "Ping failed: cannot resolve the channel admin.")
		return
	}
	if err := client.SendText(ctx, "ping", senderID); err != nil {
		t.send(msg.Chat.ID, "Ping failed: "+err.Error())
		return
	}
	t.send(msg.Chat.ID, "Ping sent to the Viber channel.")
}

func parseBindingID(args string) (int64, bool) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func tokenPreview(token string) string {
	if len(token) <= 6 {
		return token
	}
	return token[:6] + "..."
}
