// Package viber implements the Viber Channels API ("chatapi") client used
// as the destination side of the forwarding pipeline. There is no official
// Go SDK for this API; it is plain JSON over HTTPS.
package viber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"vibergram/internal/domain"
	"vibergram/internal/forward"
)

const (
	// DefaultAPIBase is the production Viber chat API endpoint.
	DefaultAPIBase = "https://chatapi.viber.com/pa"

	// MaxMessageBytes is the remote ceiling on one text message body, in
	// UTF-8 bytes. Longer text must be chunked before SendText.
	MaxMessageBytes = 7000

	// MaxCaptionBytes is the much smaller ceiling on a media caption.
	// Larger captions trigger the separate-text fallback.
	MaxCaptionBytes = 768

	defaultTimeout = 30 * time.Second
)

// APIError is a non-zero status answer from the Viber API.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("viber %s: status %d: %s", e.Endpoint, e.Status, e.Message)
}

// Client talks to the Viber API on behalf of one channel credential. It is
// stateless aside from the token and safe for concurrent use.
type Client struct {
	token   string
	apiBase string
	hc      *http.Client
	logger  *slog.Logger
}

var _ domain.DestinationClient = (*Client)(nil)

// Factory builds per-credential clients that share one HTTP connection
// pool. Clients are cheap to construct; the dispatcher asks for one per
// delivery task.
type Factory struct {
	apiBase string
	hc      *http.Client
	logger  *slog.Logger
}

// NewFactory creates a client factory. Zero values select the production
// endpoint and the default request timeout.
func NewFactory(apiBase string, timeout time.Duration, logger *slog.Logger) *Factory {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		apiBase: apiBase,
		hc:      &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Client returns a DestinationClient bound to token.
func (f *Factory) Client(token string) domain.DestinationClient {
	return &Client{token: token, apiBase: f.apiBase, hc: f.hc, logger: f.logger}
}

// apiResponse is the common envelope of every chatapi answer. Status 0
// means accepted; anything else carries a status_message.
type apiResponse struct {
	Status        int             `json:"status"`
	StatusMessage string          `json:"status_message"`
	Members       []accountMember `json:"members"`
	MessageToken  int64           `json:"message_token"`
}

type accountMember struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// post sends one JSON request. The credential travels both in the body and
// in the X-Viber-Auth-Token header, as the API requires.
func (c *Client) post(ctx context.Context, endpoint string, payload map[string]any) (*apiResponse, error) {
	payload["auth_token"] = c.token

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Viber-Auth-Token", c.token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("viber %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("viber %s: HTTP %d: %s", endpoint, resp.StatusCode, string(respBody))
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("viber %s: decode: %w", endpoint, err)
	}
	if parsed.Status != 0 {
		return &parsed, &APIError{Endpoint: endpoint, Status: parsed.Status, Message: parsed.StatusMessage}
	}
	return &parsed, nil
}

// SetWebhook registers url as the channel's callback. Registration is not
// required for outbound delivery; callers treat any error as a warning.
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	_, err := c.post(ctx, "/set_webhook", map[string]any{"url": url})
	if err != nil {
		return err
	}
	c.logger.Debug("viber webhook registered", "url", url)
	return nil
}

// AccountInfo fetches the channel's member list.
func (c *Client) AccountInfo(ctx context.Context) ([]domain.AccountMember, error) {
	resp, err := c.post(ctx, "/get_account_info", map[string]any{})
	if err != nil {
		return nil, err
	}
	members := make([]domain.AccountMember, 0, len(resp.Members))
	for _, m := range resp.Members {
		members = append(members, domain.AccountMember{ID: m.ID, Name: m.Name, Role: m.Role})
	}
	return members, nil
}

// SendText sends one pre-chunked piece of text. It never splits internally;
// text over MaxMessageBytes is the caller's bug, not handled here.
func (c *Client) SendText(ctx context.Context, text, senderID string) error {
	return c.send(ctx, domain.TextMessage(text), senderID)
}

// SendPicture sends a picture. A caption over MaxCaptionBytes is not
// truncated: the picture goes out with an empty caption and the full
// caption follows as an independently chunked text message.
func (c *Client) SendPicture(ctx context.Context, mediaURL, caption, senderID string) error {
	if len(caption) <= MaxCaptionBytes {
		return c.send(ctx, domain.PictureMessage(mediaURL, caption), senderID)
	}
	if err := c.send(ctx, domain.PictureMessage(mediaURL, ""), senderID); err != nil {
		return err
	}
	return c.sendCaptionFallback(ctx, caption, senderID)
}

// SendVideo sends a video with size and duration passed through unchanged.
// Caption overflow behaves exactly as in SendPicture.
func (c *Client) SendVideo(ctx context.Context, mediaURL, caption string, sizeBytes int64, durationSeconds int, senderID string) error {
	if len(caption) <= MaxCaptionBytes {
		return c.send(ctx, domain.VideoMessage(mediaURL, caption, sizeBytes, durationSeconds), senderID)
	}
	if err := c.send(ctx, domain.VideoMessage(mediaURL, "", sizeBytes, durationSeconds), senderID); err != nil {
		return err
	}
	return c.sendCaptionFallback(ctx, caption, senderID)
}

// sendCaptionFallback delivers an overlong caption as ordinary text,
// chunked against the message ceiling, strictly after the media message.
func (c *Client) sendCaptionFallback(ctx context.Context, caption, senderID string) error {
	for _, chunk := range forward.Chunk(caption, MaxMessageBytes) {
		if err := c.SendText(ctx, chunk, senderID); err != nil {
			return fmt.Errorf("caption fallback: %w", err)
		}
	}
	return nil
}

// send serializes the tagged message variant into the shared /post
// endpoint's payload. The endpoint is the same for every kind; the "type"
// field differentiates them.
func (c *Client) send(ctx context.Context, msg domain.OutboundMessage, senderID string) error {
	payload := map[string]any{
		"from": senderID,
		"type": string(msg.Kind),
		"text": msg.Text,
	}
	switch msg.Kind {
	case domain.OutboundPicture:
		payload["media"] = msg.MediaURL
	case domain.OutboundVideo:
		payload["media"] = msg.MediaURL
		payload["size"] = msg.SizeBytes
		payload["duration"] = msg.DurationSeconds
	}

	resp, err := c.post(ctx, "/post", payload)
	if err != nil {
		return err
	}
	c.logger.Debug("viber message sent", "type", msg.Kind, "message_token", resp.MessageToken)
	return nil
}
