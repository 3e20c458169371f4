package channel

import (
	"testing"

	"vibergram/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestMapEntities(t *testing.T) {
	cases := []struct {
		name     string
		entities []tgbotapi.MessageEntity
		want     []domain.Span
	}{
		{
			name: "empty",
		},
		{
			name: "text link",
			entities: []tgbotapi.MessageEntity{
				{Type: "text_link", Offset: 5, Length: 4, URL: "https://example.com"},
			},
			want: []domain.Span{
				{OffsetUTF16: 5, LengthUTF16: 4, Kind: domain.SpanExplicitLink, URL: "https://example.com"},
			},
		},
		{
			name: "bare url",
			entities: []tgbotapi.MessageEntity{
				{Type: "url", Offset: 0, Length: 19},
			},
			want: []domain.Span{
				{OffsetUTF16: 0, LengthUTF16: 19, Kind: domain.SpanBareURL},
			},
		},
		{
			name: "formatting collapses to other",
			entities: []tgbotapi.MessageEntity{
				{Type: "bold", Offset: 0, Length: 3},
				{Type: "italic", Offset: 4, Length: 3},
				{Type: "code", Offset: 8, Length: 3},
			},
			want: []domain.Span{
				{OffsetUTF16: 0, LengthUTF16: 3, Kind: domain.SpanOther},
				{OffsetUTF16: 4, LengthUTF16: 3, Kind: domain.SpanOther},
				{OffsetUTF16: 8, LengthUTF16: 3, Kind: domain.SpanOther},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapEntities(tc.entities)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d spans, want %d", len(got), len(tc.want))
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("span %d: %+v, want %+v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestParseBindingID(t *testing.T) {
	cases := []struct {
		args   string
		wantID int64
		wantOK bool
	}{
		{"42", 42, true},
		{"  7  ", 7, true},
		{"7 extra", 7, true},
		{"", 0, false},
		{"abc", 0, false},
		{"-3", 0, false},
		{"0", 0, false},
	}
	for _, tc := range cases {
		id, ok := parseBindingID(tc.args)
		if id != tc.wantID || ok != tc.wantOK {
			t.Errorf("parseBindingID(%q) = (%d, %v), want (%d, %v)", tc.args, id, ok, tc.wantID, tc.wantOK)
		}
	}
}

func TestTokenPreview(t *testing.T) {
	if got := tokenPreview("abcdef123456"); got != "abcdef..." {
		t.Errorf("got %q", got)
	}
	// Short tokens are shown whole; there is nothing left to hide.
	if got := tokenPreview("abc"); got != "abc" {
		t.Errorf("got %q", got)
	}
}

func TestChatLabel(t *testing.T) {
	if got := chatLabel(nil); got != "" {
		t.Errorf("nil chat: %q", got)
	}
	if got := chatLabel(&tgbotapi.Chat{UserName: "news", Title: "News"}); got != "@news" {
		t.Errorf("username preferred: %q", got)
	}
	if got := chatLabel(&tgbotapi.Chat{Title: "Private News"}); got != "Private News" {
		t.Errorf("title fallback: %q", got)
	}
}
