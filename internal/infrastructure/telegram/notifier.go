package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ApartmentHunter/internal/domain"
	"ApartmentHunter/internal/ports"
)

const (
	defaultEndpoint    = "https://api.telegram.org"
	descriptionPreview = 200
)

// Notifier sends listings to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier. An empty endpoint
// targets the public Bot API. perMinute paces outgoing messages; zero or less
// sends without waiting.
func NewNotifier(botToken, chatID, endpoint string, perMinute float64) *Notifier {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   &http.Client{Timeout: 5 * time.Second},
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Name identifies the channel in the notification log.
func (n *Notifier) Name() string {
	return "telegram"
}

// Notify posts a plain-text message describing the listing, waiting for the
// next send slot when paced.
func (n *Notifier) Notify(ctx context.Context, listing domain.Listing) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("%w: telegram notifier misconfigured", domain.ErrNotifyFailure)
	}
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: waiting for send slot: %w", domain.ErrNotifyFailure, err)
		}
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.endpoint, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", FormatMessage(listing))
	form.Set("disable_web_page_preview", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: new request: %w", domain.ErrNotifyFailure, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		// The client error embeds the URL, which carries the bot token.
		return fmt.Errorf("%w: telegram request failed", domain.ErrNotifyFailure)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: telegram error: %s", domain.ErrNotifyFailure, resp.Status)
	}

	return nil
}

// FormatMessage renders a listing as a short human-readable message.
func FormatMessage(l domain.Listing) string {
	var b strings.Builder
	b.WriteString("🏠 ")
	b.WriteString(orDash(l.Title))
	b.WriteString("\n💰 ")
	if l.Price != nil {
		b.WriteString(strconv.Itoa(*l.Price))
		b.WriteString(" ₪ per month")
	} else {
		b.WriteString("price on request")
	}
	b.WriteString("\n🛏 ")
	if l.Rooms != nil {
		b.WriteString(strconv.FormatFloat(*l.Rooms, 'f', -1, 64))
		b.WriteString(" rooms")
	} else {
		b.WriteString("rooms unknown")
	}
	b.WriteString("\n📍 ")
	b.WriteString(orDash(l.Location))
	if l.PetsAllowed != domain.PetsUnknown && l.PetsAllowed != "" {
		b.WriteString("\n🐾 pets ")
		b.WriteString(string(l.PetsAllowed))
	}
	if l.Description != "" {
		b.WriteString("\n📝 ")
		b.WriteString(preview(l.Description, descriptionPreview))
	}
	if l.URL != "" {
		b.WriteString("\n🔗 ")
		b.WriteString(l.URL)
	}
	return b.String()
}

func preview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
