package console

import (
	"context"
	"log/slog"

	"ApartmentHunter/internal/domain"
	"ApartmentHunter/internal/ports"
)

// Notifier reports qualifying listings through the application log. It is
// always enabled so that a scan without Telegram credentials still surfaces results.
type Notifier struct {
	logger *slog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

func (n *Notifier) Name() string {
	return "console"
}

// Notify never fails.
func (n *Notifier) Notify(ctx context.Context, l domain.Listing) error {
	attrs := []any{
		"title", l.Title,
		"location", l.Location,
		"pets", string(l.PetsAllowed),
		"url", l.URL,
	}
	if l.Price != nil {
		attrs = append(attrs, "price", *l.Price)
	}
	if l.Rooms != nil {
		attrs = append(attrs, "rooms", *l.Rooms)
	}
	n.logger.InfoContext(ctx, "apartment found", attrs...)
	return nil
}
