package dispatch

import (
	"errors"
	"log/slog"

	"github.com/example/transport-marketplace/internal/models"
)

// Notifier tells interested passengers about new offers.
type Notifier interface {
	NotifyOffer(offer models.Offer) error
}

// LogNotifier only records the notification.
type LogNotifier struct {
	Logger *slog.Logger
}

func (d *LogNotifier) NotifyOffer(offer models.Offer) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("offer notification", "request_id", offer.RequestID, "offer_id", offer.ID, "price", offer.Price, "currency", offer.Currency)
	return nil
}

// Fanout delivers to every notifier in order and joins their errors.
type Fanout []Notifier

func (f Fanout) NotifyOffer(offer models.Offer) error {
	var errs []error
	for _, n := range f {
		if err := n.NotifyOffer(offer); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
