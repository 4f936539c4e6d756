// Package notify delivers alert events. Delivery is best effort: callers log
// a failed Send and carry on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/dealhound/internal/models"
)

var ErrMissingCredentials = errors.New("notifier credentials missing")

type Notifier interface {
	Send(ctx context.Context, event models.AlertEvent) error
}

// Multi sends every event to all notifiers, even after one fails.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, event models.AlertEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier reports alerts on the process log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "alert")}
}

func (n *LogNotifier) Send(ctx context.Context, event models.AlertEvent) error {
	n.logger.WarnContext(ctx, fmt.Sprintf("ALERT: %s is below threshold", event.Reading.DisplayName()),
		"alert_id", event.ID.String(),
		"url", event.Reading.URL,
		"price", "$"+event.Reading.PriceString(),
		"threshold", "$"+event.Threshold.StringFixed(2),
	)
	return nil
}
