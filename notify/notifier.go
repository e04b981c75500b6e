// Package notify delivers alerts about newly detected sales. Delivery is best
// effort: callers log failures and never retry them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lastsold-monitor/models"
)

// ErrNotificationFailure wraps every delivery error.
var ErrNotificationFailure = errors.New("notification failed")

// Notifier delivers one alert per new sale.
type Notifier interface {
	Notify(ctx context.Context, rec models.SaleRecord) error
}

// Announcer sends free-form messages, e.g. the startup notice.
type Announcer interface {
	Announce(ctx context.Context, content string) error
}

// Multi fans an alert out to several notifiers. One failing channel does not
// stop the others; all errors are joined.
type Multi struct {
	notifiers []Notifier
}

// NewMulti builds a Multi, dropping nil entries.
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Len returns the number of configured channels.
func (m *Multi) Len() int { return len(m.notifiers) }

func (m *Multi) Notify(ctx context.Context, rec models.SaleRecord) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Announce(ctx context.Context, content string) error {
	var errs []error
	for _, n := range m.notifiers {
		if a, ok := n.(Announcer); ok {
			if err := a.Announce(ctx, content); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// FormatSale renders the alert text for a record.
func FormatSale(rec models.SaleRecord) string {
	title := rec.Title()
	if title == "" {
		title = rec.CardURL()
	}
	return fmt.Sprintf("💰 New Sale: %s - $%s (%s) - %s\n%s",
		title, rec.Price().StringFixed(2), rec.Condition(), rec.SoldAt(), rec.CardURL())
}

// StartupMessage lists the monitored cards and the polling interval.
func StartupMessage(cardNames []string, interval time.Duration) string {
	var b strings.Builder
	b.WriteString("🚀 **TCGPlayer Monitor Started!**\n\n")
	fmt.Fprintf(&b, "📊 **Monitoring %d cards:**\n", len(cardNames))
	for _, name := range cardNames {
		fmt.Fprintf(&b, "• %s\n", name)
	}
	fmt.Fprintf(&b, "\n⏰ **Check interval:** every %s\n", interval)
	b.WriteString("🔔 **Alerts:** new sales only\n")
	return b.String()
}
