package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"lastsold-monitor/models"
)

const discordUsername = "TCGPlayer Last Sold Monitor"

type discordPayload struct {
	Content  string `json:"content"`
	Username string `json:"username"`
}

// Discord posts messages to a Discord (or compatible) chat webhook.
type Discord struct {
	webhookURL string
	username   string
	client     *resty.Client
}

// NewDiscord returns nil when webhookURL is empty.
func NewDiscord(webhookURL string, timeout time.Duration) *Discord {
	if webhookURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("user-agent", "lastsold-monitor/1.0")

	return &Discord{webhookURL: webhookURL, username: discordUsername, client: client}
}

// WithUsername overrides the display name used for posts.
func (d *Discord) WithUsername(name string) *Discord {
	d.username = name
	return d
}

func (d *Discord) Notify(ctx context.Context, rec models.SaleRecord) error {
	return d.Announce(ctx, FormatSale(rec))
}

func (d *Discord) Announce(ctx context.Context, content string) error {
	res, err := d.client.R().
		SetContext(ctx).
		SetBody(discordPayload{Content: content, Username: d.username}).
		Post(d.webhookURL)
	if err != nil {
		return fmt.Errorf("%w: discord: %v", ErrNotificationFailure, err)
	}
	if res.IsError() {
		return fmt.Errorf("%w: discord: status %d: %s", ErrNotificationFailure, res.StatusCode(), res.String())
	}
	return nil
}

// SendImage uploads a PNG attachment with a message.
func (d *Discord) SendImage(ctx context.Context, content, filename string, png []byte) error {
	payload, err := json.Marshal(discordPayload{Content: content, Username: d.username})
	if err != nil {
		return fmt.Errorf("%w: discord: encode payload: %v", ErrNotificationFailure, err)
	}

	res, err := d.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"payload_json": string(payload)}).
		SetFileReader("file", filename, bytes.NewReader(png)).
		Post(d.webhookURL)
	if err != nil {
		return fmt.Errorf("%w: discord: upload %s: %v", ErrNotificationFailure, filename, err)
	}
	if res.IsError() {
		return fmt.Errorf("%w: discord: upload %s: status %d", ErrNotificationFailure, filename, res.StatusCode())
	}
	return nil
}
