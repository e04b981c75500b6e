package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lastsold-monitor/models"
)

func sampleRecord(t *testing.T) models.SaleRecord {
	t.Helper()
	rec, err := models.NewSaleRecord(
		"https://www.tcgplayer.com/product/649586/pikachu",
		"Pikachu - 020/M-P",
		decimal.RequireFromString("25.99"),
		models.AbsoluteDate(time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)),
		"Near Mint",
	)
	require.NoError(t, err)
	return rec
}

func TestFormatSale(t *testing.T) {
	got := FormatSale(sampleRecord(t))
	assert.Equal(t, "💰 New Sale: Pikachu - 020/M-P - $25.99 (Near Mint) - 2024-01-15\nhttps://www.tcgplayer.com/product/649586/pikachu", got)
}

func TestDiscordNotify(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, time.Second)
	require.NoError(t, d.Notify(context.Background(), sampleRecord(t)))

	assert.Equal(t, discordUsername, got.Username)
	assert.Contains(t, got.Content, "$25.99")
	assert.Contains(t, got.Content, "Near Mint")
}

func TestDiscordErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscord(srv.URL, time.Second).Announce(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotificationFailure)
	assert.Contains(t, err.Error(), "429")
}

func TestDiscordSendImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		var p discordPayload
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("payload_json")), &p))
		assert.Equal(t, "chart", p.Content)

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "pikachu.png", hdr.Filename)
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewDiscord(srv.URL, time.Second).SendImage(context.Background(), "chart", "pikachu.png", []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
}

func TestNewDiscordEmptyURL(t *testing.T) {
	assert.Nil(t, NewDiscord("", time.Second))
}

type stubNotifier struct {
	err       error
	calls     int
	announced []string
}

func (s *stubNotifier) Notify(context.Context, models.SaleRecord) error {
	s.calls++
	return s.err
}

func (s *stubNotifier) Announce(_ context.Context, content string) error {
	s.announced = append(s.announced, content)
	return s.err
}

func TestMultiContinuesAfterFailure(t *testing.T) {
	failing := &stubNotifier{err: errors.New("webhook down")}
	ok := &stubNotifier{}
	m := NewMulti(failing, nil, ok)
	require.Equal(t, 2, m.Len())

	err := m.Notify(context.Background(), sampleRecord(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook down")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)

	require.Error(t, m.Announce(context.Background(), "started"))
	assert.Equal(t, []string{"started"}, ok.announced)
}

func TestEmailNotify(t *testing.T) {
	var sent *email.Email
	e := NewEmail(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "bot@example.com", To: []string{"me@example.com"}})
	e.send = func(m *email.Email) error {
		sent = m
		return nil
	}

	require.NoError(t, e.Notify(context.Background(), sampleRecord(t)))
	require.NotNil(t, sent)
	assert.Equal(t, []string{"me@example.com"}, sent.To)
	assert.Equal(t, "New sale: Pikachu - 020/M-P $25.99", sent.Subject)
	assert.Contains(t, string(sent.Text), "Near Mint")

	e.send = func(*email.Email) error { return errors.New("connection refused") }
	err := e.Notify(context.Background(), sampleRecord(t))
	assert.ErrorIs(t, err, ErrNotificationFailure)
}

func TestStartupMessage(t *testing.T) {
	msg := StartupMessage([]string{"Pikachu", "Elite Trainer Box"}, time.Minute)
	assert.Contains(t, msg, "Monitoring 2 cards")
	assert.Contains(t, msg, "• Pikachu\n")
	assert.Contains(t, msg, "every 1m0s")
}
