// Package push delivers notifications to browser push subscriptions.
//
// Sender is the capability the dispatcher depends on. WebPush implements it
// with VAPID-signed, RFC 8291 encrypted requests. A 404 or 410 from the push
// service means the subscription is dead and should be pruned; any other
// failure is transient.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/tbourn/go-ops-notify/internal/config"
)

// ErrNotConfigured is returned when VAPID credentials are missing.
var ErrNotConfigured = errors.New("push delivery not configured")

// DeliveryError is a non-2xx answer from a push service.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("push service returned %d: %s", e.StatusCode, e.Body)
}

// Gone reports whether the subscription no longer exists.
func (e *DeliveryError) Gone() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// IsGone reports whether err carries a 404/410 DeliveryError.
func IsGone(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Gone()
}

// Subscription identifies a push endpoint and its encryption keys.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Sender delivers one encrypted payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub Subscription, payload []byte) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, sub Subscription, payload []byte) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, sub Subscription, payload []byte) error {
	return f(ctx, sub, payload)
}

// WebPush sends through the Web Push protocol.
type WebPush struct {
	publicKey  string
	privateKey string
	subscriber string
	ttl        time.Duration

	// HTTPClient overrides the transport; nil means a default client.
	HTTPClient webpush.HTTPClient
}

// NewWebPush builds a sender from cfg, or returns ErrNotConfigured.
func NewWebPush(cfg config.PushConfig) (*WebPush, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	return &WebPush{
		publicKey:  strings.TrimSpace(cfg.VAPIDPublicKey),
		privateKey: strings.TrimSpace(cfg.VAPIDPrivateKey),
		// webpush-go adds the mailto: scheme itself.
		subscriber: strings.TrimPrefix(strings.TrimSpace(cfg.Subject), "mailto:"),
		ttl:        cfg.TTL,
	}, nil
}

// Send encrypts payload for sub and posts it. Non-2xx answers become a
// *DeliveryError.
func (w *WebPush) Send(ctx context.Context, sub Subscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{Auth: sub.Auth, P256dh: sub.P256dh},
	}, &webpush.Options{
		HTTPClient:      w.HTTPClient,
		Subscriber:      w.subscriber,
		TTL:             int(w.ttl / time.Second),
		Urgency:         webpush.UrgencyHigh,
		VAPIDPublicKey:  w.publicKey,
		VAPIDPrivateKey: w.privateKey,
	})
	if err != nil {
		return err
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	de := &DeliveryError{StatusCode: resp.StatusCode}
	if resp.Body != nil {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		de.Body = strings.TrimSpace(string(b))
	}
	return de
}

// Action is a button shown on the notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification is the JSON body the service worker renders.
type Notification struct {
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	URL     string            `json:"url,omitempty"`
	Tag     string            `json:"tag,omitempty"`
	Actions []Action          `json:"actions,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

// Encode marshals n.
func (n Notification) Encode() ([]byte, error) {
	return json.Marshal(n)
}
