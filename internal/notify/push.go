package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/maruel/eduapi/internal/storage"
	"github.com/maruel/eduapi/internal/storage/identity"
	"github.com/maruel/ksid"
)

// errPermanent marks delivery failures that retrying cannot fix.
var errPermanent = errors.New("permanent delivery failure")

// errGone is returned by a Pusher when the subscription no longer exists.
var errGone = fmt.Errorf("push subscription gone: %w", errPermanent)

// Pusher sends one web push message.
type Pusher interface {
	Push(ctx context.Context, sub *identity.PushSubscription, payload []byte) error
}

// WebPush sends messages through the browser push services using VAPID.
type WebPush struct {
	VAPID storage.VAPIDConfig
	// HTTPClient overrides http.DefaultClient.
	HTTPClient *http.Client
}

// Push implements Pusher.
func (w *WebPush) Push(ctx context.Context, sub *identity.PushSubscription, payload []byte) error {
	opts := &webpush.Options{
		Subscriber:      w.VAPID.Subscriber,
		VAPIDPublicKey:  w.VAPID.PublicKey,
		VAPIDPrivateKey: w.VAPID.PrivateKey,
		TTL:             86400,
	}
	if w.HTTPClient != nil {
		opts.HTTPClient = w.HTTPClient
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, opts)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		return errGone
	case resp.StatusCode >= 500:
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service returned %d: %w", resp.StatusCode, errPermanent)
	}
	return nil
}

type pushPayload struct {
	Title string                    `json:"title"`
	Body  string                    `json:"body"`
	Type  identity.NotificationType `json:"type"`
	URL   string                    `json:"url"`
}

// push sends p to every subscription of the user. Expired subscriptions are
// deleted.
func (d *Dispatcher) push(ctx context.Context, userID ksid.ID, p pushPayload) {
	if d.opts.Pusher == nil || d.opts.Subscriptions == nil {
		return
	}
	payload, err := json.Marshal(p)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode push payload", "err", err)
		return
	}
	var subs []*identity.PushSubscription
	for sub := range d.opts.Subscriptions.ListByUser(userID) {
		subs = append(subs, sub)
	}
	for _, sub := range subs {
		err := d.retry(ctx, func() error { return d.opts.Pusher.Push(ctx, sub, payload) })
		switch {
		case errors.Is(err, errGone):
			if err := d.opts.Subscriptions.Delete(sub.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to delete expired push subscription", "err", err, "sub_id", sub.ID)
			}
		case err != nil:
			slog.ErrorContext(ctx, "Web push send failed", "err", err, "endpoint", sub.Endpoint)
		}
	}
}
