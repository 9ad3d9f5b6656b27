// Registers the browsers that receive publish workflow push notifications.

package identity

import (
	"errors"
	"iter"
	"net/url"

	"github.com/maruel/eduapi/internal/jsonldb"
	"github.com/maruel/eduapi/internal/storage"
	"github.com/maruel/ksid"
)

// PushSubscription is a browser registered by a user. P256dh and Auth are the
// client keys handed out by the browser's Push API.
type PushSubscription struct {
	ID       ksid.ID      `json:"id"`
	UserID   ksid.ID      `json:"user_id"`
	Endpoint string       `json:"endpoint"`
	P256dh   string       `json:"p256dh"`
	Auth     string       `json:"auth"`
	Created  storage.Time `json:"created"`
}

// Clone returns a copy.
func (p *PushSubscription) Clone() *PushSubscription {
	c := *p
	return &c
}

// GetID returns the subscription's ID.
func (p *PushSubscription) GetID() ksid.ID {
	return p.ID
}

// Validate requires both IDs and an absolute https endpoint.
func (p *PushSubscription) Validate() error {
	switch {
	case p.ID.IsZero():
		return errPushSubIDRequired
	case p.UserID.IsZero():
		return errPushSubUserIDRequired
	case p.Endpoint == "":
		return errPushSubEndpointRequired
	}
	if u, err := url.Parse(p.Endpoint); err != nil || u.Scheme != "https" || u.Host == "" {
		return errPushSubEndpointScheme
	}
	return nil
}

// PushSubscriptionService stores push subscriptions. An endpoint belongs to
// at most one user.
type PushSubscriptionService struct {
	table      *jsonldb.Table[*PushSubscription]
	byUser     *jsonldb.Index[ksid.ID, *PushSubscription]
	byEndpoint *jsonldb.UniqueIndex[string, *PushSubscription]
}

// NewPushSubscriptionService opens the subscription table at path.
func NewPushSubscriptionService(path string) (*PushSubscriptionService, error) {
	table, err := jsonldb.NewTable[*PushSubscription](path)
	if err != nil {
		return nil, err
	}
	return &PushSubscriptionService{
		table:      table,
		byUser:     jsonldb.NewIndex(table, func(p *PushSubscription) ksid.ID { return p.UserID }),
		byEndpoint: jsonldb.NewUniqueIndex(table, func(p *PushSubscription) string { return p.Endpoint }),
	}, nil
}

// Create registers endpoint for userID. When the same user registers the
// endpoint again the keys are rotated in place. An endpoint previously
// registered by someone else is handed over to userID with a new ID.
func (s *PushSubscriptionService) Create(userID ksid.ID, endpoint, p256dh, auth string) (*PushSubscription, error) {
	if id, ok := s.byEndpoint.Lookup(endpoint); ok {
		if prev := s.table.Get(id); prev != nil && prev.UserID == userID {
			return s.table.Modify(id, func(p *PushSubscription) error {
				p.P256dh = p256dh
				p.Auth = auth
				return nil
			})
		}
		if _, err := s.table.Delete(id); err != nil {
			return nil, err
		}
	}
	sub := &PushSubscription{
		ID:       ksid.NewID(),
		UserID:   userID,
		Endpoint: endpoint,
		P256dh:   p256dh,
		Auth:     auth,
		Created:  storage.Now(),
	}
	if err := s.table.Append(sub); err != nil {
		return nil, err
	}
	return sub.Clone(), nil
}

// ListByUser iterates over the subscriptions of a user.
func (s *PushSubscriptionService) ListByUser(userID ksid.ID) iter.Seq[*PushSubscription] {
	return s.byUser.Iter(userID)
}

// DeleteByEndpoint unregisters an endpoint of userID. Endpoints of other
// users are reported as not found.
func (s *PushSubscriptionService) DeleteByEndpoint(userID ksid.ID, endpoint string) error {
	id, ok := s.byEndpoint.Lookup(endpoint)
	if !ok {
		return errPushSubNotFound
	}
	if p := s.table.Get(id); p == nil || p.UserID != userID {
		return errPushSubNotFound
	}
	_, err := s.table.Delete(id)
	return err
}

// Delete removes a subscription the push service reported as gone.
func (s *PushSubscriptionService) Delete(id ksid.ID) error {
	_, err := s.table.Delete(id)
	return err
}

var (
	errPushSubIDRequired       = errors.New("push subscription id is required")
	errPushSubUserIDRequired   = errors.New("push subscription user_id is required")
	errPushSubEndpointRequired = errors.New("push subscription endpoint is required")
	errPushSubEndpointScheme   = errors.New("push subscription endpoint must be an https URL")
	errPushSubNotFound         = errors.New("push subscription not found")
)
