// Manages notification entities and delivery preferences.

package identity

import (
	"cmp"
	"encoding/json"
	"errors"
	"maps"
	"slices"

	"github.com/maruel/eduapi/internal/jsonldb"
	"github.com/maruel/eduapi/internal/storage"
	"github.com/maruel/ksid"
)

// NotificationType represents a category of notification.
type NotificationType string

const (
	// NotifPublishModeChange is sent when a project or its draft changes
	// publish mode.
	NotifPublishModeChange NotificationType = "project_publish_mode_change_by_target"
	// NotifReviewSummary is the periodic list of projects waiting for review.
	NotifReviewSummary NotificationType = "review_summary"
)

// ChannelSet indicates which delivery channels are enabled for a notification type.
type ChannelSet struct {
	Email bool `json:"email"`
	Web   bool `json:"web"`
}

// defaultChannels maps each notification type to its default delivery channels.
var defaultChannels = map[NotificationType]ChannelSet{
	NotifPublishModeChange: {Email: true, Web: true},
	NotifReviewSummary:     {Email: true},
}

// DefaultChannels returns the default channel set for a notification type.
func DefaultChannels(t NotificationType) ChannelSet {
	if cs, ok := defaultChannels[t]; ok {
		return cs
	}
	return ChannelSet{Web: true}
}

// AllNotificationTypes returns all defined notification types.
func AllNotificationTypes() []NotificationType {
	return []NotificationType{
		NotifPublishModeChange,
		NotifReviewSummary,
	}
}

// NotificationPreferences holds per-type channel overrides.
type NotificationPreferences struct {
	Overrides map[NotificationType]ChannelSet `json:"overrides,omitempty"`
}

// EffectiveChannels returns the user's channels for a notification type,
// falling back to defaults when no override exists.
func (p *NotificationPreferences) EffectiveChannels(t NotificationType) ChannelSet {
	if p != nil && p.Overrides != nil {
		if cs, ok := p.Overrides[t]; ok {
			return cs
		}
	}
	return DefaultChannels(t)
}

func (p NotificationPreferences) clone() NotificationPreferences {
	return NotificationPreferences{Overrides: maps.Clone(p.Overrides)}
}

// Notification represents an in-app notification for a user.
type Notification struct {
	ID        ksid.ID          `json:"id"`
	UserID    ksid.ID          `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body,omitempty"`
	ProjectID ksid.ID          `json:"project_id,omitempty"`
	ActorID   ksid.ID          `json:"actor_id,omitempty"`
	// Data holds the structured event payload, e.g. the modes and draft diff.
	Data    json.RawMessage `json:"data,omitempty"`
	Read    bool            `json:"read"`
	Created storage.Time    `json:"created"`
}

// Clone returns a deep copy.
func (n *Notification) Clone() *Notification {
	c := *n
	c.Data = slices.Clone(n.Data)
	return &c
}

// GetID returns the notification's ID.
func (n *Notification) GetID() ksid.ID {
	return n.ID
}

// Validate checks required fields.
func (n *Notification) Validate() error {
	if n.ID.IsZero() {
		return errNotificationIDRequired
	}
	if n.UserID.IsZero() {
		return errNotificationUserIDRequired
	}
	if n.Type == "" {
		return errNotificationTypeRequired
	}
	if n.Title == "" {
		return errNotificationTitleRequired
	}
	if len(n.Data) != 0 && !json.Valid(n.Data) {
		return errNotificationDataInvalid
	}
	return nil
}

// NewNotification holds the fields of a notification to create.
type NewNotification struct {
	Type      NotificationType
	Title     string
	Body      string
	ProjectID ksid.ID
	ActorID   ksid.ID
	Data      json.RawMessage
}

// NotificationService manages notification persistence.
type NotificationService struct {
	table    *jsonldb.Table[*Notification]
	byUserID *jsonldb.Index[ksid.ID, *Notification]
}

// NewNotificationService creates a new notification service.
func NewNotificationService(tablePath string) (*NotificationService, error) {
	table, err := jsonldb.NewTable[*Notification](tablePath)
	if err != nil {
		return nil, err
	}
	byUserID := jsonldb.NewIndex(table, func(n *Notification) ksid.ID { return n.UserID })
	return &NotificationService{table: table, byUserID: byUserID}, nil
}

// Create creates a new notification.
func (s *NotificationService) Create(userID ksid.ID, in NewNotification) (*Notification, error) {
	n := &Notification{
		ID:        ksid.NewID(),
		UserID:    userID,
		Type:      in.Type,
		Title:     in.Title,
		Body:      in.Body,
		ProjectID: in.ProjectID,
		ActorID:   in.ActorID,
		Data:      slices.Clone(in.Data),
		Created:   storage.Now(),
	}
	if err := s.table.Append(n); err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

// Get retrieves a notification by ID.
func (s *NotificationService) Get(id ksid.ID) (*Notification, error) {
	n := s.table.Get(id)
	if n == nil {
		return nil, errNotificationNotFound
	}
	return n, nil
}

// ListByUser returns notifications for a user, newest first, with optional limit, offset, and unread filter.
func (s *NotificationService) ListByUser(userID ksid.ID, limit, offset int, unreadOnly bool) []*Notification {
	var all []*Notification
	for n := range s.byUserID.Iter(userID) {
		if unreadOnly && n.Read {
			continue
		}
		all = append(all, n)
	}
	// Sort newest-first by ID (IDs are time-sortable).
	slices.SortFunc(all, func(a, b *Notification) int {
		return cmp.Compare(b.ID, a.ID)
	})

	if offset > 0 {
		if offset >= len(all) {
			return nil
		}
		all = all[offset:]
	}
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

// CountUnread returns the number of unread notifications for a user.
func (s *NotificationService) CountUnread(userID ksid.ID) int {
	count := 0
	for n := range s.byUserID.Iter(userID) {
		if !n.Read {
			count++
		}
	}
	return count
}

// MarkRead marks a single notification as read.
func (s *NotificationService) MarkRead(id, userID ksid.ID) error {
	n := s.table.Get(id)
	if n == nil || n.UserID != userID {
		return errNotificationNotFound
	}
	_, err := s.table.Modify(id, func(n *Notification) error {
		n.Read = true
		return nil
	})
	return err
}

// MarkAllRead marks all notifications for a user as read.
func (s *NotificationService) MarkAllRead(userID ksid.ID) error {
	for _, id := range s.byUserID.IDs(userID) {
		if _, err := s.table.Modify(id, func(n *Notification) error {
			n.Read = true
			return nil
		}); err != nil && !errors.Is(err, jsonldb.ErrNotFound) {
			return err
		}
	}
	return nil
}

// Delete deletes a single notification owned by the given user.
func (s *NotificationService) Delete(id, userID ksid.ID) error {
	n := s.table.Get(id)
	if n == nil || n.UserID != userID {
		return errNotificationNotFound
	}
	_, err := s.table.Delete(id)
	return err
}

// DeleteOlderThan deletes notifications created before cutoff. Returns count deleted.
func (s *NotificationService) DeleteOlderThan(cutoff storage.Time) (int, error) {
	var toDelete []ksid.ID
	for n := range s.table.All() {
		if n.Created.Before(cutoff) {
			toDelete = append(toDelete, n.ID)
		}
	}
	count := 0
	for _, id := range toDelete {
		if _, err := s.table.Delete(id); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

var (
	errNotificationIDRequired     = errors.New("notification id is required")
	errNotificationUserIDRequired = errors.New("notification user_id is required")
	errNotificationTypeRequired   = errors.New("notification type is required")
	errNotificationTitleRequired  = errors.New("notification title is required")
	errNotificationDataInvalid    = errors.New("notification data is not valid JSON")
	errNotificationNotFound       = errors.New("notification not found")
)
