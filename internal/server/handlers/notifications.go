// Handles notification API endpoints.

package handlers

import (
	"context"

	"github.com/maruel/eduapi/internal/server/dto"
	"github.com/maruel/eduapi/internal/storage/identity"
)

// NotificationHandler handles notification requests.
type NotificationHandler struct {
	Svc *Services
	Cfg *Config
}

// ListNotifications returns paginated notifications for the authenticated user.
func (h *NotificationHandler) ListNotifications(_ context.Context, user *identity.User, req *dto.ListNotificationsRequest) (*dto.ListNotificationsResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	notifs := h.Svc.Notification.ListByUser(user.ID, limit, req.Offset, req.UnreadOnly)
	dtos := make([]dto.NotificationDTO, len(notifs))
	for i, n := range notifs {
		dtos[i] = notificationToDTO(n, h.Svc.User)
	}
	return &dto.ListNotificationsResponse{
		Notifications: dtos,
		UnreadCount:   h.Svc.Notification.CountUnread(user.ID),
	}, nil
}

// MarkNotificationRead marks a single notification as read.
func (h *NotificationHandler) MarkNotificationRead(_ context.Context, user *identity.User, req *dto.MarkNotificationReadRequest) (*dto.MarkNotificationReadResponse, error) {
	if err := h.Svc.Notification.MarkRead(req.ID, user.ID); err != nil {
		return nil, dto.NotFound("notification")
	}
	return &dto.OkResponse{Ok: true}, nil
}

// MarkAllNotificationsRead marks all notifications for the user as read.
func (h *NotificationHandler) MarkAllNotificationsRead(_ context.Context, user *identity.User, _ *dto.MarkAllNotificationsReadRequest) (*dto.MarkAllNotificationsReadResponse, error) {
	if err := h.Svc.Notification.MarkAllRead(user.ID); err != nil {
		return nil, dto.InternalWithError("Failed to mark all as read", err)
	}
	return &dto.OkResponse{Ok: true}, nil
}

// DeleteNotification deletes a single notification.
func (h *NotificationHandler) DeleteNotification(_ context.Context, user *identity.User, req *dto.DeleteNotificationRequest) (*dto.DeleteNotificationResponse, error) {
	if err := h.Svc.Notification.Delete(req.ID, user.ID); err != nil {
		return nil, dto.NotFound("notification")
	}
	return &dto.OkResponse{Ok: true}, nil
}

// GetNotificationPrefs returns the user's notification channel preferences.
func (h *NotificationHandler) GetNotificationPrefs(_ context.Context, user *identity.User, _ *dto.GetNotificationPrefsRequest) (*dto.NotificationPrefsDTO, error) {
	return notificationPrefsToDTO(&user.Settings.Notifications), nil
}

// UpdateNotificationPrefs replaces the user's notification channel overrides.
func (h *NotificationHandler) UpdateNotificationPrefs(_ context.Context, user *identity.User, req *dto.UpdateNotificationPrefsRequest) (*dto.NotificationPrefsDTO, error) {
	overrides := make(map[identity.NotificationType]identity.ChannelSet, len(req.Overrides))
	for k, v := range req.Overrides {
		overrides[identity.NotificationType(k)] = identity.ChannelSet{Email: v.Email, Web: v.Web}
	}
	updated, err := h.Svc.User.Modify(user.ID, func(u *identity.User) error {
		u.Settings.Notifications = identity.NotificationPreferences{Overrides: overrides}
		return nil
	})
	if err != nil {
		return nil, dto.InternalWithError("Failed to update preferences", err)
	}
	return notificationPrefsToDTO(&updated.Settings.Notifications), nil
}

// GetVAPIDPublicKey returns the server's VAPID public key for push subscription.
func (h *NotificationHandler) GetVAPIDPublicKey(_ context.Context, _ *identity.User, _ *dto.GetVAPIDKeyRequest) (*dto.VAPIDKeyResponse, error) {
	if h.Cfg.VAPIDPublicKey == "" {
		return nil, dto.NotFound("web push key")
	}
	return &dto.VAPIDKeyResponse{PublicKey: h.Cfg.VAPIDPublicKey}, nil
}

// SubscribePush saves a push subscription for the authenticated user.
func (h *NotificationHandler) SubscribePush(_ context.Context, user *identity.User, req *dto.PushSubscribeRequest) (*dto.PushSubscribeResponse, error) {
	if _, err := h.Svc.PushSubscription.Create(user.ID, req.Endpoint, req.P256dh, req.Auth); err != nil {
		return nil, dto.InternalWithError("Failed to save push subscription", err)
	}
	return &dto.OkResponse{Ok: true}, nil
}

// UnsubscribePush removes a push subscription of the authenticated user.
func (h *NotificationHandler) UnsubscribePush(_ context.Context, user *identity.User, req *dto.PushUnsubscribeRequest) (*dto.PushUnsubscribeResponse, error) {
	if err := h.Svc.PushSubscription.DeleteByEndpoint(user.ID, req.Endpoint); err != nil {
		return nil, dto.NotFound("subscription")
	}
	return &dto.OkResponse{Ok: true}, nil
}
