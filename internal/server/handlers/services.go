// Defines shared service dependencies for handlers.

package handlers

import (
	"github.com/maruel/eduapi/internal/drafts"
	"github.com/maruel/eduapi/internal/publish"
	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/eduapi/internal/storage/identity"
)

// Services holds all service dependencies for handlers.
type Services struct {
	Content          *content.Store
	Drafts           *drafts.Store
	Machine          *publish.Machine
	User             *identity.UserService
	Perms            *identity.Permissions
	Notification     *identity.NotificationService
	PushSubscription *identity.PushSubscriptionService
}

// Config holds configuration values needed by handlers.
type Config struct {
	JWTSecret           []byte
	BaseURL             string
	Version             string
	VAPIDPublicKey      string
	MaxRequestBodyBytes int64
}
