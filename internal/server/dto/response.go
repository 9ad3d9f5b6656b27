package dto

// --- Common Responses ---

// OkResponse is a simple success response.
type OkResponse struct {
	Ok bool `json:"ok"`
}

// HealthResponse reports server health and build information.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Revision  string `json:"revision"`
	Dirty     bool   `json:"dirty"`
}

// --- Project Responses ---

// GetProjectResponse is a project tree, optionally with its draft view.
type GetProjectResponse struct {
	ProjectDTO
	Draft *DraftView `json:"draft,omitempty"`
}

// ReorderLessonsResponse is the project after a lesson reorder.
type ReorderLessonsResponse = ProjectDTO

// DeleteLessonResponse is a response from deleting a lesson.
type DeleteLessonResponse = OkResponse

// EndEditResponse is a response from releasing the edit lock.
type EndEditResponse = OkResponse

// DiscardDraftResponse is a response from discarding a draft.
type DiscardDraftResponse = OkResponse

// ListReviewResponse lists the projects waiting in review, most recently
// updated first.
type ListReviewResponse struct {
	Total    int          `json:"total"`
	Projects []ProjectDTO `json:"projects"`
}

// --- Notification Responses ---

// ListNotificationsResponse is a page of notifications.
type ListNotificationsResponse struct {
	Notifications []NotificationDTO `json:"notifications"`
	UnreadCount   int               `json:"unread_count"`
}

// MarkNotificationReadResponse is a response from marking a notification read.
type MarkNotificationReadResponse = OkResponse

// MarkAllNotificationsReadResponse is a response from marking all read.
type MarkAllNotificationsReadResponse = OkResponse

// DeleteNotificationResponse is a response from deleting a notification.
type DeleteNotificationResponse = OkResponse

// VAPIDKeyResponse holds the web push public key.
type VAPIDKeyResponse struct {
	PublicKey string `json:"public_key"`
}

// PushSubscribeResponse is a response from registering a subscription.
type PushSubscribeResponse = OkResponse

// PushUnsubscribeResponse is a response from removing a subscription.
type PushUnsubscribeResponse = OkResponse
