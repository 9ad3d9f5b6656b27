// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"

	"github.com/maruel/eduapi/internal/server/handlers"
	"github.com/maruel/eduapi/internal/server/ratelimit"
	"github.com/maruel/eduapi/internal/storage"
)

// Config holds the server configuration.
type Config struct {
	ServerConfig *storage.ServerConfig
	BaseURL      string
	Version      string
	GoVersion    string
	Revision     string
	Dirty        bool
	// Limiters overrides the rate limiters built from ServerConfig. The
	// caller owns them and must Close them.
	Limiters *ratelimit.Config
}

// NewRouter creates and configures the HTTP router.
func NewRouter(svc *handlers.Services, cfg *Config) http.Handler {
	hcfg := &handlers.Config{
		JWTSecret:           cfg.ServerConfig.JWTSecret,
		BaseURL:             cfg.BaseURL,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.ServerConfig.MaxRequestBodyBytes,
	}
	if cfg.ServerConfig.VAPID.Enabled() {
		hcfg.VAPIDPublicKey = cfg.ServerConfig.VAPID.PublicKey
	}
	limiters := cfg.Limiters
	if limiters == nil {
		limiters = ratelimit.NewConfig(cfg.ServerConfig.RateLimits)
	}

	mux := &http.ServeMux{}
	hh := handlers.NewHealthHandler(cfg.Version, cfg.GoVersion, cfg.Revision, cfg.Dirty)
	ph := &handlers.ProjectHandler{Svc: svc}
	dh := &handlers.DraftHandler{Svc: svc}
	nh := &handlers.NotificationHandler{Svc: svc, Cfg: hcfg}

	// Health check
	mux.Handle("GET /api/health", Wrap(hh.Health, hcfg))

	// Projects
	mux.Handle("POST /api/projects", WrapAuth(ph.CreateProject, svc, hcfg, limiters))
	mux.Handle("GET /api/projects/{id}", WrapAuth(ph.GetProject, svc, hcfg, limiters))
	mux.Handle("PATCH /api/projects/{id}", WrapAuth(ph.PatchProject, svc, hcfg, limiters))
	mux.Handle("POST /api/projects/{id}/edit-lock", WrapAuth(ph.BeginEdit, svc, hcfg, limiters))
	mux.Handle("DELETE /api/projects/{id}/edit-lock", WrapAuth(ph.EndEdit, svc, hcfg, limiters))
	mux.Handle("POST /api/projects/{id}/lessons", WrapAuth(ph.AddLesson, svc, hcfg, limiters))
	mux.Handle("PATCH /api/projects/{id}/lessons/{lessonID}", WrapAuth(ph.PatchLesson, svc, hcfg, limiters))
	mux.Handle("DELETE /api/projects/{id}/lessons/{lessonID}", WrapAuth(ph.DeleteLesson, svc, hcfg, limiters))
	mux.Handle("POST /api/projects/{id}/lessons/{lessonID}/steps", WrapAuth(ph.AddStep, svc, hcfg, limiters))
	mux.Handle("PATCH /api/projects/{id}/lessons/{lessonID}/steps/{stepID}", WrapAuth(ph.PatchStep, svc, hcfg, limiters))
	mux.Handle("GET /api/review", WrapAuth(ph.ListReview, svc, hcfg, limiters))

	// Drafts
	mux.Handle("GET /api/projects/{id}/draft", WrapAuth(dh.GetDraft, svc, hcfg, limiters))
	mux.Handle("GET /api/projects/{id}/origin", WrapAuth(dh.GetOrigin, svc, hcfg, limiters))
	mux.Handle("POST /api/projects/{id}/draft", WrapAuth(dh.PatchDraft, svc, hcfg, limiters))
	mux.Handle("PATCH /api/projects/{id}/draft", WrapAuth(dh.PatchDraft, svc, hcfg, limiters))
	mux.Handle("DELETE /api/projects/{id}/draft", WrapAuth(dh.DiscardDraft, svc, hcfg, limiters))
	mux.Handle("PATCH /api/projects/{id}/draft/mode", WrapAuth(dh.ChangeDraftMode, svc, hcfg, limiters))
	mux.Handle("PATCH /api/projects/{id}/lessons/{lessonID}/draft", WrapAuth(dh.PatchLessonDraft, svc, hcfg, limiters))
	mux.Handle("PATCH /api/projects/{id}/lessons/{lessonID}/steps/{stepID}/draft", WrapAuth(dh.PatchStepDraft, svc, hcfg, limiters))

	// Notifications
	mux.Handle("GET /api/notifications", WrapAuth(nh.ListNotifications, svc, hcfg, limiters))
	mux.Handle("POST /api/notifications/{id}/read", WrapAuth(nh.MarkNotificationRead, svc, hcfg, limiters))
	mux.Handle("POST /api/notifications/read-all", WrapAuth(nh.MarkAllNotificationsRead, svc, hcfg, limiters))
	mux.Handle("DELETE /api/notifications/{id}", WrapAuth(nh.DeleteNotification, svc, hcfg, limiters))
	mux.Handle("GET /api/notifications/prefs", WrapAuth(nh.GetNotificationPrefs, svc, hcfg, limiters))
	mux.Handle("PUT /api/notifications/prefs", WrapAuth(nh.UpdateNotificationPrefs, svc, hcfg, limiters))

	// Web push
	mux.Handle("GET /api/push/vapid-key", WrapAuth(nh.GetVAPIDPublicKey, svc, hcfg, limiters))
	mux.Handle("POST /api/push/subscriptions", WrapAuth(nh.SubscribePush, svc, hcfg, limiters))
	mux.Handle("DELETE /api/push/subscriptions", WrapAuth(nh.UnsubscribePush, svc, hcfg, limiters))

	return logRequests(mux)
}
