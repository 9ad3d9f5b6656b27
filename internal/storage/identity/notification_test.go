package identity

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/maruel/eduapi/internal/storage"
	"github.com/maruel/ksid"
)

func modeChange(title string) NewNotification {
	return NewNotification{Type: NotifPublishModeChange, Title: title}
}

func TestNotificationService(t *testing.T) {
	tempDir := t.TempDir()
	tablePath := filepath.Join(tempDir, "notifications.jsonl")

	svc, err := NewNotificationService(tablePath)
	if err != nil {
		t.Fatalf("NewNotificationService failed: %v", err)
	}

	userID := ksid.NewID()
	actorID := ksid.NewID()
	projectID := ksid.NewID()

	t.Run("Create", func(t *testing.T) {
		data := json.RawMessage(`{"old_mode":"edit","new_mode":"review"}`)
		n, err := svc.Create(userID, NewNotification{
			Type:      NotifPublishModeChange,
			Title:     "Project moved",
			Body:      `Project "Robots" has moved from "In Edit" to "In Review".`,
			ProjectID: projectID,
			ActorID:   actorID,
			Data:      data,
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if n.UserID != userID {
			t.Errorf("UserID: got %v, want %v", n.UserID, userID)
		}
		if n.Type != NotifPublishModeChange {
			t.Errorf("Type: got %v, want %v", n.Type, NotifPublishModeChange)
		}
		if n.ProjectID != projectID {
			t.Errorf("ProjectID: got %v, want %v", n.ProjectID, projectID)
		}
		if string(n.Data) != string(data) {
			t.Errorf("Data: got %s, want %s", n.Data, data)
		}
		if n.Read {
			t.Error("new notification should be unread")
		}
	})

	t.Run("CreateInvalidData", func(t *testing.T) {
		_, err := svc.Create(userID, NewNotification{Type: NotifPublishModeChange, Title: "x", Data: json.RawMessage(`{`)})
		if err == nil {
			t.Fatal("expected error for invalid data")
		}
	})

	t.Run("Get", func(t *testing.T) {
		n, err := svc.Create(userID, modeChange("get me"))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		got, err := svc.Get(n.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.ID != n.ID {
			t.Errorf("ID mismatch: got %v, want %v", got.ID, n.ID)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := svc.Get(ksid.NewID())
		if !IsNotFound(err) {
			t.Fatalf("got %v, want not found", err)
		}
	})

	t.Run("ListByUser", func(t *testing.T) {
		svc2, err := NewNotificationService(filepath.Join(t.TempDir(), "n.jsonl"))
		if err != nil {
			t.Fatalf("NewNotificationService failed: %v", err)
		}
		uid := ksid.NewID()
		otherUID := ksid.NewID()

		for i := range 5 {
			title := "notif " + string(rune('A'+i))
			if _, err := svc2.Create(uid, modeChange(title)); err != nil {
				t.Fatalf("Create %d failed: %v", i, err)
			}
		}
		if _, err := svc2.Create(otherUID, modeChange("other")); err != nil {
			t.Fatalf("Create other failed: %v", err)
		}

		all := svc2.ListByUser(uid, 0, 0, false)
		if len(all) != 5 {
			t.Fatalf("ListByUser: got %d, want 5", len(all))
		}
		// Newest first.
		if all[0].Title <= all[4].Title {
			t.Error("expected newest-first ordering")
		}

		page := svc2.ListByUser(uid, 3, 2, false)
		if len(page) != 3 {
			t.Fatalf("ListByUser with limit/offset: got %d, want 3", len(page))
		}
		if got := svc2.ListByUser(uid, 0, 10, false); got != nil {
			t.Errorf("offset past the end: got %d items", len(got))
		}
	})

	t.Run("UnreadAndMarkRead", func(t *testing.T) {
		svc2, err := NewNotificationService(filepath.Join(t.TempDir(), "n.jsonl"))
		if err != nil {
			t.Fatalf("NewNotificationService failed: %v", err)
		}
		uid := ksid.NewID()
		n1, err := svc2.Create(uid, modeChange("a"))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if _, err := svc2.Create(uid, modeChange("b")); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := svc2.MarkRead(n1.ID, ksid.NewID()); err == nil {
			t.Fatal("expected error marking read for wrong user")
		}
		if err := svc2.MarkRead(n1.ID, uid); err != nil {
			t.Fatalf("MarkRead failed: %v", err)
		}
		if got := svc2.CountUnread(uid); got != 1 {
			t.Errorf("CountUnread: got %d, want 1", got)
		}
		if unread := svc2.ListByUser(uid, 0, 0, true); len(unread) != 1 {
			t.Fatalf("unread only: got %d, want 1", len(unread))
		}
		if err := svc2.MarkAllRead(uid); err != nil {
			t.Fatalf("MarkAllRead failed: %v", err)
		}
		if got := svc2.CountUnread(uid); got != 0 {
			t.Errorf("CountUnread after MarkAllRead: got %d, want 0", got)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		n, err := svc.Create(userID, modeChange("delete me"))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := svc.Delete(n.ID, ksid.NewID()); err == nil {
			t.Fatal("expected error deleting for wrong user")
		}
		if err := svc.Delete(n.ID, userID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := svc.Get(n.ID); err == nil {
			t.Fatal("expected error after delete")
		}
	})

	t.Run("DeleteOlderThan", func(t *testing.T) {
		svc2, err := NewNotificationService(filepath.Join(t.TempDir(), "n.jsonl"))
		if err != nil {
			t.Fatalf("NewNotificationService failed: %v", err)
		}
		uid := ksid.NewID()
		for _, title := range []string{"old", "new"} {
			if _, err := svc2.Create(uid, modeChange(title)); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}
		// Delete everything before "now + 1 minute" (should delete all).
		count, err := svc2.DeleteOlderThan(storage.Now() + 60)
		if err != nil {
			t.Fatalf("DeleteOlderThan failed: %v", err)
		}
		if count != 2 {
			t.Errorf("DeleteOlderThan: deleted %d, want 2", count)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tests := []struct {
			name    string
			n       *Notification
			wantErr bool
		}{
			{
				name:    "valid",
				n:       &Notification{ID: ksid.NewID(), UserID: ksid.NewID(), Type: NotifPublishModeChange, Title: "hi"},
				wantErr: false,
			},
			{
				name:    "missing_id",
				n:       &Notification{UserID: ksid.NewID(), Type: NotifPublishModeChange, Title: "hi"},
				wantErr: true,
			},
			{
				name:    "missing_user_id",
				n:       &Notification{ID: ksid.NewID(), Type: NotifPublishModeChange, Title: "hi"},
				wantErr: true,
			},
			{
				name:    "missing_type",
				n:       &Notification{ID: ksid.NewID(), UserID: ksid.NewID(), Title: "hi"},
				wantErr: true,
			},
			{
				name:    "missing_title",
				n:       &Notification{ID: ksid.NewID(), UserID: ksid.NewID(), Type: NotifPublishModeChange},
				wantErr: true,
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.n.Validate()
				if (err != nil) != tt.wantErr {
					t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				}
			})
		}
	})
}

func TestNotificationPreferences(t *testing.T) {
	t.Run("DefaultChannels", func(t *testing.T) {
		cs := DefaultChannels(NotifPublishModeChange)
		if !cs.Email || !cs.Web {
			t.Errorf("mode change defaults: got email=%v web=%v, want both true", cs.Email, cs.Web)
		}
		cs = DefaultChannels(NotifReviewSummary)
		if !cs.Email || cs.Web {
			t.Errorf("review summary defaults: got email=%v web=%v, want email only", cs.Email, cs.Web)
		}
	})

	t.Run("EffectiveChannelsWithOverride", func(t *testing.T) {
		prefs := &NotificationPreferences{
			Overrides: map[NotificationType]ChannelSet{
				NotifPublishModeChange: {Email: false, Web: true},
			},
		}
		cs := prefs.EffectiveChannels(NotifPublishModeChange)
		if cs.Email {
			t.Error("expected email=false from override")
		}
		if !cs.Web {
			t.Error("expected web=true from override")
		}
	})

	t.Run("EffectiveChannelsNilPrefs", func(t *testing.T) {
		var prefs *NotificationPreferences
		cs := prefs.EffectiveChannels(NotifPublishModeChange)
		if !cs.Email || !cs.Web {
			t.Error("expected defaults for nil prefs")
		}
	})

	t.Run("AllNotificationTypes", func(t *testing.T) {
		if got := len(AllNotificationTypes()); got != 2 {
			t.Errorf("AllNotificationTypes: got %d, want 2", got)
		}
	})
}
