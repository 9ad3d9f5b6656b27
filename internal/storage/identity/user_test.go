package identity

import (
	"path/filepath"
	"testing"

	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/ksid"
)

func newTestUsers(t *testing.T) *UserService {
	t.Helper()
	svc, err := NewUserService(filepath.Join(t.TempDir(), "users.jsonl"))
	if err != nil {
		t.Fatalf("NewUserService failed: %v", err)
	}
	return svc
}

func TestUserService(t *testing.T) {
	svc := newTestUsers(t)

	user, err := svc.Create("test@example.com", "Test User")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if user.Email != "test@example.com" {
		t.Errorf("got email %s, want test@example.com", user.Email)
	}

	t.Run("Get", func(t *testing.T) {
		got, err := svc.Get(user.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.ID != user.ID {
			t.Errorf("got %s, want %s", got.ID, user.ID)
		}
		if _, err := svc.Get(0); err == nil {
			t.Error("Get(0) should fail")
		}
		if _, err := svc.Get(ksid.NewID()); !IsNotFound(err) {
			t.Errorf("got %v, want not found", err)
		}
	})

	t.Run("GetByEmail", func(t *testing.T) {
		got, err := svc.GetByEmail("TEST@example.com")
		if err != nil {
			t.Fatalf("GetByEmail failed: %v", err)
		}
		if got.ID != user.ID {
			t.Errorf("got %s, want %s", got.ID, user.ID)
		}
	})

	t.Run("Duplicate", func(t *testing.T) {
		if _, err := svc.Create("Test@Example.com", "Other"); err == nil {
			t.Error("expected error when creating duplicate user")
		}
		if _, err := svc.Create("not-an-email", "Other"); err == nil {
			t.Error("expected error for an invalid email")
		}
	})

	t.Run("DelegatesAndStaff", func(t *testing.T) {
		delegate, err := svc.Create("delegate@example.com", "Delegate")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := svc.AddDelegate(user.ID, delegate.ID); err != nil {
			t.Fatalf("AddDelegate failed: %v", err)
		}
		if err := svc.AddDelegate(user.ID, delegate.ID); err != nil {
			t.Fatalf("second AddDelegate failed: %v", err)
		}
		got, _ := svc.Get(user.ID)
		if len(got.Delegates) != 1 || got.Delegates[0] != delegate.ID {
			t.Errorf("Delegates = %v", got.Delegates)
		}
		if err := svc.AddDelegate(user.ID, user.ID); err == nil {
			t.Error("self delegation should fail")
		}
		if len(svc.Staff()) != 0 {
			t.Error("no staff expected yet")
		}
		if _, err := svc.Modify(delegate.ID, func(u *User) error {
			u.Reviewer = true
			return nil
		}); err != nil {
			t.Fatalf("Modify failed: %v", err)
		}
		if staff := svc.Staff(); len(staff) != 1 || staff[0].ID != delegate.ID {
			t.Errorf("Staff = %v", staff)
		}
	})
}

func TestPermissions(t *testing.T) {
	svc := newTestUsers(t)
	mk := func(email string, fn func(u *User)) ksid.ID {
		u, err := svc.Create(email, email)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if fn != nil {
			if _, err := svc.Modify(u.ID, func(u *User) error { fn(u); return nil }); err != nil {
				t.Fatalf("Modify failed: %v", err)
			}
		}
		return u.ID
	}
	delegate := mk("delegate@example.com", nil)
	guardian := mk("guardian@example.com", nil)
	owner := mk("owner@example.com", func(u *User) {
		u.Delegates = []ksid.ID{delegate}
		u.Guardians = []ksid.ID{guardian}
	})
	reviewer := mk("reviewer@example.com", func(u *User) { u.Reviewer = true })
	super := mk("super@example.com", func(u *User) { u.Superuser = true })
	stranger := mk("stranger@example.com", nil)

	perms := NewPermissions(svc)
	project := func(mode content.PublishMode) *content.Project {
		return &content.Project{ID: ksid.NewID(), OwnerID: owner, PublishMode: mode, Title: "p"}
	}

	t.Run("IsEditor", func(t *testing.T) {
		p := project(content.ModeEdit)
		for _, c := range []struct {
			name string
			user ksid.ID
			want bool
		}{
			{"Owner", owner, true},
			{"Delegate", delegate, true},
			{"Guardian", guardian, true},
			{"Superuser", super, true},
			{"Reviewer", reviewer, false},
			{"Stranger", stranger, false},
			{"Anonymous", 0, false},
		} {
			t.Run(c.name, func(t *testing.T) {
				if got := perms.IsEditor(p, c.user); got != c.want {
					t.Errorf("got %v, want %v", got, c.want)
				}
			})
		}
	})

	t.Run("CanEdit", func(t *testing.T) {
		if !perms.CanEdit(project(content.ModeEdit), delegate) {
			t.Error("delegate should edit in edit mode")
		}
		if perms.CanEdit(project(content.ModeReview), owner) {
			t.Error("owner cannot edit in review")
		}
	})

	t.Run("CanPublish", func(t *testing.T) {
		for _, mode := range []content.PublishMode{content.ModeReview, content.ModeReady} {
			if !perms.CanPublish(project(mode), reviewer) {
				t.Errorf("reviewer should publish from %s", mode)
			}
			if !perms.CanReedit(project(mode), super) {
				t.Errorf("superuser should re-edit from %s", mode)
			}
			if perms.CanPublish(project(mode), owner) {
				t.Errorf("owner cannot publish from %s", mode)
			}
		}
		if perms.CanPublish(project(content.ModeEdit), reviewer) {
			t.Error("no publishing from edit")
		}
		if perms.CanReedit(project(content.ModePublished), reviewer) {
			t.Error("no re-edit from published")
		}
	})
}
