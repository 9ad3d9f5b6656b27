// Package identity provides the user-facing tables of the platform.
//
// This package handles internal database tables (JSONL-backed) for:
//   - User accounts, staff roles and editing delegation
//   - Capability predicates used by the publication workflow
//   - In-app notifications and delivery preferences
//   - Web push subscriptions
package identity

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/maruel/eduapi/internal/jsonldb"
	"github.com/maruel/eduapi/internal/storage"
	"github.com/maruel/ksid"
)

// User represents a platform account.
type User struct {
	ID    ksid.ID `json:"id" jsonschema:"description=Unique user identifier"`
	Email string  `json:"email" jsonschema:"description=User email address"`
	Name  string  `json:"name" jsonschema:"description=User display name"`
	// Superuser may perform every action.
	Superuser bool `json:"superuser,omitempty" jsonschema:"description=Full access to every project"`
	// Reviewer is a staff member allowed to review and publish projects.
	Reviewer bool `json:"reviewer,omitempty" jsonschema:"description=Staff reviewer allowed to publish"`
	// Delegates may edit the projects owned by this user.
	Delegates []ksid.ID `json:"delegates,omitempty" jsonschema:"description=Users allowed to edit this user's projects"`
	// Guardians may act on behalf of this user, e.g. parents of a child author.
	Guardians []ksid.ID    `json:"guardians,omitempty" jsonschema:"description=Guardians of this user"`
	Settings  UserSettings `json:"settings" jsonschema:"description=User preferences"`
	Created   storage.Time `json:"created" jsonschema:"description=Account creation timestamp"`
	Modified  storage.Time `json:"modified" jsonschema:"description=Last modification timestamp"`
}

// UserSettings represents user preferences.
type UserSettings struct {
	Locale        string                  `json:"locale,omitempty" jsonschema:"description=Preferred language code (en/fr/de/es)"`
	Notifications NotificationPreferences `json:"notifications,omitzero" jsonschema:"description=Per-type delivery channel overrides"`
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	c := *u
	c.Delegates = slices.Clone(u.Delegates)
	c.Guardians = slices.Clone(u.Guardians)
	c.Settings.Notifications = u.Settings.Notifications.clone()
	return &c
}

// GetID returns the User's ID.
func (u *User) GetID() ksid.ID {
	return u.ID
}

// Validate checks that the User is valid.
func (u *User) Validate() error {
	if u.ID.IsZero() {
		return errIDRequired
	}
	if u.Email == "" {
		return errEmailEmpty
	}
	if !strings.Contains(u.Email, "@") {
		return fmt.Errorf("%w: %q", errEmailInvalid, u.Email)
	}
	if slices.Contains(u.Delegates, u.ID) {
		return errSelfDelegate
	}
	return nil
}

// IsStaff reports whether the user receives review notifications.
func (u *User) IsStaff() bool {
	return u.Superuser || u.Reviewer
}

// UserService handles user management.
type UserService struct {
	table   *jsonldb.Table[*User]
	byEmail *jsonldb.UniqueIndex[string, *User]
}

// NewUserService creates a new user service.
func NewUserService(tablePath string) (*UserService, error) {
	table, err := jsonldb.NewTable[*User](tablePath)
	if err != nil {
		return nil, err
	}
	byEmail := jsonldb.NewUniqueIndex(table, func(u *User) string { return strings.ToLower(u.Email) })
	return &UserService{table: table, byEmail: byEmail}, nil
}

// Create creates a new user.
func (s *UserService) Create(email, name string) (*User, error) {
	if email == "" {
		return nil, errEmailEmpty
	}
	if _, ok := s.byEmail.Lookup(strings.ToLower(email)); ok {
		return nil, errUserExists
	}
	now := storage.Now()
	u := &User{
		ID:       ksid.NewID(),
		Email:    email,
		Name:     name,
		Created:  now,
		Modified: now,
	}
	if err := s.table.Append(u); err != nil {
		if errors.Is(err, jsonldb.ErrDuplicateKey) {
			return nil, errUserExists
		}
		return nil, err
	}
	return u.Clone(), nil
}

// Get retrieves a user by ID.
func (s *UserService) Get(id ksid.ID) (*User, error) {
	if id.IsZero() {
		return nil, errUserIDEmpty
	}
	u := s.table.Get(id)
	if u == nil {
		return nil, errUserNotFound
	}
	return u, nil
}

// GetByEmail retrieves a user by email, case insensitively.
func (s *UserService) GetByEmail(email string) (*User, error) {
	u := s.byEmail.Get(strings.ToLower(email))
	if u == nil {
		return nil, errUserNotFound
	}
	return u, nil
}

// Modify atomically modifies a user.
func (s *UserService) Modify(id ksid.ID, fn func(user *User) error) (*User, error) {
	if id.IsZero() {
		return nil, errUserIDEmpty
	}
	return s.table.Modify(id, func(u *User) error {
		if err := fn(u); err != nil {
			return err
		}
		u.Modified = storage.Now()
		return nil
	})
}

// AddDelegate allows delegate to edit the projects of owner.
func (s *UserService) AddDelegate(owner, delegate ksid.ID) error {
	if _, err := s.Get(delegate); err != nil {
		return err
	}
	_, err := s.Modify(owner, func(u *User) error {
		if !slices.Contains(u.Delegates, delegate) {
			u.Delegates = append(u.Delegates, delegate)
		}
		return nil
	})
	return err
}

// All iterates over every user.
func (s *UserService) All() iter.Seq[*User] {
	return s.table.All()
}

// Staff returns the superusers and reviewers.
func (s *UserService) Staff() []*User {
	var out []*User
	for u := range s.table.All() {
		if u.IsStaff() {
			out = append(out, u)
		}
	}
	return out
}
