// Package notify delivers publish mode changes to the people involved.
//
// Events are queued by the publish state machine after the change is
// committed and delivered by background workers over three channels: in-app
// notifications, email and web push. Delivery is best effort with bounded
// retries; a failure never affects the mode change itself.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maruel/eduapi/internal/email"
	"github.com/maruel/eduapi/internal/publish"
	"github.com/maruel/eduapi/internal/storage"
	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/eduapi/internal/storage/identity"
	"github.com/maruel/ksid"
)

// Mailer sends the workflow emails. *email.Service implements it.
type Mailer interface {
	SendModeChange(ctx context.Context, to, name, title, description, projectURL string, locale email.Locale) error
	SendReviewSummary(ctx context.Context, to []string, total int, items []email.ReviewItem) error
}

// Options configures a Dispatcher.
type Options struct {
	Users         *identity.UserService
	Notifications *identity.NotificationService
	Subscriptions *identity.PushSubscriptionService
	// Mailer is nil when SMTP is not configured.
	Mailer Mailer
	// Pusher is nil when VAPID keys are not configured.
	Pusher Pusher
	// StaffEmails receive review notifications in addition to staff users.
	StaffEmails []string
	BaseURL     string
	storage.NotifyConfig
	// Backoff is the delay before the first retry. It doubles on each attempt.
	Backoff time.Duration
}

// Dispatcher fans out publish events to recipients.
type Dispatcher struct {
	opts  Options
	queue chan *publish.Event
}

// New returns a Dispatcher. Call Run to start delivering.
func New(opts Options) *Dispatcher {
	def := storage.DefaultNotifyConfig()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.Fanout <= 0 {
		opts.Fanout = def.Fanout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	return &Dispatcher{opts: opts, queue: make(chan *publish.Event, opts.QueueSize)}
}

// Publish queues ev for delivery. It never blocks; the event is dropped when
// the queue is full.
func (d *Dispatcher) Publish(ctx context.Context, ev *publish.Event) {
	select {
	case d.queue <- ev:
	default:
		slog.WarnContext(ctx, "Notification queue full, dropping event", "project_id", ev.ProjectID, "new_mode", ev.NewMode)
	}
}

// Run delivers queued events until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for range d.opts.Workers {
		wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-d.queue:
					if err := d.Dispatch(ctx, ev); err != nil && ctx.Err() == nil {
						slog.ErrorContext(ctx, "Failed to deliver notification", "err", err, "project_id", ev.ProjectID)
					}
				}
			}
		})
	}
	wg.Wait()
	if n := len(d.queue); n != 0 {
		slog.WarnContext(ctx, "Dropping undelivered notifications on shutdown", "count", n)
	}
	return nil
}

// recipient is a user to notify, or a bare staff address.
type recipient struct {
	user  *identity.User
	email string
}

// recipients returns the users notified for ev: the owner and its
// delegates, plus staff when the project enters review. Staff addresses
// without an account are returned as bare emails.
func (d *Dispatcher) recipients(ev *publish.Event) []recipient {
	seen := map[ksid.ID]bool{}
	seenEmail := map[string]bool{}
	var out []recipient
	addUser := func(u *identity.User) {
		if seen[u.ID] {
			return
		}
		seen[u.ID] = true
		seenEmail[strings.ToLower(u.Email)] = true
		out = append(out, recipient{user: u, email: u.Email})
	}
	if owner, err := d.opts.Users.Get(ev.OwnerID); err == nil {
		addUser(owner)
		for _, id := range owner.Delegates {
			if u, err := d.opts.Users.Get(id); err == nil {
				addUser(u)
			}
		}
	}
	if ev.NewMode == content.ModeReview {
		for _, u := range d.opts.Users.Staff() {
			addUser(u)
		}
		for _, addr := range d.opts.StaffEmails {
			if u, err := d.opts.Users.GetByEmail(addr); err == nil {
				addUser(u)
				continue
			}
			if k := strings.ToLower(addr); !seenEmail[k] {
				seenEmail[k] = true
				out = append(out, recipient{email: addr})
			}
		}
	}
	return out
}

// Dispatch delivers ev synchronously to every recipient.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *publish.Event) error {
	desc := Describe(ev)
	data, err := marshalEvent(ev)
	if err != nil {
		return err
	}
	url := ProjectURL(d.opts.BaseURL, ev.ProjectID)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(d.opts.Fanout)
	var mu sync.Mutex
	var errs []error
	for _, r := range d.recipients(ev) {
		eg.Go(func() error {
			if err := d.deliver(ctx, ev, r, desc, url, data); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()
	return errors.Join(errs...)
}

func (d *Dispatcher) deliver(ctx context.Context, ev *publish.Event, r recipient, desc, url string, data []byte) error {
	channels := identity.DefaultChannels(identity.NotifPublishModeChange)
	name := ""
	locale := email.DefaultLocale
	if r.user != nil {
		channels = r.user.Settings.Notifications.EffectiveChannels(identity.NotifPublishModeChange)
		name = r.user.Name
		locale = email.ParseLocale(r.user.Settings.Locale)
	}
	var errs []error
	if r.user != nil {
		in := identity.NewNotification{
			Type:      identity.NotifPublishModeChange,
			Title:     ev.Title,
			Body:      desc,
			ProjectID: ev.ProjectID,
			ActorID:   ev.ActorID,
			Data:      data,
		}
		err := d.retry(ctx, func() error {
			_, err := d.opts.Notifications.Create(r.user.ID, in)
			return err
		})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to create notification", "err", err, "user_id", r.user.ID)
			errs = append(errs, err)
		}
		if channels.Web {
			d.push(ctx, r.user.ID, pushPayload{Title: ev.Title, Body: desc, Type: identity.NotifPublishModeChange, URL: url})
		}
	}
	if channels.Email && d.opts.Mailer != nil && r.email != "" {
		err := d.retry(ctx, func() error {
			return d.opts.Mailer.SendModeChange(ctx, r.email, name, ev.Title, desc, url, locale)
		})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to send mode change email", "err", err, "to", r.email)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// retry calls fn up to MaxAttempts times with exponential backoff.
func (d *Dispatcher) retry(ctx context.Context, fn func() error) error {
	delay := d.opts.Backoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || errors.Is(err, errPermanent) || attempt >= d.opts.MaxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// SendStaffSummary emails the staff the projects waiting in review.
func (d *Dispatcher) SendStaffSummary(ctx context.Context, q *publish.ReviewQueue) error {
	if d.opts.Mailer == nil {
		return nil
	}
	seen := map[string]bool{}
	var to []string
	add := func(addr string) {
		if k := strings.ToLower(addr); addr != "" && !seen[k] {
			seen[k] = true
			to = append(to, addr)
		}
	}
	for _, u := range d.opts.Users.Staff() {
		if u.Settings.Notifications.EffectiveChannels(identity.NotifReviewSummary).Email {
			add(u.Email)
		}
	}
	for _, addr := range d.opts.StaffEmails {
		add(addr)
	}
	if len(to) == 0 {
		return nil
	}
	items := make([]email.ReviewItem, 0, len(q.Last))
	for _, p := range q.Last {
		it := email.ReviewItem{
			Title:   p.Title,
			Updated: p.Updated.AsTime().UTC().Format("2006-01-02 15:04:05 UTC"),
			URL:     ProjectURL(d.opts.BaseURL, p.ID),
		}
		if u, err := d.opts.Users.Get(p.OwnerID); err == nil {
			it.Author = u.Name
		}
		if p.MinPublishDate != nil {
			it.PublishOn = p.MinPublishDate.AsTime().UTC().Format("2006-01-02 15:04 UTC")
		}
		items = append(items, it)
	}
	return d.retry(ctx, func() error {
		return d.opts.Mailer.SendReviewSummary(ctx, to, q.Total, items)
	})
}
