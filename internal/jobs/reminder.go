package jobs

import (
	"context"
	"sync"
	"time"

	appLog "eventsched/internal/log"
	"eventsched/internal/model"
	"eventsched/internal/query"
)

// EventSource supplies the catalog snapshot a sweep runs over.
type EventSource interface {
	List() []model.Event
}

// Notifier delivers a reminder for e, which starts in `in`.
type Notifier interface {
	Notify(ctx context.Context, e model.Event, in time.Duration) error
}

// LogNotifier writes reminders to the application log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, e model.Event, in time.Duration) error {
	appLog.Info("reminder",
		"id", e.ID,
		"title", e.Title,
		"start", e.Start.Format(time.RFC3339),
		"in", in.Round(time.Minute).String(),
	)
	return nil
}

type reminderKey struct {
	id    int
	start int64
}

// Reminder notifies once about every event starting within Lead of the
// sweep time. An event that is moved to a new start time is notified
// again.
type Reminder struct {
	src      EventSource
	notifier Notifier
	lead     time.Duration
	now      func() time.Time

	mu   sync.Mutex
	sent map[reminderKey]bool
}

// NewReminder returns a reminder job. A nil notifier logs.
func NewReminder(src EventSource, n Notifier, lead time.Duration) *Reminder {
	if n == nil {
		n = LogNotifier{}
	}
	return &Reminder{
		src:      src,
		notifier: n,
		lead:     lead,
		now:      time.Now,
		sent:     make(map[reminderKey]bool),
	}
}

// Run implements cron.Job.
func (r *Reminder) Run() {
	r.Sweep(context.Background(), r.now())
}

// Sweep sends due reminders as of now and returns how many were sent.
func (r *Reminder) Sweep(ctx context.Context, now time.Time) int {
	due := query.SortByStart(query.Upcoming(r.src.List(), now, r.lead))

	r.mu.Lock()
	defer r.mu.Unlock()

	sent := 0
	for _, e := range due {
		k := reminderKey{id: e.ID, start: e.Start.Unix()}
		if r.sent[k] {
			continue
		}
		if err := r.notifier.Notify(ctx, e, e.Start.Sub(now)); err != nil {
			appLog.Error("reminder delivery failed", err, "id", e.ID)
			continue
		}
		r.sent[k] = true
		sent++
	}

	// Forget events that have started; they can no longer become due.
	for k := range r.sent {
		if k.start <= now.Unix() {
			delete(r.sent, k)
		}
	}
	if sent > 0 {
		appLog.Debug("reminder sweep", "sent", sent, "due", len(due))
	}
	return sent
}
