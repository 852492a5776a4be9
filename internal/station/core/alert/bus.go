// Package alert implements the bounded, self-expiring notification list.
package alert

import (
	"time"

	"github.com/google/uuid"

	"github.com/autopeer-io/groundlink/internal/pkg/metrics"
	"github.com/autopeer-io/groundlink/internal/runloop"
	"github.com/autopeer-io/groundlink/internal/station/core/model"
)

const (
	DefaultLimit = 5
	DefaultTTL   = 5 * time.Second
)

// Scheduler is what the bus needs from the run loop.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) *runloop.Timer
}

type entry struct {
	alert model.Alert
	timer *runloop.Timer
}

// Bus keeps at most limit alerts and removes each one ttl after it was pushed.
// Identical messages are not merged. It is owned by the run loop.
type Bus struct {
	sched Scheduler
	limit int
	ttl   time.Duration

	entries []entry
	newID   func() string
}

func New(sched Scheduler, limit int, ttl time.Duration) *Bus {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Bus{
		sched: sched,
		limit: limit,
		ttl:   ttl,
		newID: uuid.NewString,
	}
}

// Push appends an alert, evicting the oldest visible one if the list is full.
func (b *Bus) Push(message string, sev model.Severity) model.Alert {
	a := model.Alert{
		ID:        b.newID(),
		Message:   message,
		Severity:  sev,
		CreatedAt: b.sched.Now(),
	}

	id := a.ID
	b.entries = append(b.entries, entry{
		alert: a,
		timer: b.sched.AfterFunc(b.ttl, func() { b.expire(id) }),
	})
	for len(b.entries) > b.limit {
		b.entries[0].timer.Stop()
		b.entries = b.entries[1:]
	}

	metrics.AlertsTotal.WithLabelValues(string(sev)).Inc()
	metrics.AlertsVisible.Set(float64(len(b.entries)))
	return a
}

// Dismiss removes an alert before it expires.
func (b *Bus) Dismiss(id string) bool {
	for i, e := range b.entries {
		if e.alert.ID == id {
			e.timer.Stop()
			b.removeAt(i)
			return true
		}
	}
	return false
}

// List returns the visible alerts, oldest first.
func (b *Bus) List() []model.Alert {
	out := make([]model.Alert, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.alert
	}
	return out
}

// Clear drops every alert and cancels their timers.
func (b *Bus) Clear() {
	for _, e := range b.entries {
		e.timer.Stop()
	}
	b.entries = nil
	metrics.AlertsVisible.Set(0)
}

// Info, Warn and Error are shorthands for Push.
func (b *Bus) Info(msg string) model.Alert  { return b.Push(msg, model.SeverityInfo) }
func (b *Bus) Warn(msg string) model.Alert  { return b.Push(msg, model.SeverityWarning) }
func (b *Bus) Error(msg string) model.Alert { return b.Push(msg, model.SeverityError) }

func (b *Bus) expire(id string) {
	for i, e := range b.entries {
		if e.alert.ID == id {
			b.removeAt(i)
			return
		}
	}
}

func (b *Bus) removeAt(i int) {
	b.entries = append(b.entries[:i:i], b.entries[i+1:]...)
	metrics.AlertsVisible.Set(float64(len(b.entries)))
}
