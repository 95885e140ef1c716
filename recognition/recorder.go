package recognition

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// DedupPolicy controls how often a recognized identity produces an attendance event.
type DedupPolicy string

const (
	// DedupNone records every successful match.
	DedupNone DedupPolicy = "none"
	// DedupDaily records at most one event per identity per local date.
	DedupDaily DedupPolicy = "daily"
	// DedupCooldown records at most one event per identity per cooldown window.
	DedupCooldown DedupPolicy = "cooldown"
)

func ParseDedupPolicy(s string) (DedupPolicy, error) {
	switch DedupPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DedupNone:
		return DedupNone, nil
	case DedupDaily:
		return DedupDaily, nil
	case DedupCooldown:
		return DedupCooldown, nil
	}
	return "", fmt.Errorf("unknown attendance dedup policy %q (want none, daily or cooldown)", s)
}

// AttendanceEvent is one recorded presence.
type AttendanceEvent struct {
	IdentityID int64     `json:"id"`
	Name       string    `json:"name"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	At         time.Time `json:"-"`
}

// NewAttendanceEvent stamps an event with the date and time of now in now's location.
func NewAttendanceEvent(id int64, name string, now time.Time) AttendanceEvent {
	return AttendanceEvent{
		IdentityID: id,
		Name:       name,
		Date:       now.Format(DateLayout),
		Time:       now.Format(TimeLayout),
		At:         now,
	}
}

// AttendanceStore persists attendance events.
type AttendanceStore interface {
	AppendAttendance(ctx context.Context, ev AttendanceEvent) error
	HasAttendanceOn(ctx context.Context, id int64, date string) (bool, error)
}

// AttendanceNotifier is told about every event after it has been stored.
type AttendanceNotifier interface {
	AttendanceRecorded(ev AttendanceEvent)
}

// Recorder decides whether a match becomes an attendance event.
type Recorder struct {
	store     AttendanceStore
	policy    DedupPolicy
	cooldown  time.Duration
	notifiers []AttendanceNotifier

	mu       sync.Mutex
	lastSeen map[int64]time.Time
	daySeen  map[dayKey]bool
}

type dayKey struct {
	id   int64
	date string
}

type RecorderOption func(*Recorder)

// WithDedup sets the dedup policy. cooldown is only used by DedupCooldown.
func WithDedup(policy DedupPolicy, cooldown time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.policy = policy
		r.cooldown = cooldown
	}
}

func WithNotifier(n AttendanceNotifier) RecorderOption {
	return func(r *Recorder) {
		if n != nil {
			r.notifiers = append(r.notifiers, n)
		}
	}
}

func NewRecorder(store AttendanceStore, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:    store,
		policy:   DedupNone,
		lastSeen: make(map[int64]time.Time),
		daySeen:  make(map[dayKey]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Policy() DedupPolicy {
	return r.policy
}

// RecordIfDue appends an attendance event for the identity unless the dedup
// policy suppresses it. Dedup state only advances after a successful write.
func (r *Recorder) RecordIfDue(ctx context.Context, id int64, name string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev := NewAttendanceEvent(id, name, now)

	switch r.policy {
	case DedupDaily:
		key := dayKey{id: id, date: ev.Date}
		if r.daySeen[key] {
			return false, nil
		}
		exists, err := r.store.HasAttendanceOn(ctx, id, ev.Date)
		if err != nil {
			return false, storageErr("check attendance", err)
		}
		if exists {
			r.daySeen[key] = true
			return false, nil
		}
	case DedupCooldown:
		if last, ok := r.lastSeen[id]; ok && now.Sub(last) < r.cooldown && !now.Before(last) {
			return false, nil
		}
	}

	if err := r.store.AppendAttendance(ctx, ev); err != nil {
		return false, storageErr("append attendance", err)
	}

	switch r.policy {
	case DedupDaily:
		r.daySeen[dayKey{id: id, date: ev.Date}] = true
	case DedupCooldown:
		r.lastSeen[id] = now
	}

	log.Printf("recorder: attendance logged for %s (id %d) at %s %s", name, id, ev.Date, ev.Time)
	for _, n := range r.notifiers {
		n.AttendanceRecorded(ev)
	}
	return true, nil
}
