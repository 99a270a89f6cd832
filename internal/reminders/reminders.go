// Package reminders schedules fire-once study reminders. Timers live in
// memory for the process lifetime and are cancellable; delivery is gated
// on the client-reported notification permission.
package reminders

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotPermitted = errors.New("notifications not permitted")
	ErrPastTime     = errors.New("reminder time has already passed")
)

// Permission mirrors the browser notification permission states.
type Permission int

const (
	PermissionDefault Permission = iota
	PermissionGranted
	PermissionDenied
)

func ParsePermission(s string) (Permission, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "granted":
		return PermissionGranted, nil
	case "denied":
		return PermissionDenied, nil
	case "default", "":
		return PermissionDefault, nil
	}
	return 0, fmt.Errorf("unknown permission state %q", s)
}

// Notifier delivers a fired reminder to the user.
type Notifier interface {
	Notify(userID, message string)
}

type Nower interface {
	Now() time.Time
}

type RealNower struct{}

func (r RealNower) Now() time.Time {
	return time.Now()
}

type Scheduler struct {
	notifier Notifier
	Nower    Nower

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

func NewScheduler(notifier Notifier) *Scheduler {
	return &Scheduler{
		notifier: notifier,
		Nower:    RealNower{},
		timers:   map[uuid.UUID]*time.Timer{},
	}
}

// Schedule registers a fire-once reminder. Permission must have been
// granted before anything is scheduled; denied/default callers get
// ErrNotPermitted and the feature degrades.
func (s *Scheduler) Schedule(userID, message string, at time.Time, perm Permission) (uuid.UUID, error) {
	if perm != PermissionGranted {
		return uuid.Nil, ErrNotPermitted
	}
	d := at.Sub(s.Nower.Now())
	if d <= 0 {
		return uuid.Nil, ErrPastTime
	}
	id := uuid.New()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[id] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		s.notifier.Notify(userID, message)
		log.Debug().Str("user", userID).Str("reminder", id.String()).Msg("reminder-fired")
	})
	return id, nil
}

// Cancel stops a pending reminder. Cancelling an unknown or already-fired
// reminder is a no-op.
func (s *Scheduler) Cancel(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, id)
	return true
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending reminder, for shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
