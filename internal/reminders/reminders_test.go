package reminders

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
)

type recordingNotifier struct {
	mu    sync.Mutex
	fired []string
	ch    chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ch: make(chan struct{}, 16)}
}

func (n *recordingNotifier) Notify(userID, message string) {
	n.mu.Lock()
	n.fired = append(n.fired, message)
	n.mu.Unlock()
	n.ch <- struct{}{}
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.fired)
}

func TestScheduleFiresOnce(t *testing.T) {
	is := is.New(t)
	n := newRecordingNotifier()
	s := NewScheduler(n)
	defer s.Stop()

	_, err := s.Schedule("u1", "study French", time.Now().Add(20*time.Millisecond), PermissionGranted)
	is.NoErr(err)
	is.Equal(s.Pending(), 1)

	select {
	case <-n.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("reminder did not fire")
	}

	// Give the callback a moment, it should not fire again.
	time.Sleep(50 * time.Millisecond)
	is.Equal(n.count(), 1)
	is.Equal(s.Pending(), 0)
}

func TestCancel(t *testing.T) {
	is := is.New(t)
	n := newRecordingNotifier()
	s := NewScheduler(n)
	defer s.Stop()

	id, err := s.Schedule("u1", "never delivered", time.Now().Add(time.Hour), PermissionGranted)
	is.NoErr(err)
	is.True(s.Cancel(id))
	is.Equal(s.Pending(), 0)
	is.True(!s.Cancel(id)) // second cancel is a no-op
	is.Equal(n.count(), 0)
}

func TestPermissionGate(t *testing.T) {
	is := is.New(t)
	s := NewScheduler(newRecordingNotifier())
	defer s.Stop()

	at := time.Now().Add(time.Hour)
	_, err := s.Schedule("u1", "m", at, PermissionDenied)
	is.True(errors.Is(err, ErrNotPermitted))
	_, err = s.Schedule("u1", "m", at, PermissionDefault)
	is.True(errors.Is(err, ErrNotPermitted))
	is.Equal(s.Pending(), 0)
}

func TestPastTime(t *testing.T) {
	is := is.New(t)
	s := NewScheduler(newRecordingNotifier())
	defer s.Stop()

	_, err := s.Schedule("u1", "m", time.Now().Add(-time.Minute), PermissionGranted)
	is.True(errors.Is(err, ErrPastTime))
}

type FakeNower struct{ fakenow time.Time }

func (f *FakeNower) Now() time.Time {
	return f.fakenow
}

// The past/future cutoff follows the injected clock, not the wall clock.
func TestScheduleUsesInjectedClock(t *testing.T) {
	is := is.New(t)
	s := NewScheduler(newRecordingNotifier())
	defer s.Stop()
	s.Nower = &FakeNower{fakenow: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}

	// Long past on the wall clock, but an hour ahead of the fake one.
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	id, err := s.Schedule("u1", "m", at, PermissionGranted)
	is.NoErr(err)
	is.Equal(s.Pending(), 1)
	is.True(s.Cancel(id))

	_, err = s.Schedule("u1", "m", at.Add(-2*time.Hour), PermissionGranted)
	is.True(errors.Is(err, ErrPastTime))
}

func TestParsePermission(t *testing.T) {
	is := is.New(t)

	p, err := ParsePermission("granted")
	is.NoErr(err)
	is.Equal(p, PermissionGranted)
	p, err = ParsePermission("Denied")
	is.NoErr(err)
	is.Equal(p, PermissionDenied)
	p, err = ParsePermission("")
	is.NoErr(err)
	is.Equal(p, PermissionDefault)
	_, err = ParsePermission("maybe")
	is.True(err != nil)
}
