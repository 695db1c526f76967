package fixclient

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(max int) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)}
	b := NewBreaker(max, 10*time.Second)
	b.now = clk.now
	return b, clk
}

var errFail = errors.New("fail")

func failing() error { return errFail }
func passing() error { return nil }

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(3)
	if b.State() != BreakerClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	b, _ := newTestBreaker(3)
	for i := 0; i < 3; i++ {
		if err := b.Execute(failing, nil); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if b.State() != BreakerOpen {
		t.Fatalf("expected open after 3 failures, got %v", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil }, nil)
	if err != ErrCircuitOpen {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clk := newTestBreaker(2)
	var transitions []string
	b.OnStateChange = func(from, to BreakerState) { transitions = append(transitions, from.String()+">"+to.String()) }

	b.Execute(failing, nil)
	b.Execute(failing, nil)
	clk.advance(11 * time.Second)

	if err := b.Execute(passing, nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed after trial call, got %v", b.State())
	}
	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(2)
	b.Execute(failing, nil)
	b.Execute(failing, nil)
	clk.advance(11 * time.Second)
	b.Execute(failing, nil)

	if b.State() != BreakerOpen {
		t.Errorf("expected open after failed trial call, got %v", b.State())
	}
}

func TestBreaker_UncountedErrorsDoNotTrip(t *testing.T) {
	b, _ := newTestBreaker(1)
	never := func(error) bool { return false }
	for i := 0; i < 5; i++ {
		if err := b.Execute(failing, never); err != errFail {
			t.Fatalf("expected errFail to pass through, got %v", err)
		}
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
}

func TestBreaker_HalfOpenAdmitsOneCallAtATime(t *testing.T) {
	b, clk := newTestBreaker(1)
	b.Execute(failing, nil)
	clk.advance(11 * time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(func() error {
			close(entered)
			<-release
			return nil
		}, nil)
	}()
	<-entered

	if b.State() != BreakerHalfOpen {
		t.Fatalf("expected half-open during trial call, got %v", b.State())
	}
	ran := false
	if err := b.Execute(func() error { ran = true; return nil }, nil); err != ErrCircuitOpen {
		t.Errorf("expected ErrCircuitOpen for concurrent caller, got %v", err)
	}
	if ran {
		t.Error("expected concurrent caller not to run")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("expected trial call to succeed, got %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
	if err := b.Execute(passing, nil); err != nil {
		t.Errorf("expected calls to pass once closed, got %v", err)
	}
}

func TestBreaker_FailedTrialAdmitsNextAfterTimeout(t *testing.T) {
	b, clk := newTestBreaker(1)
	b.Execute(failing, nil)
	clk.advance(11 * time.Second)
	b.Execute(failing, nil)

	if err := b.Execute(passing, nil); err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen right after failed trial call, got %v", err)
	}
	clk.advance(11 * time.Second)
	if err := b.Execute(passing, nil); err != nil {
		t.Fatalf("expected next trial call to run, got %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
}
