package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreakerDefaults(t *testing.T) {
	b := NewBreaker(Config{Name: "t"})
	if b.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", b.maxFailures)
	}
	if b.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", b.resetTimeout)
	}
	if b.probeMax != 3 {
		t.Errorf("probeMax = %d, want 3", b.probeMax)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreakerClosedForwardsCalls(t *testing.T) {
	b := NewBreaker(Config{Name: "t", MaxFailures: 3})
	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(Config{Name: "t", MaxFailures: 3, ResetTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return errBoom })
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	err := b.Execute(func() error { t.Fatal("fn called while open"); return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(Config{Name: "t", MaxFailures: 3, ResetTimeout: time.Hour})

	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return errBoom })

	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed (streak broken by success)", b.State())
	}
}

func TestBreakerHalfOpenAfterResetTimeout(t *testing.T) {
	b := NewBreaker(Config{Name: "t", MaxFailures: 1, ResetTimeout: time.Minute})
	base := time.Now()
	b.now = func() time.Time { return base }

	_ = b.Execute(func() error { return errBoom })
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	b.now = func() time.Time { return base.Add(2 * time.Minute) }
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after reset timeout", b.State())
	}

	// A probe is admitted once the timeout elapsed.
	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Fatal("probe was not admitted")
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := NewBreaker(Config{Name: "t", MaxFailures: 1, ResetTimeout: time.Minute})
	base := time.Now()
	b.now = func() time.Time { return base }

	_ = b.Execute(func() error { return errBoom })
	b.now = func() time.Time { return base.Add(2 * time.Minute) }

	_ = b.Execute(func() error { return errBoom })
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", b.State())
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
}

func TestBreakerClosesAfterSuccessfulProbes(t *testing.T) {
	b := NewBreaker(Config{Name: "t", MaxFailures: 1, ResetTimeout: time.Minute, ProbeMax: 2})
	base := time.Now()
	b.now = func() time.Time { return base }

	_ = b.Execute(func() error { return errBoom })
	b.now = func() time.Time { return base.Add(2 * time.Minute) }

	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after probes", b.State())
	}
}

func TestBreakerReset(t *testing.T) {
	b := NewBreaker(Config{Name: "t", MaxFailures: 1, ResetTimeout: time.Hour})

	_ = b.Execute(func() error { return errBoom })
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after reset", b.State())
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute after reset: %v", err)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
