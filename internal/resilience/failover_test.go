package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestChainFirstCandidateWins(t *testing.T) {
	c := NewChain[string](Config{})
	c.Add("primary", "a")
	c.Add("backup", "b")

	var used []string
	err := c.Run(func(name, v string) error {
		used = append(used, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(used) != 1 || used[0] != "a" {
		t.Errorf("used = %v, want [a]", used)
	}
}

func TestChainFallsThroughOnFailure(t *testing.T) {
	c := NewChain[string](Config{})
	c.Add("primary", "a")
	c.Add("backup", "b")

	var used []string
	err := c.Run(func(name, v string) error {
		used = append(used, v)
		if v == "a" {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(used) != 2 || used[1] != "b" {
		t.Errorf("used = %v, want [a b]", used)
	}
}

func TestChainExhausted(t *testing.T) {
	c := NewChain[string](Config{})
	c.Add("primary", "a")
	c.Add("backup", "b")

	err := c.Run(func(string, string) error { return errBoom })
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
}

func TestChainSkipsOpenBreaker(t *testing.T) {
	c := NewChain[string](Config{MaxFailures: 1, ResetTimeout: time.Hour})
	c.Add("primary", "a")
	c.Add("backup", "b")

	// Trip the primary's breaker.
	_ = c.Run(func(name, v string) error {
		if v == "a" {
			return errBoom
		}
		return nil
	})

	var used []string
	err := c.Run(func(name, v string) error {
		used = append(used, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(used) != 1 || used[0] != "b" {
		t.Errorf("used = %v, want [b]: primary breaker should be open", used)
	}
}

func TestRunResult(t *testing.T) {
	c := NewChain[int](Config{})
	c.Add("one", 1)
	c.Add("two", 2)

	got, err := RunResult(c, func(name string, v int) (string, error) {
		if v == 1 {
			return "", errBoom
		}
		return name, nil
	})
	if err != nil {
		t.Fatalf("RunResult: %v", err)
	}
	if got != "two" {
		t.Errorf("result = %q, want %q", got, "two")
	}
}

func TestRunResultExhausted(t *testing.T) {
	c := NewChain[int](Config{})
	c.Add("one", 1)

	_, err := RunResult(c, func(string, int) (string, error) { return "", errBoom })
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
}

func TestChainEmpty(t *testing.T) {
	c := NewChain[string](Config{})
	if err := c.Run(func(string, string) error { return nil }); !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted for empty chain", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}
