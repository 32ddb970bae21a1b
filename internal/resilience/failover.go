package resilience

import (
	"errors"
	"fmt"
)

// ErrExhausted is returned by [Chain.Run] when every candidate fails or
// sits behind an open breaker.
var ErrExhausted = errors.New("resilience: all candidates failed")

// entry pairs a candidate with its dedicated breaker.
type entry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain tries candidates in registration order until one succeeds.
// Candidates behind an open breaker are skipped. The candidate set is
// fixed after construction; Run is safe for concurrent use.
type Chain[T any] struct {
	entries []entry[T]
	cfg     Config
}

// NewChain builds an empty chain. cfg configures the per-candidate
// breakers; the Name field is overridden per candidate.
func NewChain[T any](cfg Config) *Chain[T] {
	return &Chain[T]{cfg: cfg}
}

// Add appends a candidate with its own breaker.
func (c *Chain[T]) Add(name string, value T) {
	cfg := c.cfg
	cfg.Name = name
	c.entries = append(c.entries, entry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
}

// Len reports the number of candidates.
func (c *Chain[T]) Len() int { return len(c.entries) }

// Run tries fn against each candidate in order until one succeeds. It
// returns [ErrExhausted] wrapping the last failure when none does.
func (c *Chain[T]) Run(fn func(name string, value T) error) error {
	var lastErr error
	for i := range c.entries {
		e := &c.entries[i]
		err := e.breaker.Execute(func() error { return fn(e.name, e.value) })
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr == nil {
		return ErrExhausted
	}
	return fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

// RunResult is [Chain.Run] for calls that produce a value. A package-level
// function because methods cannot introduce type parameters.
func RunResult[T, R any](c *Chain[T], fn func(name string, value T) (R, error)) (R, error) {
	var (
		result R
		zero   R
	)
	err := c.Run(func(name string, value T) error {
		var innerErr error
		result, innerErr = fn(name, value)
		return innerErr
	})
	if err != nil {
		return zero, err
	}
	return result, nil
}
