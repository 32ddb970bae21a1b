// Package broker owns the bank of tool services and every dispatch to
// them. Tools register by name with a declared capability set; dispatch is
// refused unless the tool is running and declares the requested command.
package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jmolinaso/voxbridge/internal/classify"
	"github.com/jmolinaso/voxbridge/internal/fault"
	"github.com/jmolinaso/voxbridge/internal/resilience"
)

// Tool is one service the broker can dispatch commands to.
type Tool interface {
	Name() string
	Capabilities() []string
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Ping(ctx context.Context) error
	Execute(ctx context.Context, command string, params map[string]string) (map[string]any, error)
}

// ToolStatus is the lifecycle state of a registered tool.
type ToolStatus string

const (
	StatusInitialized ToolStatus = "initialized"
	StatusRunning     ToolStatus = "running"
	StatusStopped     ToolStatus = "stopped"
	StatusError       ToolStatus = "error"
)

// Descriptor is the externally visible state of one tool.
type Descriptor struct {
	Name         string     `json:"name"`
	Status       ToolStatus `json:"status"`
	Capabilities []string   `json:"capabilities"`
	LastPing     time.Time  `json:"last_ping,omitzero"`
	Error        string     `json:"error,omitempty"`
}

// Broker coordinates tool lifecycle and dispatch. Safe for concurrent use.
type Broker struct {
	logger *slog.Logger

	mu       sync.RWMutex
	tools    map[string]Tool
	status   map[string]*Descriptor
	breakers map[string]*resilience.Breaker
	order    []string // registration order, for stable listings
}

// New builds an empty Broker.
func New(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		logger:   logger,
		tools:    make(map[string]Tool),
		status:   make(map[string]*Descriptor),
		breakers: make(map[string]*resilience.Breaker),
	}
}

// Register adds a tool in initialized state. Re-registering a name
// replaces the previous tool.
func (b *Broker) Register(tool Tool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := tool.Name()
	if _, exists := b.tools[name]; !exists {
		b.order = append(b.order, name)
	}
	b.tools[name] = tool
	b.status[name] = &Descriptor{
		Name:         name,
		Status:       StatusInitialized,
		Capabilities: tool.Capabilities(),
	}
	b.breakers[name] = resilience.NewBreaker(resilience.Config{Name: name, Logger: b.logger})
	b.logger.Info("tool registered", "tool", name, "capabilities", len(tool.Capabilities()))
}

// StartAll starts every registered tool. A tool whose start fails is
// marked error and skipped; the broker itself keeps going.
func (b *Broker) StartAll(ctx context.Context) {
	b.mu.Lock()
	names := append([]string(nil), b.order...)
	b.mu.Unlock()

	for _, name := range names {
		b.mu.RLock()
		tool := b.tools[name]
		b.mu.RUnlock()

		err := tool.Start(ctx)

		b.mu.Lock()
		d := b.status[name]
		if err != nil {
			d.Status = StatusError
			d.Error = err.Error()
			b.logger.Error("tool start failed", "tool", name, "error", err)
		} else {
			d.Status = StatusRunning
			d.Error = ""
			d.LastPing = time.Now()
			// Remote tools discover their command set during start.
			d.Capabilities = tool.Capabilities()
			b.logger.Info("tool started", "tool", name)
		}
		b.mu.Unlock()
	}
}

// Shutdown stops every tool, logging but not propagating individual
// failures.
func (b *Broker) Shutdown(ctx context.Context) {
	b.mu.Lock()
	names := append([]string(nil), b.order...)
	b.mu.Unlock()

	for _, name := range names {
		b.mu.RLock()
		tool := b.tools[name]
		b.mu.RUnlock()

		if err := tool.Shutdown(ctx); err != nil {
			b.logger.Warn("tool shutdown failed", "tool", name, "error", err)
		}
		b.mu.Lock()
		b.status[name].Status = StatusStopped
		b.mu.Unlock()
	}
	b.logger.Info("tool broker shut down")
}

// Status pings one tool and returns its refreshed descriptor.
func (b *Broker) Status(ctx context.Context, name string) (Descriptor, error) {
	b.mu.RLock()
	tool, ok := b.tools[name]
	b.mu.RUnlock()
	if !ok {
		return Descriptor{}, fault.Newf(fault.KindToolUnknown, "broker", "no tool named %q", name)
	}

	err := tool.Ping(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.status[name]
	if err != nil {
		d.Status = StatusError
		d.Error = err.Error()
	} else {
		d.LastPing = time.Now()
		if d.Status == StatusError {
			// A succeeding ping clears a transient error.
			d.Status = StatusRunning
			d.Error = ""
		}
	}
	return *d, nil
}

// StatusAll refreshes and returns every descriptor in registration order.
func (b *Broker) StatusAll(ctx context.Context) []Descriptor {
	b.mu.RLock()
	names := append([]string(nil), b.order...)
	b.mu.RUnlock()

	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		if d, err := b.Status(ctx, name); err == nil {
			out = append(out, d)
		}
	}
	return out
}

// Dispatch routes one typed command to a tool. It refuses unless the tool
// exists, is running, and declares the command in its capability set. A
// tool that keeps failing trips its breaker and is refused outright until
// the reset timeout passes.
func (b *Broker) Dispatch(ctx context.Context, name, command string, params map[string]string) (map[string]any, error) {
	b.mu.RLock()
	tool, ok := b.tools[name]
	var d Descriptor
	var breaker *resilience.Breaker
	if ok {
		d = *b.status[name]
		breaker = b.breakers[name]
	}
	b.mu.RUnlock()

	if !ok {
		return nil, fault.Newf(fault.KindToolUnknown, "broker", "no tool named %q", name)
	}
	if d.Status != StatusRunning {
		return nil, fault.Newf(fault.KindToolStopped, "broker", "tool %q is %s", name, d.Status)
	}
	if !declares(d.Capabilities, command) {
		return nil, fault.Newf(fault.KindUnsupportedCommand, "broker", "tool %q does not support %q", name, command)
	}

	start := time.Now()
	var result map[string]any
	var execErr error
	breakerErr := breaker.Execute(func() error {
		result, execErr = tool.Execute(ctx, command, params)
		if execErr != nil && countsAgainstBreaker(execErr) {
			return execErr
		}
		return nil
	})
	if errors.Is(breakerErr, resilience.ErrOpen) {
		return nil, fault.Newf(fault.KindToolStopped, "broker", "tool %q is failing, retry later", name)
	}
	if execErr != nil {
		err := execErr
		if fault.KindOf(err) == fault.KindInternal {
			err = fault.Wrap(fault.KindToolError, name, "command "+command+" failed", err)
		}
		b.logger.Warn("dispatch failed", "tool", name, "command", command,
			"duration", time.Since(start), "error", err)
		return nil, err
	}
	b.logger.Debug("dispatch ok", "tool", name, "command", command, "duration", time.Since(start))
	return result, nil
}

// countsAgainstBreaker reports whether an execution error indicates the
// tool itself is unhealthy. Caller mistakes (bad input, unknown command)
// must not trip the breaker.
func countsAgainstBreaker(err error) bool {
	switch fault.KindOf(err) {
	case fault.KindInvalidInput, fault.KindUnsupportedCommand, fault.KindNotFound, fault.KindForbidden:
		return false
	}
	return true
}

func declares(capabilities []string, command string) bool {
	for _, c := range capabilities {
		if c == command {
			return true
		}
	}
	return false
}

// categoryTool maps an intent category to the tool that serves it.
// Categories without a dedicated tool fall through to the AI provider
// tool, which handles free-form plan steps.
var categoryTool = map[classify.Category]string{
	classify.CategoryDocument:  "document",
	classify.CategoryEmail:     "email",
	classify.CategoryWebSearch: "search",
}

// defaultCategoryTool executes everything without a dedicated tool.
const defaultCategoryTool = "ai_providers"

// stepCommand is the generic capability the AI provider tool exposes for
// workflow plan steps that no tool declares as a typed command.
const stepCommand = "execute_step"

// DispatchCategory routes a workflow step by its category. Steps whose
// command the category's tool declares go straight there; everything else
// runs as a generic plan step on the AI provider tool.
func (b *Broker) DispatchCategory(ctx context.Context, category classify.Category, command string, params map[string]string) (map[string]any, error) {
	name, ok := categoryTool[category]
	if !ok {
		name = defaultCategoryTool
	}

	b.mu.RLock()
	d, known := b.status[name]
	direct := known && declares(d.Capabilities, command)
	b.mu.RUnlock()

	if direct {
		return b.Dispatch(ctx, name, command, params)
	}

	generic := make(map[string]string, len(params)+2)
	for k, v := range params {
		generic[k] = v
	}
	generic["step"] = command
	generic["category"] = string(category)
	return b.Dispatch(ctx, defaultCategoryTool, stepCommand, generic)
}
