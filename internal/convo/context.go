// Package convo maintains per-(user, session) conversation state: bounded
// interaction history, carried parameters, and the active topic. State lives
// in a bounded local map mirrored into Redis so a restarted gateway can pick
// a conversation back up.
package convo

import (
	"time"

	"github.com/jmolinaso/voxbridge/internal/classify"
)

// defaultMaxHistory bounds the interaction FIFO per context.
const defaultMaxHistory = 20

// Interaction is one completed turn of a conversation.
type Interaction struct {
	Timestamp     time.Time         `json:"timestamp"`
	UserText      string            `json:"user_text"`
	AssistantText string            `json:"assistant_text"`
	Category      classify.Category `json:"category"`
	// Parameters is the snapshot of active parameters after this turn.
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Context is the mutable conversation record for one (user, session) pair.
// Callers outside this package only ever see copies; the store owns the
// live instances.
type Context struct {
	User    string `json:"user_id"`
	Session string `json:"session_id"`

	// History holds the most recent interactions, oldest first, trimmed
	// to the store's history bound.
	History []Interaction `json:"history"`

	CurrentTopic string            `json:"current_topic,omitempty"`
	LastCategory classify.Category `json:"last_category,omitempty"`

	// ActiveParameters carry across turns, last write wins.
	ActiveParameters map[string]string `json:"active_parameters"`
	Preferences      map[string]string `json:"preferences"`

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

func newContext(user, session string, now time.Time) *Context {
	return &Context{
		User:             user,
		Session:          session,
		ActiveParameters: make(map[string]string),
		Preferences:      make(map[string]string),
		CreatedAt:        now,
		LastActivity:     now,
	}
}

// append records a turn, trimming history to max entries and keeping
// LastActivity monotonic.
func (c *Context) append(in Interaction, max int) {
	c.History = append(c.History, in)
	if len(c.History) > max {
		c.History = c.History[len(c.History)-max:]
	}
	c.LastCategory = in.Category
	if in.Timestamp.After(c.LastActivity) {
		c.LastActivity = in.Timestamp
	}
}

// Recent returns up to n most recent interactions, oldest first.
func (c *Context) Recent(n int) []Interaction {
	if n <= 0 || len(c.History) == 0 {
		return nil
	}
	if n > len(c.History) {
		n = len(c.History)
	}
	out := make([]Interaction, n)
	copy(out, c.History[len(c.History)-n:])
	return out
}

// Expired reports whether the context has been idle past timeout.
func (c *Context) Expired(timeout time.Duration, now time.Time) bool {
	return now.Sub(c.LastActivity) > timeout
}

// Snapshot produces the immutable view the classifier consumes.
func (c *Context) Snapshot() classify.Snapshot {
	params := make(map[string]string, len(c.ActiveParameters))
	for k, v := range c.ActiveParameters {
		params[k] = v
	}
	return classify.Snapshot{
		LastCategory:     c.LastCategory,
		ActiveParameters: params,
		CurrentTopic:     c.CurrentTopic,
	}
}

// clone deep-copies the context for handing outside the store.
func (c *Context) clone() *Context {
	out := *c
	out.History = make([]Interaction, len(c.History))
	copy(out.History, c.History)
	out.ActiveParameters = make(map[string]string, len(c.ActiveParameters))
	for k, v := range c.ActiveParameters {
		out.ActiveParameters[k] = v
	}
	out.Preferences = make(map[string]string, len(c.Preferences))
	for k, v := range c.Preferences {
		out.Preferences[k] = v
	}
	return &out
}
