package state

import (
	"sync"
	"time"
)

// Context is the mutable FSM state of one conversation: the current State
// and arbitrary key/value data. All methods are safe for concurrent use.
type Context struct {
	mu      sync.RWMutex
	chatID  int64
	state   State
	data    map[string]any
	touched time.Time
	now     func() time.Time
}

// NewContext creates a detached context, mainly for tests and throwaway use.
func NewContext(chatID int64) *Context {
	return newContext(chatID, time.Now)
}

func newContext(chatID int64, now func() time.Time) *Context {
	if now == nil {
		now = time.Now
	}
	return &Context{
		chatID:  chatID,
		data:    make(map[string]any),
		touched: now(),
		now:     now,
	}
}

// ChatID returns the conversation id the context belongs to.
func (c *Context) ChatID() int64 { return c.chatID }

// State returns the current state, the zero State when none is set.
func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// HasState reports whether a non-zero state is set.
func (c *Context) HasState() bool {
	return !c.State().IsZero()
}

// SetState moves the conversation to st.
func (c *Context) SetState(st State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = st
	c.touched = c.now()
}

// ClearState resets the state without touching data.
func (c *Context) ClearState() {
	c.SetState(State{})
}

// UpdateData merges kv into the data: given keys overwrite or extend, other
// keys persist.
func (c *Context) UpdateData(kv map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range kv {
		c.data[k] = v
	}
	c.touched = c.now()
}

// Set stores a single key.
func (c *Context) Set(key string, value any) {
	c.UpdateData(map[string]any{key: value})
}

// Data returns a shallow copy of the data mapping.
func (c *Context) Data() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Value returns the value stored under key.
func (c *Context) Value(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// Int64 returns the value under key when it holds an integer.
func (c *Context) Int64(key string) (int64, bool) {
	v, ok := c.Value(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}

// Delete removes key from the data.
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.touched = c.now()
}

// Update runs fn with exclusive access to the live data mapping, for
// read-modify-write sequences that must not interleave.
func (c *Context) Update(fn func(data map[string]any)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.data)
	c.touched = c.now()
}

// Reset clears both state and data.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = State{}
	c.data = make(map[string]any)
	c.touched = c.now()
}

// LastSeen returns the time of the last access through the store or the last mutation.
func (c *Context) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.touched
}

func (c *Context) touch() {
	c.mu.Lock()
	c.touched = c.now()
	c.mu.Unlock()
}
