package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

// NoSession is the name reported before a session is started.
const NoSession = "No session started"

// Context holds the current recording session.
type Context struct {
	mu      sync.RWMutex
	session core.Session
	active  bool
}

// NewContext creates a new Context with no active session.
func NewContext() *Context {
	return &Context{session: core.Session{Name: NoSession}}
}

// Get returns a copy of the current session.
func (c *Context) Get() core.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Active reports whether a session was started and not ended.
func (c *Context) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Start records s as the current session.
func (c *Context) Start(s core.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.active = true
}

// End stamps the end time of the current session and marks it inactive.
// It returns the ended session.
func (c *Context) End(at time.Time) core.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active && c.session.EndTime.IsZero() {
		c.session.EndTime = at
	}
	c.active = false
	return c.session
}

// LogAttrs returns the session attributes injected into log records.
func (c *Context) LogAttrs() []slog.Attr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.active {
		return nil
	}
	return []slog.Attr{
		slog.Uint64("sessionId", uint64(c.session.ID)),
		slog.String("session", c.session.Name),
	}
}
