// Package session holds the authenticated identity of one client and tells
// subscribers when it changes.
package session

import (
	"sync"

	"todolist/internal/model"
)

// Listener receives the current user, or nil when signed out.
type Listener func(user *model.User)

// Context is the session state of a single client (a browser or a chat).
// Only the auth gateway publishes into it; everything else subscribes.
type Context struct {
	mu        sync.Mutex
	user      *model.User
	token     string
	listeners map[int]Listener
	nextID    int

	// deliver serializes notifications so listeners observe changes in order.
	deliver sync.Mutex
}

func New() *Context {
	return &Context{listeners: make(map[int]Listener)}
}

// Current returns a copy of the signed-in user, or nil.
func (c *Context) Current() *model.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyUser(c.user)
}

// Token returns the session token backing the current user.
func (c *Context) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Subscribe registers listener and immediately delivers the current value
// to it. The returned function unsubscribes; calling it twice is safe.
func (c *Context) Subscribe(listener Listener) (unsubscribe func()) {
	c.deliver.Lock()
	defer c.deliver.Unlock()

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = listener
	user := copyUser(c.user)
	c.mu.Unlock()

	listener(user)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Publish replaces the session and notifies every subscriber. A nil user
// signs the client out and drops the token.
func (c *Context) Publish(user *model.User, token string) {
	c.deliver.Lock()
	defer c.deliver.Unlock()
	c.publish(user, token)
}

// Expire signs the client out when token is still its current token, and
// reports whether it did.
func (c *Context) Expire(token string) bool {
	c.deliver.Lock()
	defer c.deliver.Unlock()

	c.mu.Lock()
	current := c.token
	c.mu.Unlock()
	if token == "" || current != token {
		return false
	}
	c.publish(nil, "")
	return true
}

func (c *Context) publish(user *model.User, token string) {
	c.mu.Lock()
	c.user = copyUser(user)
	c.token = token
	if user == nil {
		c.token = ""
	}
	listeners := make([]Listener, 0, len(c.listeners))
	for id := 0; id < c.nextID; id++ {
		if l, ok := c.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(copyUser(user))
	}
}

// Subscribers reports how many listeners are registered.
func (c *Context) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

func copyUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}
