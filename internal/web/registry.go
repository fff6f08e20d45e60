package web

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"todolist/internal/session"
	"todolist/internal/view"
)

// MachineFactory builds the state machine for a new client session.
type MachineFactory func(sess *session.Context) *view.Machine

// Client is one browser: its session context and its state machine.
type Client struct {
	ID      string
	Session *session.Context
	Machine *view.Machine

	lastSeen time.Time
}

// Registry keeps the clients known to the server, keyed by client cookie.
type Registry struct {
	factory MachineFactory
	idle    time.Duration
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*Client
}

func NewRegistry(factory MachineFactory, idle time.Duration) *Registry {
	return &Registry{
		factory: factory,
		idle:    idle,
		now:     time.Now,
		clients: make(map[string]*Client),
	}
}

// Get returns the client with id and marks it as seen.
func (r *Registry) Get(id string) (*Client, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if ok {
		c.lastSeen = r.now()
	}
	return c, ok
}

// Create registers a fresh, signed-out client.
func (r *Registry) Create() *Client {
	sess := session.New()
	m := r.factory(sess)
	m.Start(context.Background())

	c := &Client{ID: uuid.NewString(), Session: sess, Machine: m}

	r.mu.Lock()
	c.lastSeen = r.now()
	r.clients[c.ID] = c
	r.mu.Unlock()
	return c
}

// Sweep closes and forgets clients not seen for longer than the idle timeout.
func (r *Registry) Sweep(_ context.Context) error {
	if r.idle <= 0 {
		return nil
	}
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var stale []*Client
	for id, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			stale = append(stale, c)
			delete(r.clients, id)
		}
	}
	r.mu.Unlock()

	for _, c := range stale {
		c.Machine.Close()
	}
	if len(stale) > 0 {
		log.Printf("[info] swept %d idle web clients", len(stale))
	}
	return nil
}

// Len reports how many clients are registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Close shuts down every client.
func (r *Registry) Close() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		c.Machine.Close()
	}
}
