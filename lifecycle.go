package offlinecache

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Phase is the lifecycle state of a Coordinator instance.
type Phase int

const (
	// PhaseNew is the state before install has started.
	PhaseNew Phase = iota
	PhaseInstalling
	// PhaseInstalled means asset priming completed and the instance is
	// eligible to take control.
	PhaseInstalled
	PhaseActivating
	// PhaseActive means this generation controls all registered clients.
	PhaseActive
	// PhaseFailed is a terminal state for an aborted install.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhaseInstalling:
		return "installing"
	case PhaseInstalled:
		return "installed"
	case PhaseActivating:
		return "activating"
	case PhaseActive:
		return "active"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// Phase returns the current lifecycle phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Coordinator) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
	c.log.Debug().Str("phase", p.String()).Msg("Lifecycle phase changed")
}

// Run installs the current generation and activates it immediately,
// skipping the staged rollout where a new version waits for all open
// pages to close before taking control.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.Install(ctx); err != nil {
		return err
	}
	return c.Activate(ctx)
}

// ForceActivate activates the installed generation without any staging.
// It implements the SKIP_WAITING command and is a no-op when the instance
// is already active. Calling it before install has completed is an error.
func (c *Coordinator) ForceActivate(ctx context.Context) error {
	switch c.Phase() {
	case PhaseActive:
		return nil
	case PhaseInstalled:
		return c.Activate(ctx)
	}
	return fmt.Errorf("cannot activate from phase %s", c.Phase())
}

// Client is a controlled page. It is notified when a new generation takes
// control without waiting for a reload.
type Client interface {
	ControllerChanged(generation string)
}

// ClientRegistry tracks the open pages controlled by a coordinator.
type ClientRegistry struct {
	mu      sync.Mutex
	clients map[uuid.UUID]Client
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[uuid.UUID]Client),
	}
}

// Register adds a client and returns the id to deregister it with.
func (cr *ClientRegistry) Register(client Client) uuid.UUID {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	id := uuid.New()
	cr.clients[id] = client
	return id
}

// Deregister removes a client, typically when its page closes.
func (cr *ClientRegistry) Deregister(id uuid.UUID) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	delete(cr.clients, id)
}

// Len returns the number of registered clients.
func (cr *ClientRegistry) Len() int {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return len(cr.clients)
}

// Claim hands control of every registered client to the given generation.
func (cr *ClientRegistry) Claim(generation string) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	for _, client := range cr.clients {
		client.ControllerChanged(generation)
	}
}
