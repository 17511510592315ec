package notify

import (
	"context"
	"errors"
	"log"
	"sync"
)

// Registry holds named channels for escalation dispatch.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewRegistry constructs an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Register adds a channel under a name; a later registration replaces
// an earlier one.
func (r *Registry) Register(name string, channel Channel) {
	if r == nil || name == "" || channel == nil {
		return
	}
	r.mu.Lock()
	r.channels[name] = channel
	r.mu.Unlock()
}

// Get returns the channel registered under name.
func (r *Registry) Get(name string) (Channel, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	channel, ok := r.channels[name]
	return channel, ok
}

// Names returns the registered channel names.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}

// LogChannel writes notifications to a logger. Useful as a default
// channel and in tests.
type LogChannel struct {
	logger *log.Logger
}

// NewLogChannel constructs a log channel.
func NewLogChannel(logger *log.Logger) *LogChannel {
	if logger == nil {
		logger = log.Default()
	}
	return &LogChannel{logger: logger}
}

// Send implements Channel.
func (c *LogChannel) Send(_ context.Context, content string) error {
	if c == nil || c.logger == nil {
		return errors.New("log channel: nil logger")
	}
	c.logger.Printf("notification: %s", content)
	return nil
}
