package library

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/vodarr/internal/media"
)

// EventType identifies what kind of catalog change occurred.
type EventType string

const (
	// EventAdded is emitted when a single entry is added to the catalog.
	EventAdded EventType = "added"
	// EventRemoved is emitted when an entry is dropped from the catalog.
	EventRemoved EventType = "removed"
	// EventScanned is emitted once per directory scan that changed the catalog.
	EventScanned EventType = "scanned"
)

// Event describes a catalog change.
type Event struct {
	Type      EventType
	Entry     media.Entry // zero value for EventScanned
	Added     int
	Removed   int
	Timestamp time.Time
}

// Subscriber receives catalog change events.
type Subscriber struct {
	ID     string
	Events chan Event
}

// Subscribe registers a new subscriber for catalog change events. Events
// are delivered best-effort: a subscriber that stops draining its channel
// loses events rather than blocking the catalog.
func (c *Catalog) Subscribe() *Subscriber {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := &Subscriber{
		ID:     ulid.Make().String(),
		Events: make(chan Event, 16),
	}
	c.subscribers[sub.ID] = sub

	c.logger.Debug("subscriber added", "subscriber_id", sub.ID)
	return sub
}

// Unsubscribe removes a subscriber and closes its event channel.
func (c *Catalog) Unsubscribe(subscriberID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, ok := c.subscribers[subscriberID]; ok {
		close(sub.Events)
		delete(c.subscribers, subscriberID)
		c.logger.Debug("subscriber removed", "subscriber_id", subscriberID)
	}
}

// broadcastLocked sends an event to all subscribers.
// Must be called with c.mu held.
func (c *Catalog) broadcastLocked(event Event) {
	event.Timestamp = time.Now()

	for _, sub := range c.subscribers {
		select {
		case sub.Events <- event:
		default:
			c.logger.Warn("subscriber event channel full, dropping event",
				"subscriber_id", sub.ID,
				"event_type", event.Type,
			)
		}
	}
}
