// Package realtime fans lifecycle events out to dashboards. Events reach
// browsers through a websocket hub, other replicas through a Redis relay and
// ward display panels through an MQTT bridge.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Event is a realtime notification. Data carries the full entity.
type Event struct {
	Type       string          `json:"type"`
	Topic      string          `json:"topic,omitempty"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event with entity marshalled into Data. A payload that
// cannot be marshalled is dropped; the event is still delivered.
func NewEvent(eventType, entityType, entityID string, entity interface{}) Event {
	ev := Event{
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Timestamp:  time.Now().UTC(),
	}
	if entity != nil {
		if data, err := json.Marshal(entity); err == nil {
			ev.Data = data
		}
	}
	return ev
}

// Publisher delivers events either to everyone or to one topic.
type Publisher interface {
	Broadcast(ctx context.Context, event Event) error
	Publish(ctx context.Context, topic string, event Event) error
}

// WardTopic is the topic for all changes inside a ward.
func WardTopic(ward string) string { return "ward:" + ward }

// BedTopic is the topic for changes to a single bed.
func BedTopic(bedID string) string { return "bed:" + bedID }

// Nop discards every event.
type Nop struct{}

func (Nop) Broadcast(context.Context, Event) error { return nil }

func (Nop) Publish(context.Context, string, Event) error { return nil }

// Fanout delivers each event to every wrapped publisher. A failing publisher
// does not stop delivery to the others.
type Fanout []Publisher

func (f Fanout) Broadcast(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Broadcast(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Publish(ctx context.Context, topic string, event Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit broadcasts event and publishes it on every non-empty topic.
func Emit(ctx context.Context, pub Publisher, event Event, topics ...string) error {
	if pub == nil {
		return nil
	}
	var errs []error
	if err := pub.Broadcast(ctx, event); err != nil {
		errs = append(errs, err)
	}
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		if err := pub.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
