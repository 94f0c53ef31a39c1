// Package realtimetest records published events for assertions.
package realtimetest

import (
	"context"
	"sync"

	"github.com/bedtrack/bedtrack/internal/platform/realtime"
)

// Delivery is one recorded event. Topic is empty for broadcasts.
type Delivery struct {
	Topic string
	Event realtime.Event
}

type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func (r *Recorder) Broadcast(_ context.Context, ev realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, Delivery{Event: ev})
	return nil
}

func (r *Recorder) Publish(_ context.Context, topic string, ev realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, Delivery{Topic: topic, Event: ev})
	return nil
}

func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Delivery, len(r.deliveries))
	copy(out, r.deliveries)
	return out
}

// Types returns the event type of every broadcast, in order.
func (r *Recorder) Types() []string {
	var out []string
	for _, d := range r.Deliveries() {
		if d.Topic == "" {
			out = append(out, d.Event.Type)
		}
	}
	return out
}

// Count returns how many broadcasts had the given type.
func (r *Recorder) Count(eventType string) int {
	n := 0
	for _, t := range r.Types() {
		if t == eventType {
			n++
		}
	}
	return n
}

// Topics returns every topic an event of eventType was published on.
func (r *Recorder) Topics(eventType string) []string {
	var out []string
	for _, d := range r.Deliveries() {
		if d.Topic != "" && d.Event.Type == eventType {
			out = append(out, d.Topic)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
}
