package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// EventInfo describes a registered event for documentation and the CLI.
type EventInfo struct {
	Name          string
	Module        string
	Description   string
	PayloadType   string
	PayloadFields []string
}

var (
	catalogMu sync.RWMutex
	catalog   = make(map[string]EventInfo)
)

// Event wraps a topic name and provides type-safe publishing.
type Event[T any] struct {
	name string
}

// NewEvent defines a typed event and records it in the catalogue. Events are
// declared at package level; defining the same name twice panics.
func NewEvent[T any](name, description string) Event[T] {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	var fields []string
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			tag := t.Field(i).Tag.Get("json")
			if tag == "" || tag == "-" {
				continue
			}
			name, _, _ := strings.Cut(tag, ",")
			fields = append(fields, name)
		}
	}

	module, _, _ := strings.Cut(name, ".")
	info := EventInfo{
		Name:          name,
		Module:        module,
		Description:   description,
		PayloadType:   t.String(),
		PayloadFields: fields,
	}

	catalogMu.Lock()
	defer catalogMu.Unlock()
	if _, exists := catalog[name]; exists {
		panic(fmt.Sprintf("pubsub: event already registered: %s", name))
	}
	catalog[name] = info

	return Event[T]{name: name}
}

// Name returns the topic name.
func (e Event[T]) Name() string {
	return e.name
}

// Events lists the catalogue sorted by name.
func Events() []EventInfo {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	out := make([]EventInfo, 0, len(catalog))
	for _, info := range catalog {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupEvent returns the catalogue entry for name.
func LookupEvent(name string) (EventInfo, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	info, ok := catalog[name]
	return info, ok
}

// Publish sends a typed event. userID is carried on the message for routing.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], userID string, payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event.Name(), err)
	}
	return p.Publish(ctx, Message{
		Topic:   event.Name(),
		UserID:  userID,
		Payload: data,
	})
}

// Subscribe registers a handler that receives decoded payloads of event.
func Subscribe[T any](ctx context.Context, s Subscriber, event Event[T], fn func(ctx context.Context, payload T) error) error {
	return s.Subscribe(ctx, event.Name(), func(ctx context.Context, msg Message) error {
		var payload T
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", event.Name(), err)
		}
		return fn(ctx, payload)
	})
}
