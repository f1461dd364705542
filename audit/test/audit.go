package test

import (
	"context"
	"sync"

	"github.com/chartline-org/chartline/audit"
)

// FakeRepository records audit events in memory.
type FakeRepository struct {
	mu     sync.Mutex
	events []audit.Event
}

var _ audit.Repository = &FakeRepository{}

func NewFakeRepository() *FakeRepository {
	return &FakeRepository{}
}

func (f *FakeRepository) Initialize(ctx context.Context) error {
	return nil
}

func (f *FakeRepository) Create(ctx context.Context, event audit.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *FakeRepository) Events() []audit.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]audit.Event{}, f.events...)
}

func (f *FakeRepository) EventsOfType(eventType audit.EventType) []audit.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []audit.Event
	for _, event := range f.events {
		if event.EventType == eventType {
			result = append(result, event)
		}
	}
	return result
}
