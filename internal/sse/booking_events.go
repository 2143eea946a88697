package sse

import (
	"context"
	"sync"

	"torashaout/internal/models"
)

// BookingEventEmitter fans booking status changes out to SSE subscribers, keyed
// either by booking or by talent.
type BookingEventEmitter struct {
	bookingClients map[string][]chan models.BookingEvent
	talentClients  map[string][]chan models.BookingEvent
	mu             sync.RWMutex
}

func NewBookingEventEmitter() *BookingEventEmitter {
	return &BookingEventEmitter{
		bookingClients: make(map[string][]chan models.BookingEvent),
		talentClients:  make(map[string][]chan models.BookingEvent),
	}
}

// SubscribeToBooking returns a channel receiving events for one booking. The channel
// is closed once ctx is done.
func (e *BookingEventEmitter) SubscribeToBooking(ctx context.Context, bookingID string) <-chan models.BookingEvent {
	return e.subscribe(ctx, e.bookingClients, bookingID)
}

// SubscribeToTalent returns a channel receiving events for every booking of a talent.
func (e *BookingEventEmitter) SubscribeToTalent(ctx context.Context, talentID string) <-chan models.BookingEvent {
	return e.subscribe(ctx, e.talentClients, talentID)
}

func (e *BookingEventEmitter) subscribe(ctx context.Context, clients map[string][]chan models.BookingEvent, key string) <-chan models.BookingEvent {
	clientChan := make(chan models.BookingEvent, 10)

	e.mu.Lock()
	clients[key] = append(clients[key], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(clients, key, clientChan)
	}()

	return clientChan
}

// Emit broadcasts without blocking; a subscriber with a full buffer misses the event.
func (e *BookingEventEmitter) Emit(event models.BookingEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, clientChan := range e.bookingClients[event.BookingID] {
		select {
		case clientChan <- event:
		default:
		}
	}
	for _, clientChan := range e.talentClients[event.TalentID] {
		select {
		case clientChan <- event:
		default:
		}
	}
}

func (e *BookingEventEmitter) remove(clients map[string][]chan models.BookingEvent, key string, clientChan chan models.BookingEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := clients[key]
	for i, ch := range list {
		if ch == clientChan {
			clients[key] = append(list[:i], list[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(clients[key]) == 0 {
		delete(clients, key)
	}
}

func (e *BookingEventEmitter) BookingClientCount(bookingID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.bookingClients[bookingID])
}

func (e *BookingEventEmitter) TalentClientCount(talentID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.talentClients[talentID])
}
