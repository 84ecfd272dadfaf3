package events

import "sync"

// Type identifies the kind of catalog event.
type Type string

const (
	// FavoriteChanged is published when a media item's favorite flag flips.
	FavoriteChanged Type = "favorite-changed"
	// AlbumsChanged is published after a rebuild or repair pass mutates albums.
	AlbumsChanged Type = "albums-changed"
	// PersonChanged is published when a person's name, cover or pet flag changes.
	PersonChanged Type = "person-changed"
)

// Event carries a change notification to subscribers.
type Event struct {
	Type Type
	// Path is the media path for FavoriteChanged events.
	Path string
	// ID is the album or person id, when applicable.
	ID int64
	// Favorite is the new flag value for FavoriteChanged events.
	Favorite bool
}

// Bus is a simple fan-out channel bus. Subscribers get their own buffered
// channel; a slow subscriber drops events rather than blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber and returns its receive channel.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes all subscriber channels. Publish must not be called after Close.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
