package core

// Subscriber receives hub events as seen by the core layer.
type Subscriber struct {
	ID     string
	Events chan *Event
}

// NewSubscriber constructs a subscriber with a buffered event channel.
func NewSubscriber(id string) *Subscriber {
	return &Subscriber{
		ID:     id,
		Events: make(chan *Event, 32),
	}
}

// feed groups subscribers that receive every committed event.
type feed struct {
	subscribers map[*Subscriber]struct{}
}

func newFeed() *feed {
	return &feed{subscribers: make(map[*Subscriber]struct{})}
}

// add inserts a subscriber. Returns true if newly added.
func (f *feed) add(s *Subscriber) bool {
	if _, exists := f.subscribers[s]; exists {
		return false
	}
	f.subscribers[s] = struct{}{}
	return true
}

// remove deletes a subscriber and closes its channel. Returns true if removed.
func (f *feed) remove(s *Subscriber) bool {
	if _, exists := f.subscribers[s]; !exists {
		return false
	}
	delete(f.subscribers, s)
	close(s.Events)
	return true
}

// broadcast sends an event to all subscribers.
func (f *feed) broadcast(event *Event) {
	for s := range f.subscribers {
		select {
		case s.Events <- event:
		default:
			// Drop if slow consumer.
		}
	}
}

// closeAll removes every subscriber.
func (f *feed) closeAll() {
	for s := range f.subscribers {
		f.remove(s)
	}
}
