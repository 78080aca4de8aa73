package eventbus

import (
	evbus "github.com/asaskevich/EventBus"
)

// Publisher is the publishing half of a bus.
type Publisher interface {
	Publish(topic string, args ...interface{})
}

// Subscriber is the subscribing half of a bus.
type Subscriber interface {
	Subscribe(topic string, fn interface{}) error
}

// Bus is a synchronous bus. Handlers run on the publishing goroutine while
// the bus lock is held, so a handler must never publish on the same bus.
type Bus interface {
	Publisher
	Subscriber
}

// New creates a standalone synchronous bus.
func New() evbus.Bus {
	return evbus.New()
}
