package events

// Message is a raw event as it arrived from the bus.
type Message struct {
	Topic string
	Data  []byte // JSON-encoded event payload
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers events matching topic (bus wildcards allowed) on
	// the returned channel. The cancel function unsubscribes and closes it.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
