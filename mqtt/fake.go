package mqtt

import "sync"

// Message is a publish recorded by FakeClient.
type Message struct {
	Topic   string
	Payload []byte
}

// FakeClient records publishes and lets tests inject incoming messages.
type FakeClient struct {
	mu sync.Mutex

	// Published contains every message that was published.
	Published []Message

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error

	// Closed tracks if Close was called.
	Closed bool

	handlers map[string]func([]byte)
}

func NewFakeClient() *FakeClient {
	return &FakeClient{handlers: make(map[string]func([]byte))}
}

func (f *FakeClient) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}
	f.Published = append(f.Published, Message{Topic: topic, Payload: payload})
	return nil
}

func (f *FakeClient) Subscribe(topic string, handler func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.handlers[topic] = handler
	return nil
}

func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Closed = true
	return nil
}

// Deliver hands payload to the subscriber of topic, as if the broker had
// sent it. It reports whether anyone was subscribed.
func (f *FakeClient) Deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()

	if ok {
		h(payload)
	}
	return ok
}

// Messages returns a copy of everything published so far.
func (f *FakeClient) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Message(nil), f.Published...)
}
