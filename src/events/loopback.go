package events

import (
	"sync"
)

/*
An in-process broker. Every transport dialed from the same Loopback sees the
messages of all the others, which is enough to run several buses side by side
in tests or in a single-process setup.
*/
type Loopback struct {
	mu    sync.Mutex
	conns map[*loopbackTransport]struct{}
}

func NewLoopback() *Loopback {
	return &Loopback{conns: make(map[*loopbackTransport]struct{})}
}

func (l *Loopback) Dial() (Transport, error) {
	t := &loopbackTransport{hub: l, closed: make(chan struct{})}
	l.mu.Lock()
	l.conns[t] = struct{}{}
	l.mu.Unlock()
	return t, nil
}

// Closes every transport, as if the broker went away.
func (l *Loopback) DropAll() {
	l.mu.Lock()
	conns := l.conns
	l.conns = make(map[*loopbackTransport]struct{})
	l.mu.Unlock()
	for t := range conns {
		t.closeOnce.Do(func() { close(t.closed) })
	}
}

func (l *Loopback) deliver(subject string, data []byte) {
	l.mu.Lock()
	var handlers []func([]byte)
	for t := range l.conns {
		t.mu.Lock()
		handlers = append(handlers, t.subs[subject]...)
		t.mu.Unlock()
	}
	l.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
}

type loopbackTransport struct {
	hub       *Loopback
	mu        sync.Mutex
	subs      map[string][]func([]byte)
	closed    chan struct{}
	closeOnce sync.Once
}

func (t *loopbackTransport) Publish(subject string, data []byte) error {
	select {
	case <-t.closed:
		return ErrDisconnected
	default:
	}
	t.hub.deliver(subject, data)
	return nil
}

func (t *loopbackTransport) Subscribe(subject string, handler func(data []byte)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs == nil {
		t.subs = make(map[string][]func([]byte))
	}
	t.subs[subject] = append(t.subs[subject], handler)
	return nil
}

func (t *loopbackTransport) Closed() <-chan struct{} {
	return t.closed
}

func (t *loopbackTransport) Close() {
	t.hub.mu.Lock()
	delete(t.hub.conns, t)
	t.hub.mu.Unlock()
	t.closeOnce.Do(func() { close(t.closed) })
}
