package natsbackend

import (
	"sync"

	"github.com/nats-io/nats.go"
)

type subscription struct {
	out  chan []byte
	mu   sync.Mutex
	subs []*nats.Subscription
}

func newSubscription() *subscription {
	return &subscription{out: make(chan []byte, 64)}
}

func (s *subscription) track(sub *nats.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
}

func (s *subscription) deliver(msg *nats.Msg) {
	select {
	case s.out <- msg.Data:
	default:
		// slow consumer; drop rather than block the NATS dispatch goroutine
	}
}

func (s *subscription) Messages() <-chan []byte {
	return s.out
}

func (s *subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.subs = nil
	return firstErr
}
