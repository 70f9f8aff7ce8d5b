package redisbackend

import (
	"github.com/redis/go-redis/v9"
)

// subscription adapts *redis.PubSub to broker.Subscription, translating
// its typed *redis.Message channel into the plain []byte channel the
// broker package expects.
type subscription struct {
	pubsub *redis.PubSub
	out    chan []byte
	done   chan struct{}
}

func newSubscription(pubsub *redis.PubSub) *subscription {
	s := &subscription{
		pubsub: pubsub,
		out:    make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *subscription) pump() {
	defer close(s.out)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case s.out <- []byte(msg.Payload):
			case <-s.done:
				return
			}
		}
	}
}

func (s *subscription) Messages() <-chan []byte {
	return s.out
}

func (s *subscription) Close() error {
	select {
	case <-s.done:
		// already closed
	default:
		close(s.done)
	}
	return s.pubsub.Close()
}
