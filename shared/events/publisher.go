package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

type PublisherOptions struct {
	// MaxLen caps the stream approximately (MAXLEN ~).
	MaxLen int64
	// Buffer is the number of events queued before Publish starts dropping.
	Buffer int
}

// Publisher appends events to one stream without blocking the caller.
// Events sit in a bounded in-memory queue until a background goroutine
// writes them, so queued events are lost if the process dies.
type Publisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64

	mu     sync.RWMutex
	closed bool
	queue  chan *redis.XAddArgs
	done   chan struct{}
	log    *logrus.Entry
}

func NewPublisher(client redis.UniversalClient, stream string, opts PublisherOptions) *Publisher {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.MaxLen <= 0 {
		opts.MaxLen = 1000
	}

	p := &Publisher{
		client: client,
		stream: stream,
		maxLen: opts.MaxLen,
		queue:  make(chan *redis.XAddArgs, opts.Buffer),
		done:   make(chan struct{}),
		log:    logrus.WithField("stream", stream),
	}
	go p.flush()
	return p
}

// Publish queues an event. Encoding errors, a full queue and a closed
// publisher are logged and the event is dropped.
func (p *Publisher) Publish(eventType EventType, payload interface{}, metadata map[string]string) {
	log := p.log.WithField("event_type", eventType)

	body, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Error("Failed to encode event payload")
		return
	}

	values := map[string]interface{}{
		fieldEventType: string(eventType),
		fieldPayload:   string(body),
	}
	if len(metadata) > 0 {
		meta, err := json.Marshal(metadata)
		if err != nil {
			log.WithError(err).Error("Failed to encode event metadata")
			return
		}
		values[fieldMetadata] = string(meta)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		log.Warn("Publisher closed, dropping event")
		return
	}
	select {
	case p.queue <- args:
	default:
		log.Warn("Publish queue full, dropping event")
	}
}

func (p *Publisher) flush() {
	defer close(p.done)
	for args := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		id, err := p.client.XAdd(ctx, args).Result()
		cancel()

		values := args.Values.(map[string]interface{})
		if err != nil {
			p.log.WithError(err).WithField("event_type", values[fieldEventType]).Error("Failed to publish event")
			continue
		}
		p.log.WithFields(logrus.Fields{
			"event_type": values[fieldEventType],
			"message_id": id,
		}).Debug("Event published")
	}
}

// Close stops accepting events and waits until the queue is written out or
// ctx is done.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
