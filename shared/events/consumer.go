package events

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"reservation-platform/shared/config"
)

type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

var ErrNotIdle = errors.New("events: consumer already started")

const readErrorBackoff = time.Second

type ConsumerOptions struct {
	Stream   string
	Group    string
	Consumer string

	// BlockTimeout bounds one XREADGROUP wait.
	BlockTimeout time.Duration
	BatchSize    int64
	// PendingInterval is how often this consumer's unacknowledged messages
	// are replayed while running. Zero replays them only at start.
	PendingInterval time.Duration

	OnStateChange func(State)
}

// OptionsFor builds the options of a consumer of stream in group from the
// events configuration.
func OptionsFor(cfg config.EventsConfig, stream, group string) ConsumerOptions {
	return ConsumerOptions{
		Stream:          stream,
		Group:           group,
		Consumer:        ConsumerName(group, cfg.ConsumerName),
		BlockTimeout:    cfg.BlockTimeout,
		BatchSize:       cfg.BatchSize,
		PendingInterval: cfg.PendingInterval,
	}
}

// Consumer reads one stream as one member of a consumer group and
// dispatches every message to the handler registered for its type.
// Messages are acknowledged only after their handler succeeds.
type Consumer struct {
	client   redis.UniversalClient
	registry *Registry
	opts     ConsumerOptions
	tracer   trace.Tracer
	log      *logrus.Entry

	mu     sync.Mutex
	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
}

func NewConsumer(client redis.UniversalClient, registry *Registry, opts ConsumerOptions) *Consumer {
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	return &Consumer{
		client:   client,
		registry: registry,
		opts:     opts,
		tracer:   otel.Tracer("reservation-platform/events"),
		log: logrus.WithFields(logrus.Fields{
			"stream":   opts.Stream,
			"group":    opts.Group,
			"consumer": opts.Consumer,
		}),
	}
}

// ConsumerName returns configured when set, otherwise a name derived from
// the service and host so replicas in one group do not collide.
func ConsumerName(service, configured string) string {
	if configured != "" {
		return configured
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = strconv.Itoa(os.Getpid())
	}
	return fmt.Sprintf("%s-%s", service, host)
}

func (c *Consumer) State() State {
	return State(c.state.Load())
}

func (c *Consumer) setState(s State) {
	c.state.Store(int32(s))
	c.log.WithField("state", s.String()).Debug("Consumer state changed")
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

// Start creates the consumer group if needed and launches the read loop.
// The loop replays this consumer's pending messages before reading new ones.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateIdle {
		return ErrNotIdle
	}
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.setState(StateRunning)

	go c.run(loopCtx)
	c.log.Info("Event consumer started")
	return nil
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.opts.Stream, c.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", c.opts.Group, c.opts.Stream, err)
	}
	return nil
}

// Stop lets the in-flight batch finish for up to timeout, then cancels the
// loop. Stopped is terminal; calling Stop again is a no-op.
func (c *Consumer) Stop(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateIdle:
		c.setState(StateStopped)
		return
	case StateStopped:
		return
	}

	c.setState(StateDraining)
	select {
	case <-c.done:
	case <-time.After(timeout):
		c.log.Warn("Consumer did not drain in time, cancelling")
		c.cancel()
		select {
		case <-c.done:
		case <-time.After(c.opts.BlockTimeout + time.Second):
			c.log.Warn("Consumer loop still blocked after cancel")
		}
	}
	c.cancel()
	c.setState(StateStopped)
	c.log.Info("Event consumer stopped")
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)

	c.replayPending(ctx)
	lastReplay := time.Now()

	for c.State() == StateRunning && ctx.Err() == nil {
		if c.opts.PendingInterval > 0 && time.Since(lastReplay) >= c.opts.PendingInterval {
			c.replayPending(ctx)
			lastReplay = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.opts.Group,
			Consumer: c.opts.Consumer,
			Streams:  []string{c.opts.Stream, ">"},
			Count:    c.opts.BatchSize,
			Block:    c.opts.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			c.log.WithError(err).Warn("Failed to read from stream")
			select {
			case <-ctx.Done():
			case <-time.After(readErrorBackoff):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.handle(ctx, msg)
			}
		}
	}
}

// replayPending walks this consumer's pending entries oldest first.
func (c *Consumer) replayPending(ctx context.Context) {
	start := "-"
	for ctx.Err() == nil {
		pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream:   c.opts.Stream,
			Group:    c.opts.Group,
			Start:    start,
			End:      "+",
			Count:    c.opts.BatchSize,
			Consumer: c.opts.Consumer,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				c.log.WithError(err).Warn("Failed to list pending messages")
			}
			return
		}

		for _, p := range pending {
			msgs, err := c.client.XRangeN(ctx, c.opts.Stream, p.ID, p.ID, 1).Result()
			if err != nil {
				c.log.WithError(err).WithField("message_id", p.ID).Warn("Failed to load pending message")
				return
			}
			if len(msgs) == 0 {
				// Trimmed from the stream; nothing left to process.
				c.ack(ctx, p.ID)
				continue
			}
			c.handle(ctx, msgs[0])
		}

		if int64(len(pending)) < c.opts.BatchSize {
			return
		}
		next, err := nextID(pending[len(pending)-1].ID)
		if err != nil {
			c.log.WithError(err).Warn("Unexpected pending message id")
			return
		}
		start = next
	}
}

func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) {
	log := c.log.WithField("message_id", msg.ID)

	evt, err := decodeMessage(c.opts.Stream, msg)
	if err != nil {
		// A malformed message can never succeed, so it is not kept pending.
		log.WithError(err).Error("Discarding malformed event")
		c.ack(ctx, msg.ID)
		return
	}
	log = log.WithField("event_type", evt.Type)

	handler, ok := c.registry.Lookup(evt.Type)
	if !ok {
		log.Debug("No handler registered, acknowledging")
		c.ack(ctx, msg.ID)
		return
	}

	spanCtx, span := c.tracer.Start(ctx, "events.handle "+string(evt.Type),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "redis"),
			attribute.String("messaging.destination.name", c.opts.Stream),
			attribute.String("messaging.consumer.group.name", c.opts.Group),
			attribute.String("messaging.message.id", msg.ID),
		))
	err = invoke(spanCtx, handler, evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	if err != nil {
		log.WithError(err).Warn("Event handler failed, message left pending")
		return
	}
	c.ack(ctx, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.opts.Stream, c.opts.Group, id).Err(); err != nil {
		c.log.WithError(err).WithField("message_id", id).Warn("Failed to acknowledge message")
	}
}

// invoke runs h, turning a panic into an error so one bad event cannot
// stop the loop.
func invoke(ctx context.Context, h Handler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, evt)
}

// nextID returns the smallest stream id greater than id.
func nextID(id string) (string, error) {
	ms, seq, ok := strings.Cut(id, "-")
	if !ok {
		return "", fmt.Errorf("malformed stream id %q", id)
	}
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return "", fmt.Errorf("malformed stream id %q: %w", id, err)
	}
	return fmt.Sprintf("%s-%d", ms, n+1), nil
}
