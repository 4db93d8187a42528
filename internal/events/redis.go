package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher is the subset of *redis.Client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type envelope struct {
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// RedisSink fans every event out to the employee channel, the client channel
// and the firehose. Publishing happens on one goroutine behind a bounded
// queue; when the queue is full the event is dropped.
type RedisSink struct {
	client  Publisher
	prefix  string
	log     *slog.Logger
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	queue   chan Event
	done    chan struct{}
	dropped atomic.Int64
}

func NewRedisSink(client Publisher, prefix string, buffer int, log *slog.Logger) *RedisSink {
	if buffer <= 0 {
		buffer = 256
	}
	if prefix == "" {
		prefix = "booking"
	}
	if log == nil {
		log = slog.Default()
	}
	s := &RedisSink{
		client:  client,
		prefix:  prefix,
		log:     log,
		timeout: 2 * time.Second,
		queue:   make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *RedisSink) Publish(ctx context.Context, e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(e, "sink closed")
		return
	}
	select {
	case s.queue <- e:
	default:
		s.drop(e, "queue full")
	}
}

func (s *RedisSink) drop(e Event, why string) {
	s.dropped.Add(1)
	s.log.Warn("event dropped",
		slog.String("reason", why),
		slog.String("type", string(e.Type)),
		slog.String("appointment_id", e.AppointmentID),
	)
}

// Dropped reports how many events were discarded.
func (s *RedisSink) Dropped() int64 {
	return s.dropped.Load()
}

// Channels lists the channels an event is published to.
func (s *RedisSink) Channels(e Event) []string {
	out := make([]string, 0, 3)
	if e.EmployeeID != "" {
		out = append(out, s.prefix+":employee:"+e.EmployeeID)
	}
	if e.ClientID != "" {
		out = append(out, s.prefix+":client:"+e.ClientID)
	}
	return append(out, s.prefix+":appointments")
}

func (s *RedisSink) run() {
	defer close(s.done)
	for e := range s.queue {
		s.send(e)
	}
}

func (s *RedisSink) send(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.log.Error("event encode failed", slog.String("type", string(e.Type)), slog.Any("err", err))
		return
	}
	msg, err := json.Marshal(envelope{Type: e.Type, Payload: payload, CreatedAt: e.OccurredAt})
	if err != nil {
		s.log.Error("event encode failed", slog.String("type", string(e.Type)), slog.Any("err", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	for _, ch := range s.Channels(e) {
		if err := s.client.Publish(ctx, ch, msg).Err(); err != nil {
			s.log.Warn("event publish failed",
				slog.String("channel", ch),
				slog.String("type", string(e.Type)),
				slog.Any("err", err),
			)
		}
	}
}

// Close stops accepting events and waits for the queue to drain.
func (s *RedisSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RedisChecker reports broker reachability to the health server.
type RedisChecker struct {
	Client *redis.Client
}

func (c RedisChecker) Name() string { return "redis" }

func (c RedisChecker) Check(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
