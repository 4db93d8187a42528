package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"bookingcore/backend/internal/domain"
)

type published struct {
	channel string
	message []byte
}

type fakePublisher struct {
	publishFn func(ctx context.Context, channel string, message any) *redis.IntCmd

	mu   sync.Mutex
	sent []published
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	if f.publishFn == nil {
		panic("Publish not configured")
	}
	cmd := f.publishFn(ctx, channel, message)
	if cmd.Err() == nil {
		f.mu.Lock()
		f.sent = append(f.sent, published{channel: channel, message: message.([]byte)})
		f.mu.Unlock()
	}
	return cmd
}

func (f *fakePublisher) channels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, p := range f.sent {
		out = append(out, p.channel)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func sampleAppointment() domain.Appointment {
	return domain.Appointment{
		ID:              uuid.MustParse("00000000-0000-0000-0000-000000000101"),
		EmployeeID:      "e1",
		ClientID:        "c1",
		LocationID:      "l1",
		StartTime:       time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		EndTime:         time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC),
		Status:          domain.StatusScheduled,
		StatusChangedBy: "c1",
	}
}

func TestRedisSink_FansOutToEmployeeClientAndFirehose(t *testing.T) {
	pub := &fakePublisher{
		publishFn: func(ctx context.Context, channel string, message any) *redis.IntCmd {
			return redis.NewIntResult(1, nil)
		},
	}
	sink := NewRedisSink(pub, "bk", 8, discardLogger())

	sink.Publish(context.Background(), Created(sampleAppointment(), time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sink.Close(ctx); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	got := pub.channels()
	want := []string{"bk:employee:e1", "bk:client:c1", "bk:appointments"}
	if !slices.Equal(got, want) {
		t.Fatalf("channels = %v, want %v", got, want)
	}

	var env struct {
		Type    Type  `json:"type"`
		Payload Event `json:"payload"`
	}
	if err := json.Unmarshal(pub.sent[0].message, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TypeAppointmentCreated || env.Payload.EmployeeID != "e1" || env.Payload.ClientID != "c1" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestRedisSink_DropsWhenQueueIsFull(t *testing.T) {
	entered := make(chan struct{}, 8)
	release := make(chan struct{})
	pub := &fakePublisher{
		publishFn: func(ctx context.Context, channel string, message any) *redis.IntCmd {
			entered <- struct{}{}
			<-release
			return redis.NewIntResult(1, nil)
		},
	}
	sink := NewRedisSink(pub, "bk", 1, discardLogger())
	ctx := context.Background()
	e := Created(sampleAppointment(), time.Now())

	sink.Publish(ctx, e)
	<-entered // the publisher goroutine holds the first event

	done := make(chan struct{})
	go func() {
		defer close(done)
		sink.Publish(ctx, e) // fills the queue
		sink.Publish(ctx, e) // dropped
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Publish blocked on a full queue")
	}
	if got := sink.Dropped(); got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}

	close(release)
	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sink.Close(closeCtx); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if n := len(pub.channels()); n != 6 {
		t.Fatalf("publishes = %d, want 6", n)
	}

	sink.Publish(ctx, e)
	if got := sink.Dropped(); got != 2 {
		t.Fatalf("Dropped after close = %d, want 2", got)
	}
}

func TestRedisSink_PublishErrorsAreSwallowed(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	pub := &fakePublisher{
		publishFn: func(ctx context.Context, channel string, message any) *redis.IntCmd {
			mu.Lock()
			calls++
			mu.Unlock()
			return redis.NewIntResult(0, errors.New("connection refused"))
		},
	}
	sink := NewRedisSink(pub, "bk", 4, discardLogger())
	sink.Publish(context.Background(), Created(sampleAppointment(), time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sink.Close(ctx); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Fatalf("calls = %d, want every channel attempted", calls)
	}
}

func TestForTransition(t *testing.T) {
	before := sampleAppointment()
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	t.Run("confirm emits status_changed only", func(t *testing.T) {
		after := before
		after.Status = domain.StatusConfirmed
		evs := ForTransition(before, after, at)
		if len(evs) != 1 || evs[0].Type != TypeAppointmentStatusChanged {
			t.Fatalf("events = %+v", evs)
		}
		if evs[0].From != domain.StatusScheduled || evs[0].To != domain.StatusConfirmed {
			t.Fatalf("from/to = %s/%s", evs[0].From, evs[0].To)
		}
	})

	t.Run("cancel also emits cancelled with reason", func(t *testing.T) {
		after := before
		after.Status = domain.StatusCancelled
		reason := domain.ReasonAbsenceCascade
		after.CancelledReason = &reason
		evs := ForTransition(before, after, at)
		if len(evs) != 2 {
			t.Fatalf("len = %d, want 2", len(evs))
		}
		if evs[1].Type != TypeAppointmentCancelled || evs[1].Reason != reason {
			t.Fatalf("cancelled event = %+v", evs[1])
		}
		if evs[1].ClientID != "c1" || !evs[1].StartTime.Equal(before.StartTime) {
			t.Fatalf("cancelled event missing appointment fields: %+v", evs[1])
		}
	})
}

func TestRecorder(t *testing.T) {
	var r Recorder
	PublishAll(context.Background(), &r, ForTransition(sampleAppointment(), sampleAppointment(), time.Now()))
	r.Publish(context.Background(), Created(sampleAppointment(), time.Now()))
	if len(r.Events()) != 2 || len(r.OfType(TypeAppointmentCreated)) != 1 {
		t.Fatalf("events = %+v", r.Events())
	}
}
