package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/pkg/logger"
)

// captureSender records everything published to it
type captureSender struct {
	mu       sync.Mutex
	messages []amqp.Publishing
	keys     []string
	block    chan struct{} // when set, sends wait here after recording the first call
	started  chan struct{}
	once     sync.Once
}

func (s *captureSender) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if s.started != nil {
		s.once.Do(func() { close(s.started) })
	}
	if s.block != nil {
		<-s.block
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.keys = append(s.keys, key)
	return nil
}

func (s *captureSender) Close() error { return nil }

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *captureSender) codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.messages))
	for _, msg := range s.messages {
		var ev domain.ClickEvent
		if err := json.Unmarshal(msg.Body, &ev); err == nil {
			out = append(out, ev.ShortCode)
		}
	}
	return out
}

func clickEvent(code string) domain.ClickEvent {
	return domain.ClickEvent{
		ID:         "ev-" + code,
		ShortCode:  code,
		OccurredAt: time.Now().UTC().Truncate(time.Second),
		SourceIP:   "192.0.2.10",
	}
}

func TestPublisherDeliversBufferedEvents(t *testing.T) {
	sender := &captureSender{}
	p := NewPublisherWithSender(sender, "test.clicks", 8, logger.NewLogger())
	defer p.Close()

	p.Publish(clickEvent("aaa1111"))
	p.Publish(clickEvent("bbb2222"))
	p.Publish(clickEvent("ccc3333"))

	require.Eventually(t, func() bool { return sender.count() == 3 },
		2*time.Second, 10*time.Millisecond)

	sender.mu.Lock()
	defer sender.mu.Unlock()

	assert.Equal(t, []string{"url.clicked", "url.clicked", "url.clicked"}, sender.keys)

	msg := sender.messages[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), msg.DeliveryMode)
	assert.Equal(t, "ev-aaa1111", msg.MessageId)

	var ev domain.ClickEvent
	require.NoError(t, json.Unmarshal(msg.Body, &ev))
	assert.Equal(t, "aaa1111", ev.ShortCode)
	assert.Equal(t, "192.0.2.10", ev.SourceIP)
}

func TestPublisherShedsOldestWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	sender := &captureSender{block: release, started: started}

	p := NewPublisherWithSender(sender, "test.clicks", 1, logger.NewLogger())

	// First event occupies the writer
	p.Publish(clickEvent("first11"))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("writer never picked up the first event")
	}

	// Second fills the one-slot buffer; third forces the shed
	p.Publish(clickEvent("second2"))
	p.Publish(clickEvent("third33"))

	close(release)
	require.Eventually(t, func() bool { return sender.count() == 2 },
		2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"first11", "third33"}, sender.codes())

	p.Close()
}

func TestPublisherCloseFlushesAndStops(t *testing.T) {
	sender := &captureSender{}
	p := NewPublisherWithSender(sender, "test.clicks", 8, logger.NewLogger())

	p.Publish(clickEvent("one1111"))
	p.Publish(clickEvent("two2222"))

	require.NoError(t, p.Close())
	assert.Equal(t, 2, sender.count())

	// Publishing after close is a silent no-op
	p.Publish(clickEvent("late333"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, sender.count())
}
