// Package analytics forwards click events to the external analytics
// pipeline over RabbitMQ. The pipeline owns aggregation; the core only
// emits and never blocks a redirect on delivery.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/internal/metrics"
	"github.com/linkforge/linkforge/pkg/logger"
)

const (
	// ClickExchange is the topic exchange click events publish to
	ClickExchange = "linkforge.clicks"

	// clickRoutingKey routes raw click events to aggregation consumers
	clickRoutingKey = "url.clicked"

	publishTimeout = 5 * time.Second
)

// Sender abstracts the AMQP channel so tests can capture publishes
type Sender interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher buffers click events and writes them to the exchange from
// a single goroutine, since AMQP channels are not safe for concurrent
// publishing. The buffer is bounded; under pressure the oldest
// buffered click is shed so the stream stays current.
type Publisher struct {
	sender   Sender
	conn     *amqp.Connection
	exchange string
	queue    chan domain.ClickEvent
	done     chan struct{}
	closed   sync.Once
	wg       sync.WaitGroup
	log      *logger.Logger
}

// NewPublisher connects to RabbitMQ, declares the durable click
// exchange and starts the writer
func NewPublisher(amqpURL string, bufferSize int, log *logger.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ClickExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	p := newPublisher(ch, ClickExchange, bufferSize, log)
	p.conn = conn
	return p, nil
}

// NewPublisherWithSender wires a pre-built sender. Tests use this to
// observe publishes without a broker.
func NewPublisherWithSender(sender Sender, exchange string, bufferSize int, log *logger.Logger) *Publisher {
	return newPublisher(sender, exchange, bufferSize, log)
}

func newPublisher(sender Sender, exchange string, bufferSize int, log *logger.Logger) *Publisher {
	if bufferSize < 1 {
		bufferSize = 1
	}

	p := &Publisher{
		sender:   sender,
		exchange: exchange,
		queue:    make(chan domain.ClickEvent, bufferSize),
		done:     make(chan struct{}),
		log:      log,
	}

	p.wg.Add(1)
	go p.run()

	return p
}

// Publish hands a click event to the writer without blocking. When the
// buffer is full the oldest buffered event is dropped in its favor.
func (p *Publisher) Publish(ev domain.ClickEvent) {
	select {
	case <-p.done:
		return
	default:
	}

	select {
	case p.queue <- ev:
		return
	default:
	}

	// Buffer full: shed the oldest click so the stream stays current
	select {
	case <-p.queue:
		metrics.ClickEventDropsTotal.Inc()
	default:
	}

	select {
	case p.queue <- ev:
	default:
		// A racing producer refilled the slot; shed this event instead
		metrics.ClickEventDropsTotal.Inc()
	}
}

// run is the single writer loop. It drains remaining buffered events
// on shutdown before exiting.
func (p *Publisher) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			for {
				select {
				case ev := <-p.queue:
					p.send(ev)
				default:
					return
				}
			}
		case ev := <-p.queue:
			p.send(ev)
		}
	}
}

func (p *Publisher) send(ev domain.ClickEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Warnw("failed to marshal click event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = p.sender.PublishWithContext(ctx, p.exchange, clickRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.OccurredAt,
		Body:         payload,
	})
	if err != nil {
		p.log.Warnw("failed to publish click event",
			"short_code", ev.ShortCode, "error", err)
	}
}

// Close stops the writer, flushes the buffer and tears down the AMQP
// resources
func (p *Publisher) Close() error {
	p.closed.Do(func() { close(p.done) })
	p.wg.Wait()

	err := p.sender.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
