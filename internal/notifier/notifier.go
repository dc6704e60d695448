// Package notifier delivers lifecycle events to user-configured
// webhook endpoints. Delivery is queued, signed, retried with backoff
// and guarded by a per-destination circuit breaker; it never blocks
// the operation that raised the event.
package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/internal/metrics"
	"github.com/linkforge/linkforge/internal/repository"
	"github.com/linkforge/linkforge/pkg/logger"
)

const webhookUserAgent = "URLShortener-Webhook/1.0"

// deliveryState tracks a task through its lifecycle. Terminal states
// are delivered and permanent_failure; transient_failure loops back to
// queued until the retry budget runs out.
type deliveryState string

const (
	stateQueued           deliveryState = "queued"
	stateSending          deliveryState = "sending"
	stateDelivered        deliveryState = "delivered"
	stateTransientFailure deliveryState = "transient_failure"
	statePermanentFailure deliveryState = "permanent_failure"
)

// task is one pending webhook delivery
type task struct {
	ownerID *string
	event   domain.EventType
	data    map[string]interface{}
	attempt int
	state   deliveryState
}

// envelope is the wire format posted to destinations
type envelope struct {
	Event     domain.EventType       `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Config tunes the dispatcher
type Config struct {
	// QueueSize bounds the pending-delivery queue
	QueueSize int

	// Workers is the number of concurrent delivery goroutines
	Workers int

	// MaxRetries bounds re-deliveries after the first attempt
	MaxRetries int

	// Timeout applies to each delivery attempt independently of the
	// request that raised the event
	Timeout time.Duration

	// BaseBackoff is the first retry delay; it doubles per attempt
	BaseBackoff time.Duration
}

// Dispatcher owns the delivery queue and workers
type Dispatcher struct {
	settings repository.NotificationSettingsRepository
	client   *http.Client
	log      *logger.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*task
	closed bool

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker

	capacity    int
	maxRetries  int
	timeout     time.Duration
	baseBackoff time.Duration

	wg sync.WaitGroup
}

// NewDispatcher builds the dispatcher and starts its workers
func NewDispatcher(settings repository.NotificationSettingsRepository, cfg Config, log *logger.Logger) *Dispatcher {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}

	d := &Dispatcher{
		settings:    settings,
		client:      &http.Client{Timeout: cfg.Timeout},
		log:         log,
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
		capacity:    cfg.QueueSize,
		maxRetries:  cfg.MaxRetries,
		timeout:     cfg.Timeout,
		baseBackoff: cfg.BaseBackoff,
	}
	d.cond = sync.NewCond(&d.mu)

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}

	return d
}

// Enqueue queues an event for the owner's webhook. Anonymous events
// have no destination and are ignored. Never blocks: when the queue is
// full, a url.clicked task is shed first, then the oldest task.
func (d *Dispatcher) Enqueue(ownerID *string, event domain.EventType, data map[string]interface{}) {
	if ownerID == nil {
		return
	}
	d.enqueueTask(&task{ownerID: ownerID, event: event, data: data})
}

func (d *Dispatcher) enqueueTask(t *task) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	if len(d.queue) >= d.capacity {
		d.shedLocked()
	}

	t.state = stateQueued
	d.queue = append(d.queue, t)
	d.cond.Signal()
}

// shedLocked drops one task to make room. Clicked events are sampled
// telemetry and go first; otherwise the oldest task loses its slot.
func (d *Dispatcher) shedLocked() {
	for i, t := range d.queue {
		if t.event == domain.EventURLClicked {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			metrics.WebhookQueueDropsTotal.WithLabelValues(string(domain.EventURLClicked)).Inc()
			return
		}
	}

	dropped := d.queue[0]
	d.queue = d.queue[1:]
	metrics.WebhookQueueDropsTotal.WithLabelValues(string(dropped.event)).Inc()
}

// next blocks until a task is available or the dispatcher closes
func (d *Dispatcher) next() *task {
	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.queue) == 0 && !d.closed {
		d.cond.Wait()
	}

	if len(d.queue) == 0 {
		return nil
	}

	t := d.queue[0]
	d.queue = d.queue[1:]
	return t
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		t := d.next()
		if t == nil {
			return
		}
		d.deliver(t)
	}
}

// deliver resolves the owner's settings and attempts one delivery,
// scheduling a retry on transient failure
func (d *Dispatcher) deliver(t *task) {
	t.state = stateSending

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	s, err := d.settings.FindByUserID(ctx, *t.ownerID)
	if err != nil {
		d.log.Warnw("webhook settings lookup failed",
			"user_id", *t.ownerID, "event", t.event, "error", err)
		d.retryOrFail(t)
		return
	}

	if s == nil || s.WebhookURL == "" || !s.EnabledFor(t.event) {
		return
	}

	status, err := d.post(ctx, s, t)
	switch {
	case err != nil:
		// Network errors, timeouts, 5xx responses and an open breaker
		// all count as transient
		d.log.Warnw("webhook delivery attempt failed",
			"user_id", *t.ownerID, "event", t.event,
			"attempt", t.attempt+1, "error", err)
		d.retryOrFail(t)

	case status >= 200 && status < 300:
		t.state = stateDelivered
		metrics.WebhookDeliveriesTotal.WithLabelValues(string(t.event), "delivered").Inc()
		d.log.Debugw("webhook delivered",
			"user_id", *t.ownerID, "event", t.event,
			"attempt", t.attempt+1, "state", string(t.state))

	default:
		// The destination understood us and said no. Retrying the same
		// payload will not change its mind.
		t.state = statePermanentFailure
		metrics.WebhookDeliveriesTotal.WithLabelValues(string(t.event), "failed").Inc()
		d.log.Warnw("webhook rejected by destination",
			"user_id", *t.ownerID, "event", t.event,
			"status", status, "state", string(t.state))
	}
}

// retryOrFail schedules the next attempt with exponential backoff, or
// gives up once the retry budget is spent
func (d *Dispatcher) retryOrFail(t *task) {
	if t.attempt >= d.maxRetries {
		t.state = statePermanentFailure
		metrics.WebhookDeliveriesTotal.WithLabelValues(string(t.event), "failed").Inc()
		d.log.Warnw("webhook delivery gave up",
			"event", t.event, "attempts", t.attempt+1, "state", string(t.state))
		return
	}

	t.attempt++
	t.state = stateTransientFailure

	delay := d.baseBackoff << (t.attempt - 1)
	time.AfterFunc(delay, func() { d.enqueueTask(t) })
}

// post signs and sends the payload through the destination's breaker.
// The returned status is meaningful only when err is nil.
func (d *Dispatcher) post(ctx context.Context, s *domain.NotificationSettings, t *task) (int, error) {
	body, err := json.Marshal(envelope{
		Event:     t.event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      t.data,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)
	if s.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(s.Secret, body))
	}

	v, err := d.breaker(s.WebhookURL).Execute(func() (interface{}, error) {
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("destination returned %d", resp.StatusCode)
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return 0, err
	}

	return v.(int), nil
}

// breaker returns the destination's circuit breaker, creating it on
// first use
func (d *Dispatcher) breaker(url string) *gobreaker.CircuitBreaker {
	d.breakersMu.Lock()
	defer d.breakersMu.Unlock()

	if cb, ok := d.breakers[url]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        url,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	d.breakers[url] = cb
	return cb
}

// Sign computes the hex HMAC-SHA256 of the payload. Destinations
// recompute it with their shared secret to authenticate deliveries.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Close stops intake, lets workers finish the queued tasks and waits
// for them. Retries still waiting on their backoff timer are dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()

	d.wg.Wait()
}
