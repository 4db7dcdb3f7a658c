// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	internal_telemetry "github.com/rapidaai/voice-client/api/voice-client/internal/telemetry"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
	"github.com/rapidaai/voice-client/pkg/commons"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultGCInterval = time.Second
)

// SendFunc is the one-way send primitive of the transport.
type SendFunc func(ctx context.Context, message *internal_type.Message) error

// Result settles a dispatched request. Exactly one of Message or Err is set.
type Result struct {
	Message *internal_type.Message
	Err     error
}

type pendingRequest struct {
	message    *internal_type.Message
	enqueuedAt time.Time
	timeout    time.Duration
	result     chan Result
	timer      *time.Timer
}

// Dispatcher correlates outbound requests with their replies by message id.
// Every request settles exactly once: on reply, on error-response, on
// timeout, on cancellation or on disconnect, whichever comes first.
type Dispatcher struct {
	mu      sync.Mutex
	logger  commons.Logger
	send    SendFunc
	metrics *internal_telemetry.Metrics

	queue        map[string]*pendingRequest
	disconnected bool

	timeout    time.Duration
	gcInterval time.Duration
	now        func() time.Time

	stopGC   chan struct{}
	stopOnce sync.Once
}

type Option func(*Dispatcher)

// WithTimeout sets the timeout used when Dispatch is called with zero.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithGCInterval sets the period of the expiry sweep.
func WithGCInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.gcInterval = interval
		}
	}
}

// WithClock replaces the clock used to age requests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func WithMetrics(metrics *internal_telemetry.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = metrics }
}

// NewDispatcher creates a dispatcher sending through send and starts its
// expiry sweep. Call Disconnect to release it.
func NewDispatcher(logger commons.Logger, send SendFunc, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:     logger,
		send:       send,
		queue:      make(map[string]*pendingRequest),
		timeout:    DefaultTimeout,
		gcInterval: DefaultGCInterval,
		now:        time.Now,
		stopGC:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.runGC()
	return d
}

// Dispatch sends a request of the given type and blocks until it settles or
// ctx is done. A zero timeout uses the dispatcher default.
func (d *Dispatcher) Dispatch(ctx context.Context, data interface{}, messageType internal_type.MessageType, timeout time.Duration) (*internal_type.Message, error) {
	pr, err := d.enqueue(ctx, data, messageType, timeout)
	if err != nil {
		return nil, err
	}
	select {
	case r := <-pr.result:
		return r.Message, r.Err
	case <-ctx.Done():
		d.mu.Lock()
		settled := d.settleLocked(pr.message.ID, Result{Err: ctx.Err()})
		d.mu.Unlock()
		if settled {
			d.metrics.RequestRejected()
			return nil, ctx.Err()
		}
		// settled concurrently, the result is already buffered
		r := <-pr.result
		return r.Message, r.Err
	}
}

// DispatchAsync sends a request and returns a channel that receives its
// single Result. ctx only bounds the send.
func (d *Dispatcher) DispatchAsync(ctx context.Context, data interface{}, messageType internal_type.MessageType, timeout time.Duration) (<-chan Result, error) {
	pr, err := d.enqueue(ctx, data, messageType, timeout)
	if err != nil {
		return nil, err
	}
	return pr.result, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, data interface{}, messageType internal_type.MessageType, timeout time.Duration) (*pendingRequest, error) {
	if timeout <= 0 {
		timeout = d.timeout
	}
	message := internal_type.NewMessage(messageType, data)
	pr := &pendingRequest{
		message: message,
		timeout: timeout,
		result:  make(chan Result, 1),
	}

	d.mu.Lock()
	if d.disconnected {
		d.mu.Unlock()
		return nil, internal_type.ErrDispatcherDisconnected
	}
	pr.enqueuedAt = d.now()
	d.queue[message.ID] = pr
	id := message.ID
	pr.timer = time.AfterFunc(timeout, func() { d.expire(id) })
	d.mu.Unlock()
	d.metrics.RequestDispatched()

	d.logger.Debugw("dispatching request", "id", id, "type", messageType, "timeout", timeout)
	if err := d.send(ctx, message); err != nil {
		d.mu.Lock()
		removed := d.removeLocked(id)
		d.mu.Unlock()
		if removed {
			d.metrics.RequestDropped()
		}
		return nil, fmt.Errorf("failed to send %s: %w", messageType, err)
	}
	return pr, nil
}

// Resolve settles the request matching the reply id. It reports whether a
// pending request was found; late or unknown replies are dropped.
func (d *Dispatcher) Resolve(message *internal_type.Message) bool {
	if !message.IsProtocolMessage() {
		return false
	}
	d.mu.Lock()
	pr := d.queue[message.ID]
	settled := d.settleLocked(message.ID, Result{Message: message})
	d.mu.Unlock()
	if !settled {
		d.logger.Debugw("dropping reply for unknown request", "id", message.ID, "type", message.Type)
		return false
	}
	d.metrics.RequestResolved(d.now().Sub(pr.enqueuedAt))
	return true
}

// Reject settles the request matching the error-response id with a
// *MessageError.
func (d *Dispatcher) Reject(message *internal_type.Message) bool {
	if !message.IsProtocolMessage() {
		return false
	}
	d.mu.Lock()
	settled := d.settleLocked(message.ID, Result{Err: &internal_type.MessageError{Message: message}})
	d.mu.Unlock()
	if !settled {
		d.logger.Debugw("dropping error response for unknown request", "id", message.ID)
		return false
	}
	d.metrics.RequestRejected()
	return true
}

// ClearQueue rejects every pending request with ErrDispatcherDisconnected.
func (d *Dispatcher) ClearQueue() {
	d.mu.Lock()
	count := 0
	for id := range d.queue {
		if d.settleLocked(id, Result{Err: internal_type.ErrDispatcherDisconnected}) {
			count++
		}
	}
	d.mu.Unlock()
	for i := 0; i < count; i++ {
		d.metrics.RequestRejected()
	}
	if count > 0 {
		d.logger.Infow("cleared pending requests", "count", count)
	}
}

// Disconnect clears the queue, stops the sweep and refuses new requests.
func (d *Dispatcher) Disconnect() {
	d.mu.Lock()
	d.disconnected = true
	d.mu.Unlock()
	d.ClearQueue()
	d.stopOnce.Do(func() { close(d.stopGC) })
}

// Pending returns the number of in-flight requests.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) expire(id string) {
	d.mu.Lock()
	pr, ok := d.queue[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	d.settleLocked(id, Result{Err: timeoutError(pr)})
	d.mu.Unlock()
	d.metrics.RequestExpired()
	d.logger.Warnw("request timed out", "id", id, "type", pr.message.Type, "timeout", pr.timeout)
}

func (d *Dispatcher) runGC() {
	ticker := time.NewTicker(d.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			d.gc()
		}
	}
}

// gc rejects every request older than its timeout and returns how many it expired.
func (d *Dispatcher) gc() int {
	now := d.now()
	var expired []*pendingRequest
	d.mu.Lock()
	for id, pr := range d.queue {
		if now.Sub(pr.enqueuedAt) > pr.timeout {
			d.settleLocked(id, Result{Err: timeoutError(pr)})
			expired = append(expired, pr)
		}
	}
	d.mu.Unlock()
	for _, pr := range expired {
		d.metrics.RequestExpired()
		d.logger.Warnw("request expired by sweep", "id", pr.message.ID, "type", pr.message.Type)
	}
	return len(expired)
}

// settleLocked removes the request and delivers r. It must hold d.mu.
func (d *Dispatcher) settleLocked(id string, r Result) bool {
	pr, ok := d.queue[id]
	if !ok {
		return false
	}
	delete(d.queue, id)
	if pr.timer != nil {
		pr.timer.Stop()
	}
	pr.result <- r
	return true
}

func (d *Dispatcher) removeLocked(id string) bool {
	pr, ok := d.queue[id]
	if !ok {
		return false
	}
	delete(d.queue, id)
	if pr.timer != nil {
		pr.timer.Stop()
	}
	return true
}

func timeoutError(pr *pendingRequest) error {
	return fmt.Errorf("%w: %s %s after %s", internal_type.ErrMessageTimeout, pr.message.Type, pr.message.ID, pr.timeout)
}
