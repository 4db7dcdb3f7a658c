// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	internal_telemetry "github.com/rapidaai/voice-client/api/voice-client/internal/telemetry"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
	"github.com/rapidaai/voice-client/pkg/commons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSender captures outbound messages.
type recordingSender struct {
	mu   sync.Mutex
	sent []*internal_type.Message
	out  chan *internal_type.Message
	err  error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{out: make(chan *internal_type.Message, 128)}
}

func (s *recordingSender) send(_ context.Context, m *internal_type.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	s.out <- m
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func reply(to *internal_type.Message, t internal_type.MessageType, data interface{}) *internal_type.Message {
	return &internal_type.Message{ID: to.ID, Label: internal_type.MessageLabel, Type: t, Data: data}
}

func newTestDispatcher(t *testing.T, sender *recordingSender, opts ...Option) *Dispatcher {
	t.Helper()
	d := NewDispatcher(commons.NewNopLogger(), sender.send, opts...)
	t.Cleanup(d.Disconnect)
	return d
}

func TestDispatch_ResolvesOnMatchingReply(t *testing.T) {
	sender := newRecordingSender()
	d := newTestDispatcher(t, sender)

	go func() {
		req := <-sender.out
		d.Resolve(reply(req, internal_type.MessageTypeServerResponse, "pong"))
	}()

	resp, err := d.Dispatch(context.Background(), "ping", internal_type.MessageTypeClientMessage, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Data)
	assert.Equal(t, 0, d.Pending())
}

func TestResolve_IgnoresForeignLabel(t *testing.T) {
	sender := newRecordingSender()
	d := newTestDispatcher(t, sender)

	ch, err := d.DispatchAsync(context.Background(), nil, internal_type.MessageTypeClientMessage, time.Minute)
	require.NoError(t, err)
	req := <-sender.out

	foreign := &internal_type.Message{ID: req.ID, Label: "other", Type: internal_type.MessageTypeServerResponse}
	assert.False(t, d.Resolve(foreign))
	assert.Equal(t, 1, d.Pending())

	assert.True(t, d.Resolve(reply(req, internal_type.MessageTypeServerResponse, nil)))
	r := <-ch
	assert.NoError(t, r.Err)
}

func TestDispatch_TimesOutWithoutReply(t *testing.T) {
	sender := newRecordingSender()
	d := newTestDispatcher(t, sender, WithGCInterval(20*time.Millisecond))

	start := time.Now()
	_, err := d.Dispatch(context.Background(), nil, internal_type.MessageTypeClientMessage, 100*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, internal_type.ErrMessageTimeout))
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Equal(t, 0, d.Pending())
}

func TestGC_ExpiresAgedRequests(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	sender := newRecordingSender()
	d := newTestDispatcher(t, sender, WithClock(clock.Now), WithGCInterval(time.Hour))

	ch, err := d.DispatchAsync(context.Background(), nil, internal_type.MessageTypeClientMessage, time.Minute)
	require.NoError(t, err)
	fresh, err := d.DispatchAsync(context.Background(), nil, internal_type.MessageTypeClientMessage, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 0, d.gc())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, d.gc())

	r := <-ch
	assert.True(t, errors.Is(r.Err, internal_type.ErrMessageTimeout))
	assert.Equal(t, 1, d.Pending())

	select {
	case <-fresh:
		t.Fatal("request within its timeout must stay pending")
	default:
	}
}

func TestResolve_AfterExpiryIsIgnored(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	sender := newRecordingSender()
	d := newTestDispatcher(t, sender, WithClock(clock.Now), WithGCInterval(time.Hour))

	ch, err := d.DispatchAsync(context.Background(), nil, internal_type.MessageTypeClientMessage, time.Minute)
	require.NoError(t, err)
	req := <-sender.out

	clock.Advance(time.Hour)
	d.gc()

	assert.False(t, d.Resolve(reply(req, internal_type.MessageTypeServerResponse, "late")))
	r := <-ch
	assert.Nil(t, r.Message)
	assert.True(t, errors.Is(r.Err, internal_type.ErrMessageTimeout))
}

func TestReject_ReturnsMessageError(t *testing.T) {
	sender := newRecordingSender()
	d := newTestDispatcher(t, sender)

	go func() {
		req := <-sender.out
		d.Reject(reply(req, internal_type.MessageTypeErrorResponse, internal_type.ErrorData{Message: "nope"}))
	}()

	_, err := d.Dispatch(context.Background(), nil, internal_type.MessageTypeClientMessage, time.Second)
	var msgErr *internal_type.MessageError
	require.True(t, errors.As(err, &msgErr))
	assert.Equal(t, internal_type.MessageTypeErrorResponse, msgErr.Message.Type)
	assert.Contains(t, err.Error(), "nope")
}

func TestConcurrentDispatchesSettleIndependently(t *testing.T) {
	const n = 50
	sender := newRecordingSender()
	d := newTestDispatcher(t, sender)

	go func() {
		for i := 0; i < n; i++ {
			req := <-sender.out
			d.Resolve(reply(req, internal_type.MessageTypeServerResponse, req.Data))
		}
	}()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := fmt.Sprintf("req-%d", i)
			resp, err := d.Dispatch(context.Background(), payload, internal_type.MessageTypeClientMessage, 5*time.Second)
			if err != nil {
				errs <- err
				return
			}
			if resp.Data != payload {
				errs <- fmt.Errorf("request %d got reply %v", i, resp.Data)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, 0, d.Pending())
}

func TestDisconnect_RejectsPendingAndRefusesNew(t *testing.T) {
	sender := newRecordingSender()
	d := NewDispatcher(commons.NewNopLogger(), sender.send)

	ch, err := d.DispatchAsync(context.Background(), nil, internal_type.MessageTypeClientMessage, time.Minute)
	require.NoError(t, err)

	d.Disconnect()
	d.Disconnect()

	r := <-ch
	assert.ErrorIs(t, r.Err, internal_type.ErrDispatcherDisconnected)

	_, err = d.Dispatch(context.Background(), nil, internal_type.MessageTypeClientMessage, time.Second)
	assert.ErrorIs(t, err, internal_type.ErrDispatcherDisconnected)
}

func TestDispatch_SendFailureRemovesRequest(t *testing.T) {
	sender := newRecordingSender()
	sender.err = errors.New("channel closed")
	d := newTestDispatcher(t, sender)

	_, err := d.Dispatch(context.Background(), nil, internal_type.MessageTypeClientMessage, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
	assert.Equal(t, 0, d.Pending())
}

func TestDispatch_ContextCancelRemovesRequest(t *testing.T) {
	sender := newRecordingSender()
	d := newTestDispatcher(t, sender)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sender.out
		cancel()
	}()

	_, err := d.Dispatch(ctx, nil, internal_type.MessageTypeClientMessage, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, d.Pending())
}

func TestDispatch_RecordsMetrics(t *testing.T) {
	metrics := internal_telemetry.NewMetrics(prometheus.NewRegistry())
	sender := newRecordingSender()
	d := newTestDispatcher(t, sender, WithMetrics(metrics))

	go func() {
		req := <-sender.out
		d.Resolve(reply(req, internal_type.MessageTypeServerResponse, nil))
	}()
	_, err := d.Dispatch(context.Background(), nil, internal_type.MessageTypeClientMessage, time.Second)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.MessagesDispatched))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.MessagesResolved))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.PendingRequests))
}
