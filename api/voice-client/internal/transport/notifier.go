// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transport

import (
	"sync"

	"github.com/rapidaai/voice-client/pkg/commons"
	"github.com/rapidaai/voice-client/pkg/utils"
)

// notifier runs queued callbacks one at a time, in enqueue order, on a
// single goroutine. The queue is unbounded so enqueueing never blocks, even
// from inside a callback.
type notifier struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
	logger commons.Logger
}

func newNotifier(logger commons.Logger) *notifier {
	n := &notifier{logger: logger, done: make(chan struct{})}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

// enqueue schedules fn. It returns false once the notifier is closed.
func (n *notifier) enqueue(fn func()) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return false
	}
	n.queue = append(n.queue, fn)
	n.cond.Signal()
	return true
}

// flush blocks until the queue is idle, including work queued by the
// functions it ran.
func (n *notifier) flush() {
	for {
		done := make(chan struct{})
		if !n.enqueue(func() { close(done) }) {
			<-n.done
			return
		}
		<-done
		n.mu.Lock()
		idle := len(n.queue) == 0
		n.mu.Unlock()
		if idle {
			return
		}
	}
}

// close drains the queue and stops the goroutine.
func (n *notifier) close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		n.cond.Signal()
	}
	n.mu.Unlock()
	<-n.done
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		n.mu.Lock()
		for len(n.queue) == 0 && !n.closed {
			n.cond.Wait()
		}
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return
		}
		fn := n.queue[0]
		n.queue[0] = nil
		n.queue = n.queue[1:]
		n.mu.Unlock()
		n.invoke(fn)
	}
}

func (n *notifier) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Errorw("callback panicked", "error", utils.PanicError(r))
		}
	}()
	fn()
}
