// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transport

import (
	"sync"
	"testing"

	"github.com/rapidaai/voice-client/pkg/commons"
	"github.com/stretchr/testify/assert"
)

func TestNotifier_RunsInOrder(t *testing.T) {
	n := newNotifier(commons.NewNopLogger())
	defer n.close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		n.enqueue(func() { got = append(got, i) })
	}
	n.flush()

	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestNotifier_FlushIncludesNestedWork(t *testing.T) {
	n := newNotifier(commons.NewNopLogger())
	defer n.close()

	var got []string
	n.enqueue(func() {
		got = append(got, "outer")
		n.enqueue(func() { got = append(got, "inner") })
	})
	n.flush()

	assert.Equal(t, []string{"outer", "inner"}, got)
}

func TestNotifier_RecoversPanics(t *testing.T) {
	n := newNotifier(commons.NewNopLogger())
	defer n.close()

	ran := false
	n.enqueue(func() { panic("boom") })
	n.enqueue(func() { ran = true })
	n.flush()

	assert.True(t, ran)
}

func TestNotifier_CloseDrainsAndRejects(t *testing.T) {
	n := newNotifier(commons.NewNopLogger())

	var mu sync.Mutex
	count := 0
	for i := 0; i < 10; i++ {
		n.enqueue(func() {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}
	n.close()

	mu.Lock()
	assert.Equal(t, 10, count)
	mu.Unlock()
	assert.False(t, n.enqueue(func() {}))
	n.flush()
	n.close()
}
