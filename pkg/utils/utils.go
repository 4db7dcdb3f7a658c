// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
)

// IsEmpty reports whether s is empty or whitespace only.
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PanicHandler receives recovered panics from Go.
type PanicHandler func(recovered interface{}, stack []byte)

// Go runs fn on a new goroutine and recovers any panic so a misbehaving
// callback cannot take the process down. The optional handlers are invoked
// with the recovered value. fn is skipped when ctx is already done.
func Go(ctx context.Context, fn func(), handlers ...PanicHandler) {
	go run(ctx, nil, fn, handlers)
}

// GoGroup is Go counted in wg. wg is released whether fn ran, was skipped
// or panicked.
func GoGroup(ctx context.Context, wg *sync.WaitGroup, fn func(), handlers ...PanicHandler) {
	wg.Add(1)
	go run(ctx, wg.Done, fn, handlers)
}

func run(ctx context.Context, done func(), fn func(), handlers []PanicHandler) {
	if done != nil {
		defer done()
	}
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			for _, h := range handlers {
				h(r, stack)
			}
		}
	}()
	select {
	case <-ctx.Done():
		return
	default:
	}
	fn()
}

// PanicError converts a recovered value to an error.
func PanicError(recovered interface{}) error {
	if err, ok := recovered.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", recovered)
}
