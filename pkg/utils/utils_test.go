// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"empty", "", true},
		{"spaces", "   ", true},
		{"newline body", "\n", true},
		{"json object", "{}", false},
		{"padded text", " ok ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := IsEmpty(tt.input); result != tt.expected {
				t.Errorf("expected %t, got %t", tt.expected, result)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected float64
	}{
		{"below range", -0.5, 0},
		{"in range", 0.42, 0.42},
		{"above range", 1.7, 1},
		{"lower bound", 0, 0},
		{"upper bound", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := Clamp(tt.input, 0, 1); result != tt.expected {
				t.Errorf("expected %f, got %f", tt.expected, result)
			}
		})
	}
}

func TestPtr(t *testing.T) {
	p := Ptr(0.5)
	if p == nil || *p != 0.5 {
		t.Fatalf("expected pointer to 0.5, got %v", p)
	}
}

func TestGo_RecoversPanic(t *testing.T) {
	recovered := make(chan interface{}, 1)
	Go(context.Background(), func() { panic("boom") }, func(r interface{}, _ []byte) {
		recovered <- r
	})

	select {
	case r := <-recovered:
		if r != "boom" {
			t.Errorf("expected boom, got %v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("panic was not recovered")
	}
}

func TestGo_SkipsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := make(chan struct{}, 1)
	Go(ctx, func() { ran <- struct{}{} })

	select {
	case <-ran:
		t.Fatal("fn should not run with a cancelled context")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGoGroup_ReleasesGroup(t *testing.T) {
	var wg sync.WaitGroup
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	ran := 0
	var mu sync.Mutex
	GoGroup(context.Background(), &wg, func() {
		mu.Lock()
		ran++
		mu.Unlock()
	})
	GoGroup(context.Background(), &wg, func() { panic("boom") })
	GoGroup(cancelled, &wg, func() { t.Error("fn should not run with a cancelled context") })

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait group was not released")
	}
	if ran != 1 {
		t.Errorf("expected fn to run once, ran %d", ran)
	}
}

func TestPanicError(t *testing.T) {
	base := errors.New("inner")
	if err := PanicError(base); !errors.Is(err, base) {
		t.Errorf("expected wrapped error, got %v", err)
	}
	if err := PanicError("text"); err.Error() != "panic: text" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
