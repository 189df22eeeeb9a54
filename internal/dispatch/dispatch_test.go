package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoop_RunsPostedFunctionsInOrder(t *testing.T) {
	loop := NewLoop()
	defer loop.Stop()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	for i := 1; i <= 3; i++ {
		i := i
		loop.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 3 {
				close(done)
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for posted functions")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestLoop_HoldsFunctionsUntilRun(t *testing.T) {
	loop := NewLoop()
	defer loop.Stop()

	ran := make(chan struct{})
	loop.Post(func() { close(ran) })

	select {
	case <-ran:
		t.Fatal("function ran before the loop started")
	case <-time.After(50 * time.Millisecond):
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("function never ran")
	}
}

func TestLoop_PostAfterStopDoesNotBlock(t *testing.T) {
	loop := NewLoop()
	loop.Stop()

	finished := make(chan struct{})
	go func() {
		loop.Post(func() {})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Post blocked after Stop")
	}

	// The function was discarded, not enqueued.
	assert.Zero(t, len(loop.funcs))
}

func TestLoop_RunReturnsOnContextCancel(t *testing.T) {
	loop := NewLoop()
	defer loop.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(finished)
	}()

	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return on cancel")
	}
}
