package utils

import (
	"context"
	"testing"
	"time"
)

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{
			name:   "returns empty when limit non-positive",
			input:  "hello world",
			limit:  0,
			expect: "",
		},
		{
			name:   "shorter than limit",
			input:  "hello",
			limit:  10,
			expect: "hello",
		},
		{
			name:   "truncates and adds ellipsis",
			input:  "hello world",
			limit:  5,
			expect: "hello...",
		},
		{
			name:   "trims surrounding whitespace",
			input:  "  spaced  ",
			limit:  5,
			expect: "space...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestWaitForReturnsOnCancelledContext(t *testing.T) {
	originalSleep := sleep
	sleep = func(time.Duration) { time.Sleep(50 * time.Millisecond) }
	defer func() { sleep = originalSleep }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Hour); err == nil {
		t.Fatal("expected context error")
	}
}

func TestWaitForSkipsNonPositiveDurations(t *testing.T) {
	called := false
	originalSleep := sleep
	sleep = func(time.Duration) { called = true }
	defer func() { sleep = originalSleep }()

	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if called {
		t.Fatal("sleep should not be called for zero duration")
	}
}
