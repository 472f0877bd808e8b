package control

import (
	"sync"
	"testing"
)

func TestShutdownSetsStopped(t *testing.T) {
	Reset()
	if Stopped() {
		t.Fatal("fresh state must not be stopped")
	}
	Shutdown()
	if !Stopped() {
		t.Fatal("Shutdown did not set the stop flag")
	}
	Shutdown() // idempotent
	if !Stopped() {
		t.Fatal("second Shutdown cleared the flag")
	}
	Reset()
	if Stopped() {
		t.Fatal("Reset did not clear the stop flag")
	}
}

func TestMarkOffsetCounts(t *testing.T) {
	Reset()
	for i := 0; i < 5; i++ {
		MarkOffset()
	}
	if got := Offsets(); got != 5 {
		t.Fatalf("Offsets() = %d, want 5", got)
	}
}

// TestShutdownFromSignalGoroutine mimics the signal handler racing the driver.
func TestShutdownFromSignalGoroutine(t *testing.T) {
	Reset()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		Shutdown()
	}()
	wg.Wait()
	if !Stopped() {
		t.Fatal("stop flag not visible after goroutine exit")
	}
	Reset()
}
