package resource

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBudget(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	if !c.TryAcquireMemory(60) {
		t.Fatal("first acquire should succeed")
	}
	if c.TryAcquireMemory(50) {
		t.Fatal("over-budget acquire should fail")
	}
	if got := c.MemoryUsage(); got != 60 {
		t.Errorf("usage = %d, want 60", got)
	}

	c.ReleaseMemory(60)
	if !c.TryAcquireMemory(100) {
		t.Fatal("full budget should be available after release")
	}
	c.ReleaseMemory(100)
}

func TestNilControllerIsUnlimited(t *testing.T) {
	var c *Controller
	if !c.TryAcquireMemory(1 << 40) {
		t.Fatal("nil controller must not limit")
	}
	c.ReleaseMemory(1 << 40)
	if err := c.AcquireIO(context.Background(), 1<<20); err != nil {
		t.Fatalf("nil controller AcquireIO: %v", err)
	}
}

func TestAcquireMemoryBlocksUntilRelease(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 10})
	if err := c.AcquireMemory(context.Background(), 10); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.AcquireMemory(context.Background(), 5)
	}()

	select {
	case <-done:
		t.Fatal("acquire should block while budget exhausted")
	case <-time.After(20 * time.Millisecond):
	}

	c.ReleaseMemory(10)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked acquire failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("acquire did not wake after release")
	}
}

func TestWriteSlots(t *testing.T) {
	c := NewController(Config{MaxConcurrentWrites: 1})
	ctx := context.Background()

	if err := c.AcquireWriteSlot(ctx); err != nil {
		t.Fatal(err)
	}

	ctx2, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := c.AcquireWriteSlot(ctx2); err == nil {
		t.Fatal("second slot should block until released")
	}

	c.ReleaseWriteSlot()
	if err := c.AcquireWriteSlot(ctx); err != nil {
		t.Fatalf("slot should be free again: %v", err)
	}
	c.ReleaseWriteSlot()
}
