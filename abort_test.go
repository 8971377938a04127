package mica

import (
	"context"
	"errors"
	"testing"
)

func TestAbortRegistryAcquire(t *testing.T) {
	r := NewAbortRegistry()
	h, err := r.Acquire(context.Background(), "idea-1")
	if err != nil {
		t.Fatal(err)
	}
	if h.Aborted() {
		t.Error("fresh handle reports aborted")
	}

	if _, err := r.Acquire(context.Background(), "idea-1"); !errors.Is(err, ErrRunActive) {
		t.Errorf("second Acquire err = %v, want ErrRunActive", err)
	}
	// A different idea is unaffected.
	if _, err := r.Acquire(context.Background(), "idea-2"); err != nil {
		t.Errorf("Acquire for another idea err = %v", err)
	}
}

func TestAbortRegistryAbort(t *testing.T) {
	r := NewAbortRegistry()
	h, err := r.Acquire(context.Background(), "idea-1")
	if err != nil {
		t.Fatal(err)
	}

	if !r.Abort("idea-1") {
		t.Error("Abort = false, want true for a live exchange")
	}
	if !h.Aborted() {
		t.Error("handle not aborted after registry Abort")
	}
	select {
	case <-h.Context().Done():
	default:
		t.Error("handle context not cancelled")
	}

	// Idempotent, still live until released.
	if !r.Abort("idea-1") {
		t.Error("second Abort = false, want true while the slot is held")
	}
	if r.Abort("idea-9") {
		t.Error("Abort for an idle idea = true, want false")
	}
}

func TestAbortRegistryRelease(t *testing.T) {
	r := NewAbortRegistry()
	h, err := r.Acquire(context.Background(), "idea-1")
	if err != nil {
		t.Fatal(err)
	}
	r.Release(h)

	if r.Abort("idea-1") {
		t.Error("Abort after Release = true, want false")
	}
	if _, err := r.Acquire(context.Background(), "idea-1"); err != nil {
		t.Errorf("Acquire after Release err = %v", err)
	}
}

func TestAbortRegistryLateReleaseIsNoOp(t *testing.T) {
	r := NewAbortRegistry()
	old, err := r.Acquire(context.Background(), "idea-1")
	if err != nil {
		t.Fatal(err)
	}
	r.Release(old)

	cur, err := r.Acquire(context.Background(), "idea-1")
	if err != nil {
		t.Fatal(err)
	}
	// A stale handle from the previous exchange must not free the slot
	// the current one holds.
	r.Release(old)
	if _, err := r.Acquire(context.Background(), "idea-1"); !errors.Is(err, ErrRunActive) {
		t.Errorf("Acquire err = %v, want ErrRunActive while current handle holds the slot", err)
	}
	if cur.Aborted() {
		t.Error("late Release cancelled the current exchange")
	}
}

func TestAbortHandleParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewAbortRegistry()
	h, err := r.Acquire(ctx, "idea-1")
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	if !h.Aborted() {
		t.Error("handle not aborted after parent context cancellation")
	}
}
