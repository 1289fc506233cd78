package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mlourenco/refbox/internal/bus"
	"github.com/mlourenco/refbox/internal/fault"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		name    string
		online  bool
		pending int
		failed  int
		want    Status
	}{
		{"offline wins", false, 3, 2, Offline},
		{"offline with empty ledger", false, 0, 0, Offline},
		{"syncing while pending", true, 1, 0, Syncing},
		{"syncing outranks error", true, 1, 2, Syncing},
		{"error when only failed", true, 0, 1, Error},
		{"idle", true, 0, 0, Idle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Derive(tt.online, tt.pending, tt.failed); got != tt.want {
				t.Errorf("Derive(%v, %d, %d) = %s, want %s", tt.online, tt.pending, tt.failed, got, tt.want)
			}
		})
	}
}

func TestInitialStatusIsIdle(t *testing.T) {
	tr := New(nil)
	if tr.Status() != Idle {
		t.Errorf("status = %s, want idle", tr.Status())
	}
}

func TestAddPendingThenMarkFailed(t *testing.T) {
	tr := New(nil)

	id := tr.AddPending(Create, "article", "create reference")
	if tr.Status() != Syncing {
		t.Errorf("status = %s, want syncing", tr.Status())
	}

	if err := tr.MarkFailed(id, errors.New("timeout")); err != nil {
		t.Fatal(err)
	}

	if got := len(tr.Pending()); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
	failed := tr.Failed()
	if len(failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(failed))
	}
	if failed[0].RetryCount != 1 {
		t.Errorf("retryCount = %d, want 1", failed[0].RetryCount)
	}
	if failed[0].Err != "timeout" {
		t.Errorf("err = %q, want timeout", failed[0].Err)
	}
	if tr.Status() != Error {
		t.Errorf("status = %s, want error", tr.Status())
	}
}

func TestFailedWithOtherPendingIsSyncing(t *testing.T) {
	tr := New(nil)

	id1 := tr.AddPending(Create, "article", "first")
	tr.AddPending(Create, "note", "second")

	if err := tr.MarkFailed(id1, errors.New("boom")); err != nil {
		t.Fatal(err)
	}
	// One failed, one still pending: syncing, not error.
	if tr.Status() != Syncing {
		t.Errorf("status = %s, want syncing", tr.Status())
	}
}

func TestMarkSuccessUpdatesLastSyncAt(t *testing.T) {
	tr := New(nil)
	if !tr.LastSyncAt().IsZero() {
		t.Error("lastSyncAt should start zero")
	}

	id := tr.AddPending(Update, "article", "update reference")
	if err := tr.MarkSuccess(id); err != nil {
		t.Fatal(err)
	}
	if tr.LastSyncAt().IsZero() {
		t.Error("lastSyncAt not set after success")
	}
	if tr.Status() != Idle {
		t.Errorf("status = %s, want idle", tr.Status())
	}
}

func TestRetryMovesBackToPending(t *testing.T) {
	tr := New(nil)

	id := tr.AddPending(Create, "article", "create")
	_ = tr.MarkFailed(id, errors.New("network error"))

	if err := tr.Retry(id); err != nil {
		t.Fatal(err)
	}

	pending := tr.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].Err != "" {
		t.Errorf("err = %q, want cleared", pending[0].Err)
	}
	if pending[0].RetryCount != 1 {
		t.Errorf("retryCount = %d, want 1 (preserved)", pending[0].RetryCount)
	}
	if tr.Status() != Syncing {
		t.Errorf("status = %s, want syncing", tr.Status())
	}

	// A second failure increments the count again.
	_ = tr.MarkFailed(id, errors.New("still down"))
	if got := tr.Failed()[0].RetryCount; got != 2 {
		t.Errorf("retryCount = %d, want 2", got)
	}
}

func TestRetryUnknownID(t *testing.T) {
	tr := New(nil)
	err := tr.Retry(42)
	if !fault.Is(err, fault.NotFound) {
		t.Errorf("error = %v, want not_found", err)
	}
}

func TestClearFailed(t *testing.T) {
	tr := New(nil)

	id := tr.AddPending(Delete, "note", "delete note")
	_ = tr.MarkFailed(id, errors.New("boom"))

	if err := tr.ClearFailed(id); err != nil {
		t.Fatal(err)
	}
	if len(tr.Failed()) != 0 {
		t.Error("failed not cleared")
	}
	if tr.Status() != Idle {
		t.Errorf("status = %s, want idle", tr.Status())
	}
}

func TestClearAllFailed(t *testing.T) {
	tr := New(nil)

	for i := 0; i < 3; i++ {
		id := tr.AddPending(Create, "article", "create")
		_ = tr.MarkFailed(id, errors.New("boom"))
	}
	tr.ClearAllFailed()
	if len(tr.Failed()) != 0 {
		t.Error("failed not cleared")
	}
	if tr.Status() != Idle {
		t.Errorf("status = %s, want idle", tr.Status())
	}
}

func TestSetOnline(t *testing.T) {
	tr := New(nil)

	tr.SetOnline(false)
	if tr.Status() != Offline {
		t.Errorf("status = %s, want offline", tr.Status())
	}

	// Offline masks pending work.
	tr.AddPending(Create, "article", "create")
	if tr.Status() != Offline {
		t.Errorf("status = %s, want offline while pending", tr.Status())
	}

	tr.SetOnline(true)
	if tr.Status() != Syncing {
		t.Errorf("status = %s, want syncing after reconnect", tr.Status())
	}
}

func TestRunSuccess(t *testing.T) {
	tr := New(nil)

	ran := false
	err := tr.Run(context.Background(), Meta{Kind: Create, Entity: "article", Description: "create"}, func(context.Context) error {
		ran = true
		if tr.Status() != Syncing {
			t.Errorf("status during op = %s, want syncing", tr.Status())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("operation not executed")
	}
	if tr.Status() != Idle {
		t.Errorf("status = %s, want idle", tr.Status())
	}
}

func TestRunFailureReRaises(t *testing.T) {
	tr := New(nil)

	opErr := errors.New("remote refused")
	err := tr.Run(context.Background(), Meta{Kind: Create, Entity: "article", Description: "create"}, func(context.Context) error {
		return opErr
	})
	if !errors.Is(err, opErr) {
		t.Errorf("error = %v, want original re-raised", err)
	}
	failed := tr.Failed()
	if len(failed) != 1 || failed[0].Err != "remote refused" {
		t.Errorf("failed = %v, want one entry recording the error", failed)
	}
}

func TestIDsAreMonotonic(t *testing.T) {
	tr := New(nil)
	var last int64
	for i := 0; i < 10; i++ {
		id := tr.AddPending(Create, "article", "create")
		if id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		last = id
	}
}

func TestStatusChangeEvents(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindSyncStatusChanged, 10)
	defer unsub()

	tr := New(b)
	id := tr.AddPending(Create, "article", "create")

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
		}
		if change.From != Idle || change.To != Syncing {
			t.Errorf("change = %s -> %s, want idle -> syncing", change.From, change.To)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status change event")
	}

	// MarkSuccess on the only pending entry flips back to idle.
	_ = tr.MarkSuccess(id)
	select {
	case evt := <-ch:
		change := evt.Payload.(StatusChange)
		if change.To != Idle {
			t.Errorf("change to %s, want idle", change.To)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for second status change event")
	}
}

func TestMutationEvents(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("mutation.", 10)
	defer unsub()

	tr := New(b)
	id := tr.AddPending(Create, "article", "create reference")
	_ = tr.MarkFailed(id, errors.New("boom"))

	kinds := []string{bus.KindMutationPending, bus.KindMutationFailed}
	for _, want := range kinds {
		select {
		case evt := <-ch:
			if evt.Kind != want {
				t.Errorf("event kind = %q, want %q", evt.Kind, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s event", want)
		}
	}
}
