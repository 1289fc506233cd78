package inbox

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mlourenco/refbox/internal/bus"
	"github.com/mlourenco/refbox/internal/fault"
	"github.com/mlourenco/refbox/internal/store"
	"go.uber.org/zap"
)

func testService(t *testing.T) (*Service, *store.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewService(db, bus.New(), zap.NewNop()), db
}

func TestCaptureClassifies(t *testing.T) {
	svc, _ := testService(t)

	tests := []struct {
		raw      string
		wantType string
		wantNorm string
	}{
		{"12345678", "pmid", "12345678"},
		{"10.1038/nrg3626", "doi", "10.1038/nrg3626"},
		{"https://example.org/x", "url", "https://example.org/x"},
		{"remember to check dnaA", "text", "remember to check dnaA"},
	}
	for _, tt := range tests {
		it, err := svc.Capture(tt.raw, CaptureOpts{})
		if err != nil {
			t.Fatalf("Capture(%q) error = %v", tt.raw, err)
		}
		if it.DetectedType != tt.wantType {
			t.Errorf("Capture(%q) type = %s, want %s", tt.raw, it.DetectedType, tt.wantType)
		}
		if it.Normalized != tt.wantNorm {
			t.Errorf("Capture(%q) normalized = %q, want %q", tt.raw, it.Normalized, tt.wantNorm)
		}
		if it.Status != store.StatusInbox {
			t.Errorf("Capture(%q) status = %s, want inbox", tt.raw, it.Status)
		}
		if it.ID == "" {
			t.Error("Capture assigned no id")
		}
	}
}

func TestCapturePersistsOpts(t *testing.T) {
	svc, _ := testService(t)

	it, err := svc.Capture("10.1000/x", CaptureOpts{Title: "My paper", Note: "todo", Tags: []string{"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.Get(it.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "My paper" || got.Note != "todo" || len(got.Tags) != 2 {
		t.Errorf("got %+v, want opts preserved", got)
	}
}

func TestGetMissing(t *testing.T) {
	svc, _ := testService(t)

	_, err := svc.Get("nope")
	if !fault.Is(err, fault.NotFound) {
		t.Errorf("error = %v, want not_found", err)
	}
}

func TestArchiveRestoreCycle(t *testing.T) {
	svc, _ := testService(t)

	it, err := svc.Capture("31452", CaptureOpts{})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Archive(it.ID); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	got, _ := svc.Get(it.ID)
	if got.Status != store.StatusArchived {
		t.Errorf("status = %s, want archived", got.Status)
	}

	// Archiving again is illegal.
	if err := svc.Archive(it.ID); !fault.Is(err, fault.InvalidState) {
		t.Errorf("second Archive error = %v, want invalid_state", err)
	}

	if err := svc.Restore(it.ID); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, _ = svc.Get(it.ID)
	if got.Status != store.StatusInbox {
		t.Errorf("status = %s, want inbox", got.Status)
	}

	// Restoring an inbox item is illegal.
	if err := svc.Restore(it.ID); !fault.Is(err, fault.InvalidState) {
		t.Errorf("Restore from inbox error = %v, want invalid_state", err)
	}
}

func TestMarkConverted(t *testing.T) {
	svc, _ := testService(t)

	it, err := svc.Capture("31452", CaptureOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkConverted(it.ID, "article", "ref-1"); err != nil {
		t.Fatal(err)
	}

	got, _ := svc.Get(it.ID)
	if got.Status != store.StatusConverted {
		t.Errorf("status = %s, want converted", got.Status)
	}
	if got.ConvertedEntityType != "article" || got.ConvertedEntityID != "ref-1" {
		t.Errorf("entity = %s/%s, want article/ref-1", got.ConvertedEntityType, got.ConvertedEntityID)
	}

	// Converted is terminal: no conversion, archive or restore leaves it.
	if err := svc.MarkConverted(it.ID, "article", "ref-2"); !fault.Is(err, fault.InvalidState) {
		t.Errorf("second MarkConverted error = %v, want invalid_state", err)
	}
	if err := svc.Archive(it.ID); !fault.Is(err, fault.InvalidState) {
		t.Errorf("Archive converted error = %v, want invalid_state", err)
	}
}

func TestMarkConvertedFromArchivedIsIllegal(t *testing.T) {
	svc, _ := testService(t)

	it, _ := svc.Capture("31452", CaptureOpts{})
	if err := svc.Archive(it.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkConverted(it.ID, "article", "ref-1"); !fault.Is(err, fault.InvalidState) {
		t.Errorf("error = %v, want invalid_state", err)
	}
}

func TestDeleteFromAnyStatus(t *testing.T) {
	svc, _ := testService(t)

	inboxItem, _ := svc.Capture("one", CaptureOpts{})
	archivedItem, _ := svc.Capture("two", CaptureOpts{})
	convertedItem, _ := svc.Capture("333", CaptureOpts{})
	_ = svc.Archive(archivedItem.ID)
	_ = svc.MarkConverted(convertedItem.ID, "article", "r1")

	for _, id := range []string{inboxItem.ID, archivedItem.ID, convertedItem.ID} {
		if err := svc.Delete(id); err != nil {
			t.Errorf("Delete(%s): %v", id, err)
		}
	}

	if err := svc.Delete(inboxItem.ID); !fault.Is(err, fault.NotFound) {
		t.Errorf("Delete missing error = %v, want not_found", err)
	}
}

func TestPurgeArchived(t *testing.T) {
	svc, db := testService(t)

	it, _ := svc.Capture("old", CaptureOpts{})
	_ = svc.Archive(it.ID)
	past := time.Now().Add(-72 * time.Hour).UnixMilli()
	if _, err := db.Exec(`UPDATE inbox_items SET updated_at = ? WHERE id = ?`, past, it.ID); err != nil {
		t.Fatal(err)
	}

	n, err := svc.PurgeArchived(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
}

func TestCountByStatusIsLive(t *testing.T) {
	svc, _ := testService(t)

	a, _ := svc.Capture("a", CaptureOpts{})
	_, _ = svc.Capture("b", CaptureOpts{})

	counts, err := svc.CountByStatus()
	if err != nil {
		t.Fatal(err)
	}
	if counts[store.StatusInbox] != 2 {
		t.Errorf("inbox count = %d, want 2", counts[store.StatusInbox])
	}

	_ = svc.Archive(a.ID)
	counts, _ = svc.CountByStatus()
	if counts[store.StatusInbox] != 1 || counts[store.StatusArchived] != 1 {
		t.Errorf("counts = %v, want inbox=1 archived=1", counts)
	}
}

func TestCaptureEmitsEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	ch, unsub := b.Subscribe("inbox.", 10)
	defer unsub()

	svc := NewService(db, b, zap.NewNop())
	it, err := svc.Capture("12345", CaptureOpts{})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindInboxCreated {
			t.Errorf("event kind = %q, want inbox.created", evt.Kind)
		}
		payload := evt.Payload.(map[string]string)
		if payload["item_id"] != it.ID {
			t.Errorf("payload item_id = %q, want %q", payload["item_id"], it.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for inbox.created event")
	}
}
