// Package inbox owns the capture item state machine: which status
// transitions are legal and when an item may be converted. Persistence is
// delegated to a Repository.
package inbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/mlourenco/refbox/internal/bus"
	"github.com/mlourenco/refbox/internal/classify"
	"github.com/mlourenco/refbox/internal/fault"
	"github.com/mlourenco/refbox/internal/store"
	"go.uber.org/zap"
)

// Repository persists inbox items. *store.DB implements it.
type Repository interface {
	CreateItem(it *store.InboxItem) error
	GetItem(id string) (*store.InboxItem, error)
	ListByStatus(status string, limit, offset int) ([]store.InboxItem, error)
	SetStatus(id, status string) (bool, error)
	SetConverted(id, entityType, entityID string) (bool, error)
	DeleteItem(id string) (bool, error)
	PurgeArchived(olderThan time.Time) (int64, error)
	CountByStatus() (map[string]int, error)
}

// CaptureOpts carries the optional user-supplied fields of a capture.
type CaptureOpts struct {
	Title string
	Note  string
	Tags  []string
}

// Service applies the inbox legality rules on top of a Repository.
type Service struct {
	repo   Repository
	bus    *bus.Bus
	logger *zap.Logger
}

// NewService creates an inbox service.
func NewService(repo Repository, b *bus.Bus, logger *zap.Logger) *Service {
	return &Service{repo: repo, bus: b, logger: logger}
}

// Capture classifies raw text and persists a new item with status inbox.
// The detected type and normalized form are fixed here, once, for the
// lifetime of the item.
func (s *Service) Capture(raw string, opts CaptureOpts) (*store.InboxItem, error) {
	c := classify.Classify(raw)
	it := &store.InboxItem{
		ID:           uuid.NewString(),
		Raw:          raw,
		Normalized:   c.Normalized,
		DetectedType: string(c.DetectedType),
		Title:        opts.Title,
		Note:         opts.Note,
		Tags:         opts.Tags,
		Status:       store.StatusInbox,
	}
	if err := s.repo.CreateItem(it); err != nil {
		return nil, fault.Wrap(fault.PersistenceFailure, err, "create inbox item")
	}

	s.logger.Info("item captured",
		zap.String("id", it.ID),
		zap.String("detected_type", it.DetectedType))
	s.publish(bus.KindInboxCreated, it.ID)
	return it, nil
}

// Get returns an item or a not_found fault.
func (s *Service) Get(id string) (*store.InboxItem, error) {
	it, err := s.repo.GetItem(id)
	if err != nil {
		return nil, fault.Wrap(fault.PersistenceFailure, err, "get inbox item")
	}
	if it == nil {
		return nil, fault.New(fault.NotFound, "inbox item %s not found", id)
	}
	return it, nil
}

// ListByStatus returns items with the given status, newest first.
func (s *Service) ListByStatus(status string, limit, offset int) ([]store.InboxItem, error) {
	items, err := s.repo.ListByStatus(status, limit, offset)
	if err != nil {
		return nil, fault.Wrap(fault.PersistenceFailure, err, "list inbox items")
	}
	return items, nil
}

// Archive moves an item from inbox to archived.
func (s *Service) Archive(id string) error {
	if err := s.transition(id, store.StatusInbox, store.StatusArchived); err != nil {
		return err
	}
	s.publish(bus.KindInboxArchived, id)
	return nil
}

// Restore moves an item from archived back to inbox.
func (s *Service) Restore(id string) error {
	if err := s.transition(id, store.StatusArchived, store.StatusInbox); err != nil {
		return err
	}
	s.publish(bus.KindInboxRestored, id)
	return nil
}

// MarkConverted records the created entity and moves the item to its
// terminal converted status. Legal only from inbox; called by the
// conversion engine after a successful entity creation.
func (s *Service) MarkConverted(id, entityType, entityID string) error {
	it, err := s.Get(id)
	if err != nil {
		return err
	}
	if it.Status != store.StatusInbox {
		return fault.New(fault.InvalidState, "cannot convert item %s in status %s", id, it.Status)
	}
	ok, err := s.repo.SetConverted(id, entityType, entityID)
	if err != nil {
		return fault.Wrap(fault.PersistenceFailure, err, "mark converted")
	}
	if !ok {
		return fault.New(fault.NotFound, "inbox item %s not found", id)
	}
	s.logger.Info("item converted",
		zap.String("id", id),
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID))
	return nil
}

// Delete permanently removes an item. Legal from any status.
func (s *Service) Delete(id string) error {
	ok, err := s.repo.DeleteItem(id)
	if err != nil {
		return fault.Wrap(fault.PersistenceFailure, err, "delete inbox item")
	}
	if !ok {
		return fault.New(fault.NotFound, "inbox item %s not found", id)
	}
	s.publish(bus.KindInboxDeleted, id)
	return nil
}

// PurgeArchived bulk-deletes archived items not touched since the cutoff.
func (s *Service) PurgeArchived(olderThan time.Time) (int64, error) {
	n, err := s.repo.PurgeArchived(olderThan)
	if err != nil {
		return 0, fault.Wrap(fault.PersistenceFailure, err, "purge archived items")
	}
	if n > 0 {
		s.logger.Info("archived items purged", zap.Int64("count", n))
		s.publish(bus.KindInboxPurged, "")
	}
	return n, nil
}

// CountByStatus returns the live per-status counts from the repository.
func (s *Service) CountByStatus() (map[string]int, error) {
	counts, err := s.repo.CountByStatus()
	if err != nil {
		return nil, fault.Wrap(fault.PersistenceFailure, err, "count inbox items")
	}
	return counts, nil
}

func (s *Service) transition(id, from, to string) error {
	it, err := s.Get(id)
	if err != nil {
		return err
	}
	if it.Status != from {
		return fault.New(fault.InvalidState, "item %s is %s, not %s", id, it.Status, from)
	}
	ok, err := s.repo.SetStatus(id, to)
	if err != nil {
		return fault.Wrap(fault.PersistenceFailure, err, "set status")
	}
	if !ok {
		return fault.New(fault.NotFound, "inbox item %s not found", id)
	}
	return nil
}

func (s *Service) publish(kind, itemID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   map[string]string{"item_id": itemID},
	})
}
