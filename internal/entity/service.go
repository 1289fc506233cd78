// Package entity creates durable reference and note records. Writes are
// wrapped by the mutation tracker so the interface layer can surface
// in-flight and failed creates.
package entity

import (
	"context"

	"github.com/google/uuid"
	"github.com/mlourenco/refbox/internal/fault"
	"github.com/mlourenco/refbox/internal/store"
	"github.com/mlourenco/refbox/internal/tracker"
	"go.uber.org/zap"
)

// NewReference carries the fields for a reference creation.
type NewReference struct {
	Title          string
	Journal        string
	Year           int
	DOI            string
	PMID           string
	Abstract       string
	ExternalSource string
	ExternalID     string
	URL            string
}

// Service persists entities into the store.
type Service struct {
	db      *store.DB
	tracker *tracker.Tracker
	logger  *zap.Logger
}

// NewService creates an entity service.
func NewService(db *store.DB, tr *tracker.Tracker, logger *zap.Logger) *Service {
	return &Service{db: db, tracker: tr, logger: logger}
}

// CreateReference persists a new bibliographic reference and returns it
// with its generated id.
func (s *Service) CreateReference(ctx context.Context, nr NewReference) (*store.Reference, error) {
	r := &store.Reference{
		ID:             uuid.NewString(),
		Title:          nr.Title,
		Journal:        nr.Journal,
		Year:           nr.Year,
		DOI:            nr.DOI,
		PMID:           nr.PMID,
		Abstract:       nr.Abstract,
		ExternalSource: nr.ExternalSource,
		ExternalID:     nr.ExternalID,
		URL:            nr.URL,
	}
	meta := tracker.Meta{Kind: tracker.Create, Entity: "article", Description: "create reference: " + truncate(nr.Title, 60)}
	err := s.tracker.Run(ctx, meta, func(context.Context) error {
		return s.db.InsertReference(r)
	})
	if err != nil {
		return nil, fault.Wrap(fault.PersistenceFailure, err, "create reference")
	}
	s.logger.Info("reference created", zap.String("id", r.ID), zap.String("title", r.Title))
	return r, nil
}

// CreateNote persists a note attached to an entity and returns it with its
// generated id.
func (s *Service) CreateNote(ctx context.Context, entityType, entityID, content string) (*store.Note, error) {
	n := &store.Note{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Content:    content,
	}
	meta := tracker.Meta{Kind: tracker.Create, Entity: "note", Description: "create note for " + entityType + " " + entityID}
	err := s.tracker.Run(ctx, meta, func(context.Context) error {
		return s.db.InsertNote(n)
	})
	if err != nil {
		return nil, fault.Wrap(fault.PersistenceFailure, err, "create note")
	}
	s.logger.Info("note created", zap.String("id", n.ID), zap.String("entity_id", entityID))
	return n, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
