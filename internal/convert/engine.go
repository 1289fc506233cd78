// Package convert turns inbox items into durable reference or note
// entities. Each detected type has its own strategy with its own failure
// policy; no strategy ever lets an error escape past the engine boundary.
package convert

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/mlourenco/refbox/internal/bus"
	"github.com/mlourenco/refbox/internal/classify"
	"github.com/mlourenco/refbox/internal/entity"
	"github.com/mlourenco/refbox/internal/metadata"
	"github.com/mlourenco/refbox/internal/store"
	"go.uber.org/zap"
)

// Entity types recorded on a converted item.
const (
	EntityArticle = "article"
	EntityNote    = "note"
)

// External source labels recorded on created references.
const (
	SourcePubMed   = "pubmed"
	SourceCrossref = "crossref"
	SourceURL      = "url"
)

// PMIDSource fetches canonical metadata for a PubMed id.
type PMIDSource interface {
	FetchPMID(ctx context.Context, pmid string) (*metadata.Reference, error)
}

// DOISource fetches metadata for a DOI. A (nil, nil) return means the DOI
// is unknown to the source; the engine treats it like a fetch error.
type DOISource interface {
	FetchDOI(ctx context.Context, doi string) (*metadata.Reference, error)
}

// EntityCreator creates the durable entities a conversion produces.
type EntityCreator interface {
	CreateReference(ctx context.Context, nr entity.NewReference) (*store.Reference, error)
	CreateNote(ctx context.Context, entityType, entityID, content string) (*store.Note, error)
}

// Inbox is the slice of the inbox service the engine needs.
type Inbox interface {
	Get(id string) (*store.InboxItem, error)
	MarkConverted(id, entityType, entityID string) error
}

// Result is the structured outcome of one conversion attempt. Exactly one
// is produced per attempt; EntityID is empty on failure.
type Result struct {
	Success    bool
	EntityType string
	EntityID   string
	Title      string
	Err        string
}

// Target names an existing entity a text item should attach its note to.
type Target struct {
	EntityType string
	EntityID   string
}

// Engine executes type-specific conversion strategies.
type Engine struct {
	inbox    Inbox
	pmid     PMIDSource
	doi      DOISource
	entities EntityCreator
	bus      *bus.Bus
	logger   *zap.Logger
}

// NewEngine creates a conversion engine.
func NewEngine(inbox Inbox, pmid PMIDSource, doi DOISource, entities EntityCreator, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{inbox: inbox, pmid: pmid, doi: doi, entities: entities, bus: b, logger: logger}
}

// AutoConvert dispatches to the strategy for the item's detected type.
// Text items cannot be auto-converted: they need an explicit target entity,
// which the engine has no way to infer.
func (e *Engine) AutoConvert(ctx context.Context, id string) Result {
	it, res := e.loadConvertible(id)
	if it == nil {
		return res
	}

	switch classify.Type(it.DetectedType) {
	case classify.PMID:
		return e.convertPMID(ctx, it)
	case classify.DOI:
		return e.convertDOI(ctx, it)
	case classify.URL:
		return e.convertURL(ctx, it)
	case classify.Text:
		return e.fail(it.ID, "text item requires an explicit target entity; use ConvertText")
	default:
		return e.fail(it.ID, fmt.Sprintf("unknown detected type %q", it.DetectedType))
	}
}

// ConvertText attaches an item's content as a note to an existing entity.
// When useNoteField is set the user note becomes the content instead of the
// raw capture text.
func (e *Engine) ConvertText(ctx context.Context, id string, target Target, useNoteField bool) Result {
	it, res := e.loadConvertible(id)
	if it == nil {
		return res
	}
	if target.EntityType == "" || target.EntityID == "" {
		return e.fail(it.ID, "text conversion requires a target entity type and id")
	}

	content := it.Raw
	if useNoteField {
		content = it.Note
	}

	note, err := e.entities.CreateNote(ctx, target.EntityType, target.EntityID, content)
	if err != nil {
		return e.fail(it.ID, fmt.Sprintf("create note: %v", err))
	}
	return e.finish(it.ID, EntityNote, note.ID, "")
}

// convertPMID fetches canonical metadata and creates a full reference.
// A fetch failure is hard: nothing is created and the item stays inbox.
func (e *Engine) convertPMID(ctx context.Context, it *store.InboxItem) Result {
	ref, err := e.pmid.FetchPMID(ctx, it.Normalized)
	if err != nil {
		return e.fail(it.ID, fmt.Sprintf("pubmed fetch for %s: %v", it.Normalized, err))
	}

	created, err := e.entities.CreateReference(ctx, entity.NewReference{
		Title:          ref.Title,
		Journal:        ref.Journal,
		Year:           ref.Year,
		DOI:            ref.DOI,
		PMID:           it.Normalized,
		Abstract:       ref.Abstract,
		ExternalSource: SourcePubMed,
		ExternalID:     it.Normalized,
	})
	if err != nil {
		return e.fail(it.ID, fmt.Sprintf("create reference: %v", err))
	}
	return e.finish(it.ID, EntityArticle, created.ID, created.Title)
}

// convertDOI fetches metadata with a soft fallback: when the source errors
// or does not know the DOI, a minimal placeholder reference is created and
// the conversion still succeeds.
func (e *Engine) convertDOI(ctx context.Context, it *store.InboxItem) Result {
	nr := entity.NewReference{
		DOI:            it.Normalized,
		ExternalSource: SourceCrossref,
		ExternalID:     it.Normalized,
	}

	ref, err := e.doi.FetchDOI(ctx, it.Normalized)
	switch {
	case err != nil || ref == nil:
		if err != nil {
			e.logger.Warn("doi fetch failed, creating placeholder",
				zap.String("item_id", it.ID), zap.Error(err))
		}
		// Placeholder title derived from the DOI string.
		nr.Title = it.Normalized
	default:
		nr.Title = ref.Title
		nr.Journal = ref.Journal
		nr.Year = ref.Year
		nr.Abstract = ref.Abstract
		if nr.Title == "" {
			nr.Title = it.Normalized
		}
	}

	// User-supplied title wins over the fetched one.
	if it.Title != "" && ref != nil && err == nil {
		nr.Title = it.Title
	}

	created, err := e.entities.CreateReference(ctx, nr)
	if err != nil {
		return e.fail(it.ID, fmt.Sprintf("create reference: %v", err))
	}
	return e.finish(it.ID, EntityArticle, created.ID, created.Title)
}

// convertURL performs no fetch: the reference is built from the URL itself.
func (e *Engine) convertURL(ctx context.Context, it *store.InboxItem) Result {
	title := it.Title
	if title == "" {
		title = hostOf(it.Normalized)
	}

	created, err := e.entities.CreateReference(ctx, entity.NewReference{
		Title:          title,
		URL:            it.Normalized,
		ExternalSource: SourceURL,
		ExternalID:     it.Normalized,
	})
	if err != nil {
		return e.fail(it.ID, fmt.Sprintf("create reference: %v", err))
	}
	return e.finish(it.ID, EntityArticle, created.ID, created.Title)
}

// loadConvertible fetches the item and verifies it may be converted.
// Returns (nil, failure result) when it may not.
func (e *Engine) loadConvertible(id string) (*store.InboxItem, Result) {
	it, err := e.inbox.Get(id)
	if err != nil {
		return nil, e.fail(id, fmt.Sprintf("load item: %v", err))
	}
	if it.Status != store.StatusInbox {
		return nil, e.fail(id, fmt.Sprintf("item is %s, only inbox items can be converted", it.Status))
	}
	return it, Result{}
}

// finish records the conversion on the item and returns the success result.
// Steps run strictly fetch -> create entity -> mark converted; a failure at
// the final step still yields a failure result even though the entity exists.
func (e *Engine) finish(itemID, entityType, entityID, title string) Result {
	if err := e.inbox.MarkConverted(itemID, entityType, entityID); err != nil {
		return e.fail(itemID, fmt.Sprintf("mark converted: %v", err))
	}

	res := Result{Success: true, EntityType: entityType, EntityID: entityID, Title: title}
	e.logger.Info("item converted",
		zap.String("item_id", itemID),
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID))
	e.publish(bus.KindConvertSucceeded, itemID, res)
	return res
}

func (e *Engine) fail(itemID, msg string) Result {
	res := Result{Success: false, Err: msg}
	e.logger.Warn("conversion failed", zap.String("item_id", itemID), zap.String("reason", msg))
	e.publish(bus.KindConvertFailed, itemID, res)
	return res
}

func (e *Engine) publish(kind, itemID string, res Result) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   map[string]any{"item_id": itemID, "result": res},
	})
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
