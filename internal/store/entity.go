package store

import (
	"database/sql"
	"time"
)

// InsertReference persists a new bibliographic reference.
func (db *DB) InsertReference(r *Reference) error {
	r.CreatedAt = time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO refs (id, title, journal, year, doi, pmid, abstract, external_source, external_id, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, r.Journal, r.Year, r.DOI, r.PMID, r.Abstract, r.ExternalSource, r.ExternalID, r.URL, r.CreatedAt)
	return err
}

// GetReference returns a reference by id, or nil if absent.
func (db *DB) GetReference(id string) (*Reference, error) {
	var r Reference
	err := db.QueryRow(`
		SELECT id, title, journal, year, doi, pmid, abstract, external_source, external_id, url, created_at
		FROM refs WHERE id = ?`, id).
		Scan(&r.ID, &r.Title, &r.Journal, &r.Year, &r.DOI, &r.PMID, &r.Abstract,
			&r.ExternalSource, &r.ExternalID, &r.URL, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListReferences returns references, newest first.
func (db *DB) ListReferences(limit, offset int) ([]Reference, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, title, journal, year, doi, pmid, abstract, external_source, external_id, url, created_at
		FROM refs
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var refs []Reference
	for rows.Next() {
		var r Reference
		if err := rows.Scan(&r.ID, &r.Title, &r.Journal, &r.Year, &r.DOI, &r.PMID, &r.Abstract,
			&r.ExternalSource, &r.ExternalID, &r.URL, &r.CreatedAt); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// InsertNote persists a new note attached to an entity.
func (db *DB) InsertNote(n *Note) error {
	n.CreatedAt = time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO notes (id, entity_type, entity_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.EntityType, n.EntityID, n.Content, n.CreatedAt)
	return err
}

// ListNotesForEntity returns notes attached to an entity, oldest first.
func (db *DB) ListNotesForEntity(entityType, entityID string) ([]Note, error) {
	rows, err := db.Query(`
		SELECT id, entity_type, entity_id, content, created_at
		FROM notes
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at ASC`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var notes []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.EntityType, &n.EntityID, &n.Content, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
