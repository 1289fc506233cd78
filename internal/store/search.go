package store

import "encoding/json"

// SearchInbox performs a full-text search over inbox raw text, titles and notes.
func (db *DB) SearchInbox(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT i.id, i.raw, i.normalized, i.detected_type, i.title, i.note, i.tags,
		       i.status, i.converted_entity_type, i.converted_entity_id, i.created_at, i.updated_at,
		       snippet(inbox_fts, 0, '<<', '>>', '...', 32)
		FROM inbox_fts f
		JOIN inbox_items i ON i.rowid = f.rowid
		WHERE inbox_fts MATCH ?
		ORDER BY rank LIMIT ?`, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var tags string
		if err := rows.Scan(
			&r.Item.ID, &r.Item.Raw, &r.Item.Normalized, &r.Item.DetectedType,
			&r.Item.Title, &r.Item.Note, &tags, &r.Item.Status,
			&r.Item.ConvertedEntityType, &r.Item.ConvertedEntityID,
			&r.Item.CreatedAt, &r.Item.UpdatedAt, &r.Snippet,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tags), &r.Item.Tags); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
