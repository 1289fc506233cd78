package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// CreateItem inserts a new inbox item. The caller supplies the id and the
// classification fields; timestamps are set here.
func (db *DB) CreateItem(it *InboxItem) error {
	now := time.Now().UnixMilli()
	it.CreatedAt = now
	it.UpdatedAt = now
	tags, err := json.Marshal(tagsOrEmpty(it.Tags))
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT INTO inbox_items (id, raw, normalized, detected_type, title, note, tags, status, converted_entity_type, converted_entity_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`,
		it.ID, it.Raw, it.Normalized, it.DetectedType, it.Title, it.Note, string(tags), it.Status, it.CreatedAt, it.UpdatedAt)
	return err
}

// GetItem returns a single inbox item by id, or nil if absent.
func (db *DB) GetItem(id string) (*InboxItem, error) {
	var it InboxItem
	var tags string
	err := db.QueryRow(`
		SELECT id, raw, normalized, detected_type, title, note, tags, status, converted_entity_type, converted_entity_id, created_at, updated_at
		FROM inbox_items WHERE id = ?`, id).
		Scan(&it.ID, &it.Raw, &it.Normalized, &it.DetectedType, &it.Title, &it.Note, &tags,
			&it.Status, &it.ConvertedEntityType, &it.ConvertedEntityID, &it.CreatedAt, &it.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &it.Tags); err != nil {
		return nil, err
	}
	return &it, nil
}

// ListByStatus returns inbox items with the given status, newest first.
func (db *DB) ListByStatus(status string, limit, offset int) ([]InboxItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, raw, normalized, detected_type, title, note, tags, status, converted_entity_type, converted_entity_id, created_at, updated_at
		FROM inbox_items
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []InboxItem
	for rows.Next() {
		var it InboxItem
		var tags string
		if err := rows.Scan(&it.ID, &it.Raw, &it.Normalized, &it.DetectedType, &it.Title, &it.Note, &tags,
			&it.Status, &it.ConvertedEntityType, &it.ConvertedEntityID, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tags), &it.Tags); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SetStatus updates an item's status. Returns false if no row matched.
func (db *DB) SetStatus(id, status string) (bool, error) {
	res, err := db.Exec(`UPDATE inbox_items SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UnixMilli(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetConverted marks an item converted and records the created entity.
func (db *DB) SetConverted(id, entityType, entityID string) (bool, error) {
	res, err := db.Exec(`
		UPDATE inbox_items
		SET status = ?, converted_entity_type = ?, converted_entity_id = ?, updated_at = ?
		WHERE id = ?`,
		StatusConverted, entityType, entityID, time.Now().UnixMilli(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteItem permanently removes an item. Returns false if no row matched.
func (db *DB) DeleteItem(id string) (bool, error) {
	res, err := db.Exec(`DELETE FROM inbox_items WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// PurgeArchived deletes archived items whose updated_at precedes the cutoff.
// Returns the number of deleted rows.
func (db *DB) PurgeArchived(olderThan time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM inbox_items WHERE status = ? AND updated_at < ?`,
		StatusArchived, olderThan.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountByStatus returns the current item count per status. Every status is
// present in the result, zero when empty.
func (db *DB) CountByStatus() (map[string]int, error) {
	counts := map[string]int{
		StatusInbox:     0,
		StatusArchived:  0,
		StatusConverted: 0,
	}
	rows, err := db.Query(`SELECT status, COUNT(*) FROM inbox_items GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
