package store

// Inbox item statuses.
const (
	StatusInbox     = "inbox"
	StatusArchived  = "archived"
	StatusConverted = "converted"
)

// InboxItem represents a captured piece of raw text awaiting conversion.
// DetectedType and Normalized are fixed at creation and never change.
type InboxItem struct {
	ID                  string
	Raw                 string
	Normalized          string
	DetectedType        string
	Title               string
	Note                string
	Tags                []string
	Status              string
	ConvertedEntityType string
	ConvertedEntityID   string
	CreatedAt           int64
	UpdatedAt           int64
}

// Reference represents a bibliographic record created from a conversion.
type Reference struct {
	ID             string
	Title          string
	Journal        string
	Year           int
	DOI            string
	PMID           string
	Abstract       string
	ExternalSource string
	ExternalID     string
	URL            string
	CreatedAt      int64
}

// Note represents a free-text note attached to an entity.
type Note struct {
	ID         string
	EntityType string
	EntityID   string
	Content    string
	CreatedAt  int64
}

// SearchResult holds an inbox item with a search snippet.
type SearchResult struct {
	Item    InboxItem
	Snippet string
}
