// Package metadata fetches bibliographic records from external sources.
// Two sources are supported: NCBI PubMed (by PMID) and Crossref (by DOI).
package metadata

// Reference is the normalized shape returned by both sources. Title is the
// only field a source is guaranteed to fill.
type Reference struct {
	Title    string
	Journal  string
	Year     int
	DOI      string
	PMID     string
	Abstract string
}
