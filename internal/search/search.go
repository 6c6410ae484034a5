// Package search provides artifact full-text search backed by
// Meilisearch with a PostgreSQL FTS fallback.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text           string
	FilterThreadID string // empty = all threads
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// ArtifactRecord is the data we index per artifact: metadata plus the
// plain text of its current version.
type ArtifactRecord struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	UserID   string `json:"userId"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}
