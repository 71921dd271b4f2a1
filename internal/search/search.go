package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	Snippet   string `json:"snippet"`
	Published bool   `json:"published"`
}

// Query describes a search request.
type Query struct {
	Text          string
	PublishedOnly bool
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// ContentRecord is the data we index for a content item. Body holds the
// plain-text form of the sanitized HTML.
type ContentRecord struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	Body      string `json:"body"`
	Published bool   `json:"published"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}
