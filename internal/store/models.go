package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no content item exists for a well-formed id.
	ErrNotFound = errors.New("content item not found")
	// ErrInvalidID indicates the identifier is not syntactically valid.
	ErrInvalidID = errors.New("invalid content id")
)

// Version is one immutable snapshot of an item's body, appended on every
// successful edit. Entries are never removed or reordered.
type Version struct {
	Content string    `json:"content"`
	Date    time.Time `json:"date"`
}

// ContentItem is the single domain entity: one row of the content collection.
type ContentItem struct {
	ID             string     `json:"id"`
	Topic          string     `json:"topic"`
	Body           string     `json:"body"`
	Published      bool       `json:"published"`
	DateApproved   *time.Time `json:"dateApproved"`
	DatePublished  *time.Time `json:"datePublished"`
	ExternalDocRef string     `json:"externalDocRef,omitempty"`
	Versions       []Version  `json:"versions"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// UpdateFields is the partial field set applied by Update. Nil pointers are
// left untouched; UpdatedAt is always written.
type UpdateFields struct {
	Topic         *string
	Body          *string
	Published     *bool
	DatePublished *time.Time
	UpdatedAt     time.Time
}

// SortKey selects the timestamp column used to order List results.
type SortKey string

const (
	SortByApproved  SortKey = "date_approved"
	SortByPublished SortKey = "date_published"
	SortByUpdated   SortKey = "updated_at"
)
