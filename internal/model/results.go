package model

import "time"

// Revision is one recorded version of a note.
type Revision struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	At      time.Time `json:"at"`
	Content string    `json:"content"`
	Deleted bool      `json:"deleted,omitempty"`
}

type Recommendation struct {
	Title          *string `json:"title" validate:"required,max=120"`
	Summary        *string `json:"summary" validate:"required,max=300"`
	SuggestedQuery *string `json:"suggested_query" validate:"required,max=160"`
}

// Recommendations is never an error: failures leave the list empty and set
// Message.
type Recommendations struct {
	Recommendations []Recommendation `json:"recommendations"`
	Message         string           `json:"message,omitempty"`
}

// SearchResultType identifies the kind of entity in a search result.
type SearchResultType string

// SearchResult is a single search hit.
type SearchResult struct {
	Type    SearchResultType `json:"type"`
	ID      string           `json:"id"`
	ItemID  string           `json:"itemId"`
	Title   string           `json:"title"`
	Snippet string           `json:"snippet"`
	PageURL string           `json:"pageUrl"`
}

type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Engine  string         `json:"engine"`
	Query   string         `json:"query"`
}
