package search

import (
	"rabbithole/api/internal/model"
	"rabbithole/api/internal/store"
)

type (
	ResultType = model.SearchResultType
	Result     = model.SearchResult
	Response   = model.SearchResponse
)

const (
	ResultItem      ResultType = "item"
	ResultNote      ResultType = "note"
	ResultHighlight ResultType = "highlight"
)

// Query describes a search request. UserID is mandatory; results never
// cross users.
type Query struct {
	UserID     string
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
}

// Searcher can execute a search.
type Searcher interface {
	Search(q Query) ([]Result, error)
	Healthy() bool
}

// Record is the data we index for an item, note or highlight.
type Record struct {
	ID      string     `json:"id"`
	Type    ResultType `json:"type"`
	UserID  string     `json:"userId"`
	ItemID  string     `json:"itemId"`
	Title   string     `json:"title"`
	Body    string     `json:"body"`
	PageURL string     `json:"pageUrl"`
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// ItemRecord builds the index record for a saved page.
func ItemRecord(item store.Item) Record {
	return Record{
		ID:      item.ID,
		Type:    ResultItem,
		UserID:  item.UserID,
		ItemID:  item.ID,
		Title:   deref(item.Title),
		Body:    item.PageURL,
		PageURL: item.PageURL,
	}
}

func NoteRecord(item store.Item, note store.Note) Record {
	return Record{
		ID:      note.ID,
		Type:    ResultNote,
		UserID:  item.UserID,
		ItemID:  item.ID,
		Title:   deref(item.Title),
		Body:    deref(note.Content),
		PageURL: item.PageURL,
	}
}

func HighlightRecord(item store.Item, highlight store.Highlight) Record {
	return Record{
		ID:      highlight.ID,
		Type:    ResultHighlight,
		UserID:  item.UserID,
		ItemID:  item.ID,
		Title:   deref(item.Title),
		Body:    deref(highlight.Text),
		PageURL: item.PageURL,
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
