// Package model holds the rows and request and response bodies shared by
// the API server and its clients. It imports nothing from the server.
package model

import "time"

// Rect is a page-relative bounding rectangle.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width" validate:"gte=0"`
	Height float64 `json:"height" validate:"gte=0"`
}

// Position is the literal screen position of a floating note.
type Position struct {
	Left float64 `json:"left"`
	Top  float64 `json:"top"`
}

type Item struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	PageURL   string    `json:"page_url"`
	Title     *string   `json:"title"`
	GroupID   *string   `json:"group_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Note struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Content   *string   `json:"content"`
	Position  *Position `json:"position"`
	Rects     []Rect    `json:"rects"`
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Highlight struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Text      *string   `json:"text"`
	Rects     []Rect    `json:"rects"`
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Drawing struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	BlobRef   string    `json:"blob_ref"`
	Bounds    *Rect     `json:"bounds"`
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ItemGroup struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Label     string    `json:"label"`
	Summary   *string   `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GroupItem is the trimmed item shape nested under a group listing.
type GroupItem struct {
	ID        string    `json:"id"`
	Title     *string   `json:"title"`
	PageURL   string    `json:"page_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type GroupWithItems struct {
	ItemGroup
	Items []GroupItem `json:"items"`
}

// ItemBundle is an item together with all of its annotations.
type ItemBundle struct {
	Item       Item        `json:"item"`
	Notes      []Note      `json:"notes"`
	Highlights []Highlight `json:"highlights"`
	Drawings   []Drawing   `json:"drawings"`
}
