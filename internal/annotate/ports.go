package annotate

import (
	"context"

	"rabbithole/api/internal/messages"
)

type Tool string

const (
	ToolNone      Tool = "none"
	ToolDraw      Tool = "draw"
	ToolHighlight Tool = "highlight"
	ToolNote      Tool = "note"
)

// Element is an opaque handle to a node owned by the Page.
type Element any

// Selection is the live text selection with its client rectangles.
type Selection struct {
	Text  string
	Rects []Rect
}

// NoteView describes a floating note to render.
type NoteView struct {
	Header   string
	Content  string
	Position Position
}

// Page is the DOM as seen by a Session. All rectangles it returns are in
// viewport coordinates.
type Page interface {
	Location() (url, title string)
	Viewport() Viewport

	// Selection reports the current selection; ok is false when it is
	// missing or collapsed.
	Selection() (sel Selection, ok bool)
	ClearSelection()
	WrapSelection(markerID string) (Element, error)

	// MarkerAt returns the marker enclosing target, if any.
	MarkerAt(target Element) (marker Element, id string, ok bool)
	FindMarker(id string) Element
	SetMarkerID(marker Element, id string)
	Contains(el Element) bool
	BoundingRect(el Element) Rect

	CreateNote(view NoteView) Element
	MoveNote(note Element, pos Position)
	NoteSize(note Element) Size
	CreateGhost(pageRect Rect) Element
	Remove(el Element)

	// DrawSegment strokes one live segment in viewport coordinates;
	// DrawStroke replays a whole stored stroke in page coordinates.
	DrawSegment(from, to Point)
	DrawStroke(points []Point)
	ClearStrokes()

	ShowUI(visible bool)
	SetActiveTool(tool Tool)
	SetPointerCapture(on bool)
}

type HighlightDraft struct {
	ID       string
	Text     string
	Rects    []Rect
	Revision int64
}

type NoteDraft struct {
	ID       string
	Content  string
	Rects    []Rect
	Position Position
	Revision int64
}

type DrawingDraft struct {
	Points   []Point
	Bounds   Rect
	Revision int64
}

type SavedHighlight struct {
	ID    string
	Rects []Rect
}

type SavedNote struct {
	ID       string
	Content  string
	Position *Position
	Revision int64
}

type SavedDrawing struct {
	ID     string
	Points []Point
}

// Snapshot is everything stored for one item.
type Snapshot struct {
	Highlights []SavedHighlight
	Notes      []SavedNote
	Drawings   []SavedDrawing
}

// Persister stores annotations. Each call may block and is only ever
// invoked off the session goroutine for entity writes.
type Persister interface {
	SaveItem(ctx context.Context, pageURL string, title *string) (string, error)
	LoadItem(ctx context.Context, itemID string) (Snapshot, error)
	SaveHighlight(ctx context.Context, itemID string, draft HighlightDraft) (string, error)
	SaveNote(ctx context.Context, itemID string, draft NoteDraft) (string, error)
	SaveDrawing(ctx context.Context, itemID string, draft DrawingDraft) (string, error)
}

// Notifier reports save state to the extension background.
type Notifier interface {
	Notify(msg messages.Message)
}

type NotifierFunc func(msg messages.Message)

func (f NotifierFunc) Notify(msg messages.Message) { f(msg) }
