package annotate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rabbithole/api/internal/messages"
	"rabbithole/api/internal/util"
)

type fakeEl struct {
	kind     string
	id       string
	rect     Rect
	view     NoteView
	pos      Position
	attached bool
}

type fakePage struct {
	url      string
	title    string
	vp       Viewport
	sel      *Selection
	wrapErr  error
	els      []*fakeEl
	ui       bool
	tool     Tool
	capture  bool
	strokes  [][]Point
	segments int
}

func newFakePage() *fakePage {
	return &fakePage{
		url:   "https://example.com/article",
		title: "Article",
		vp:    Viewport{Width: 1000, Height: 800, ScrollY: 100},
	}
}

func (p *fakePage) Location() (string, string) { return p.url, p.title }
func (p *fakePage) Viewport() Viewport         { return p.vp }

func (p *fakePage) Selection() (Selection, bool) {
	if p.sel == nil {
		return Selection{}, false
	}
	return *p.sel, true
}

func (p *fakePage) ClearSelection() { p.sel = nil }

func (p *fakePage) WrapSelection(id string) (Element, error) {
	if p.wrapErr != nil {
		return nil, p.wrapErr
	}
	el := &fakeEl{kind: "marker", id: id, rect: p.sel.Rects[0], attached: true}
	p.els = append(p.els, el)
	return el, nil
}

func (p *fakePage) MarkerAt(target Element) (Element, string, bool) {
	el, ok := target.(*fakeEl)
	if !ok || el.kind != "marker" || !el.attached {
		return nil, "", false
	}
	return el, el.id, true
}

func (p *fakePage) FindMarker(id string) Element {
	for _, el := range p.els {
		if el.kind == "marker" && el.attached && el.id == id {
			return el
		}
	}
	return nil
}

func (p *fakePage) SetMarkerID(marker Element, id string) { marker.(*fakeEl).id = id }
func (p *fakePage) Contains(el Element) bool              { return el.(*fakeEl).attached }
func (p *fakePage) BoundingRect(el Element) Rect          { return el.(*fakeEl).rect }

func (p *fakePage) CreateNote(view NoteView) Element {
	el := &fakeEl{kind: "note", view: view, pos: view.Position, attached: true}
	p.els = append(p.els, el)
	return el
}

func (p *fakePage) MoveNote(note Element, pos Position) { note.(*fakeEl).pos = pos }
func (p *fakePage) NoteSize(Element) Size               { return Size{Width: 200, Height: 100} }

func (p *fakePage) CreateGhost(r Rect) Element {
	el := &fakeEl{kind: "ghost", rect: r, attached: true}
	p.els = append(p.els, el)
	return el
}

func (p *fakePage) Remove(el Element)         { el.(*fakeEl).attached = false }
func (p *fakePage) DrawSegment(Point, Point)  { p.segments++ }
func (p *fakePage) DrawStroke(points []Point) { p.strokes = append(p.strokes, points) }
func (p *fakePage) ClearStrokes()             { p.strokes = nil }
func (p *fakePage) ShowUI(visible bool)       { p.ui = visible }
func (p *fakePage) SetActiveTool(tool Tool)   { p.tool = tool }
func (p *fakePage) SetPointerCapture(on bool) { p.capture = on }

func (p *fakePage) live(kind string) []*fakeEl {
	var out []*fakeEl
	for _, el := range p.els {
		if el.kind == kind && el.attached {
			out = append(out, el)
		}
	}
	return out
}

type fakePersister struct {
	mu          sync.Mutex
	saveItemErr error
	loadErr     error
	snapshot    Snapshot
	gate        chan struct{}
	items       []string
	highlights  []HighlightDraft
	notes       []NoteDraft
	drawings    []DrawingDraft
	nextID      int
}

func (f *fakePersister) SaveItem(_ context.Context, pageURL string, _ *string) (string, error) {
	if f.saveItemErr != nil {
		return "", f.saveItemErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, pageURL)
	return "item-1", nil
}

func (f *fakePersister) LoadItem(context.Context, string) (Snapshot, error) {
	return f.snapshot, f.loadErr
}

func (f *fakePersister) SaveHighlight(ctx context.Context, _ string, draft HighlightDraft) (string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.highlights = append(f.highlights, draft)
	f.nextID++
	return fmt.Sprintf("hl-%d", f.nextID), nil
}

func (f *fakePersister) SaveNote(_ context.Context, _ string, draft NoteDraft) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, draft)
	return draft.ID, nil
}

func (f *fakePersister) SaveDrawing(_ context.Context, _ string, draft DrawingDraft) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drawings = append(f.drawings, draft)
	return "dr-1", nil
}

type recorder struct {
	sent []messages.Message
}

func (r *recorder) Notify(msg messages.Message) { r.sent = append(r.sent, msg) }

func (r *recorder) last() messages.Message {
	if len(r.sent) == 0 {
		return messages.Message{}
	}
	return r.sent[len(r.sent)-1]
}

func newTestSession(t *testing.T) (*Session, *fakePage, *fakePersister, *recorder) {
	t.Helper()
	page := newFakePage()
	persist := &fakePersister{}
	notes := &recorder{}
	s := New(page, persist, notes, zerolog.Nop())
	t.Cleanup(s.Close)
	return s, page, persist, notes
}

func saveSession(t *testing.T, s *Session) {
	t.Helper()
	title := "Article"
	require.NoError(t, s.Save(context.Background(), "https://example.com/article", &title))
}

func settle(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Settle(ctx))
}

func highlightSelection(t *testing.T, s *Session, page *fakePage) *fakeEl {
	t.Helper()
	page.sel = &Selection{Text: "quoted", Rects: []Rect{{Top: 10, Left: 20, Width: 50, Height: 10}}}
	s.MouseUp()
	markers := page.live("marker")
	require.NotEmpty(t, markers)
	return markers[len(markers)-1]
}

func TestSaveRestoresAnnotations(t *testing.T) {
	s, page, persist, notes := newTestSession(t)
	persist.snapshot = Snapshot{
		Highlights: []SavedHighlight{{ID: "h1", Rects: []Rect{{Top: 300, Left: 5, Width: 40, Height: 12}}}},
		Notes: []SavedNote{
			{ID: "n1", Content: "first", Revision: 3},
			{ID: "n2", Content: "second", Position: &Position{Left: 5, Top: 6}},
		},
		Drawings: []SavedDrawing{{ID: "d1", Points: []Point{{X: 1, Y: 1}, {X: 2, Y: 2}}}},
	}

	saveSession(t, s)

	assert.True(t, s.Saved())
	assert.Equal(t, "item-1", s.ItemID())
	assert.True(t, page.ui)
	assert.True(t, notes.last().IsSaved())

	ghosts := page.live("ghost")
	require.Len(t, ghosts, 1)
	assert.Equal(t, Rect{Top: 300, Left: 5, Width: 40, Height: 12}, ghosts[0].rect)

	restored := page.live("note")
	require.Len(t, restored, 2)
	assert.Equal(t, Position{Left: 24, Top: 24}, restored[0].pos)
	assert.Equal(t, "first", restored[0].view.Content)
	assert.Equal(t, Position{Left: 5, Top: 6}, restored[1].pos)
	assert.Len(t, page.strokes, 1)
	assert.Equal(t, int64(3), s.notes[0].revision)
}

func TestSaveUsesLiveMarkerInsteadOfGhost(t *testing.T) {
	s, page, persist, _ := newTestSession(t)
	page.els = append(page.els, &fakeEl{kind: "marker", id: "h1", attached: true})
	persist.snapshot = Snapshot{Highlights: []SavedHighlight{{ID: "h1", Rects: []Rect{{Top: 1}}}}}

	saveSession(t, s)

	assert.Empty(t, page.live("ghost"))
}

func TestSaveFailureStaysUnsaved(t *testing.T) {
	s, page, persist, notes := newTestSession(t)
	persist.saveItemErr = errors.New("offline")

	err := s.Save(context.Background(), "https://example.com/article", nil)

	require.Error(t, err)
	assert.False(t, s.Saved())
	assert.False(t, page.ui)
	require.Len(t, notes.sent, 1)
	assert.Equal(t, messages.SaveStateChanged, notes.last().Type)
	assert.False(t, notes.last().IsSaved())
}

func TestFailedResaveKeepsSavedState(t *testing.T) {
	s, page, persist, notes := newTestSession(t)
	saveSession(t, s)
	itemID := s.ItemID()

	persist.saveItemErr = errors.New("offline")
	require.Error(t, s.Save(context.Background(), "https://example.com/article", nil))

	assert.True(t, s.Saved())
	assert.Equal(t, itemID, s.ItemID())
	assert.True(t, page.ui)
	assert.Equal(t, messages.SaveStateChanged, notes.last().Type)
	assert.Equal(t, s.Saved(), notes.last().IsSaved())
}

func TestSaveSurvivesLoadFailure(t *testing.T) {
	s, _, persist, notes := newTestSession(t)
	persist.loadErr = errors.New("timeout")

	saveSession(t, s)

	assert.True(t, s.Saved())
	assert.True(t, notes.last().IsSaved())
}

func TestPressToolToggles(t *testing.T) {
	s, page, _, _ := newTestSession(t)

	s.PressTool(ToolDraw)
	assert.Equal(t, ToolNone, s.Tool(), "tools are inert until the page is saved")

	saveSession(t, s)

	s.PressTool(ToolDraw)
	assert.Equal(t, ToolDraw, s.Tool())
	assert.True(t, page.capture)

	s.PressTool(ToolHighlight)
	assert.Equal(t, ToolHighlight, s.Tool())
	assert.False(t, page.capture)

	s.PressTool(ToolHighlight)
	assert.Equal(t, ToolNone, s.Tool())
	assert.Equal(t, ToolNone, page.tool)
}

func TestMouseUpHighlightsAndSwapsID(t *testing.T) {
	s, page, persist, _ := newTestSession(t)
	saveSession(t, s)
	s.PressTool(ToolHighlight)

	marker := highlightSelection(t, s, page)
	assert.Equal(t, "1", marker.id)
	assert.Nil(t, page.sel)

	settle(t, s)

	require.Len(t, persist.highlights, 1)
	draft := persist.highlights[0]
	assert.Equal(t, "quoted", draft.Text)
	assert.Equal(t, []Rect{{Top: 110, Left: 20, Width: 50, Height: 10}}, draft.Rects)
	assert.Equal(t, int64(1), draft.Revision)

	assert.Equal(t, "hl-1", marker.id)
	_, stale := s.byID["1"]
	assert.False(t, stale)
	assert.Contains(t, s.byID, "hl-1")
}

func TestMouseUpIgnoredWithoutSelectionOrTool(t *testing.T) {
	s, page, persist, _ := newTestSession(t)
	saveSession(t, s)

	page.sel = &Selection{Text: "x", Rects: []Rect{{Top: 1}}}
	s.MouseUp()
	assert.Empty(t, page.live("marker"))

	s.PressTool(ToolHighlight)
	page.sel = nil
	s.MouseUp()
	settle(t, s)
	assert.Empty(t, persist.highlights)
}

func TestMouseUpWithoutMarkerRendersGhosts(t *testing.T) {
	s, page, persist, _ := newTestSession(t)
	saveSession(t, s)
	s.PressTool(ToolHighlight)

	page.wrapErr = errors.New("range crosses elements")
	page.sel = &Selection{Text: "across", Rects: []Rect{{Top: 10, Left: 20, Width: 50, Height: 10}}}
	s.MouseUp()
	settle(t, s)

	assert.Empty(t, page.live("marker"))
	require.Len(t, page.live("ghost"), 1)
	assert.Len(t, persist.highlights, 1)
}

func TestNoteFollowsHighlightRename(t *testing.T) {
	s, page, persist, _ := newTestSession(t)
	saveSession(t, s)
	s.PressTool(ToolHighlight)
	persist.gate = make(chan struct{})

	marker := highlightSelection(t, s, page)
	s.PressTool(ToolNote)
	s.DoubleClick(marker)

	created := page.live("note")
	require.Len(t, created, 1)
	assert.Equal(t, headerHighlight, created[0].view.Header)
	assert.Equal(t, defaultNoteText, created[0].view.Content)
	assert.Equal(t, Position{Left: 78, Top: 4}, created[0].view.Position)
	assert.Equal(t, Position{Left: 82, Top: 12}, created[0].pos)

	close(persist.gate)
	settle(t, s)
	assert.Equal(t, "hl-1", s.notes[0].highlightID)

	s.BlurNote(created[0], "my thoughts")
	s.BlurNote(created[0], "my second thoughts")
	settle(t, s)

	require.Len(t, persist.notes, 2)
	first, second := persist.notes[0], persist.notes[1]
	assert.True(t, util.IsUUID(first.ID))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), first.Revision)
	assert.Equal(t, int64(2), second.Revision)
	assert.Equal(t, "my second thoughts", second.Content)
	assert.Equal(t, []Rect{{Top: 110, Left: 20, Width: 50, Height: 10}}, second.Rects)
	assert.Equal(t, Position{Left: 78, Top: 4}, second.Position)
}

func TestDoubleClickOutsideMarker(t *testing.T) {
	s, page, _, _ := newTestSession(t)
	saveSession(t, s)
	s.PressTool(ToolNote)

	s.DoubleClick(&fakeEl{kind: "paragraph", attached: true})

	assert.Empty(t, page.live("note"))
}

func TestFreeNoteHasNoRects(t *testing.T) {
	s, page, persist, _ := newTestSession(t)
	saveSession(t, s)

	el := s.AddNote(Position{Left: 40, Top: 50})
	require.NotNil(t, el)
	assert.Equal(t, headerNote, page.live("note")[0].view.Header)

	s.BlurNote(el, "loose")
	settle(t, s)

	require.Len(t, persist.notes, 1)
	assert.Nil(t, persist.notes[0].Rects)
	assert.Equal(t, Position{Left: 40, Top: 50}, persist.notes[0].Position)
}

func TestReflowSwitchesBetweenMarkerAndGhosts(t *testing.T) {
	s, page, _, _ := newTestSession(t)
	saveSession(t, s)
	s.PressTool(ToolHighlight)
	marker := highlightSelection(t, s, page)
	s.PressTool(ToolNote)
	s.DoubleClick(marker)
	note := page.live("note")[0]

	assert.Empty(t, page.live("ghost"))

	marker.attached = false
	page.vp.ScrollY = 50
	s.Reflow()

	ghosts := page.live("ghost")
	require.Len(t, ghosts, 1)
	assert.Equal(t, Rect{Top: 110, Left: 20, Width: 50, Height: 10}, ghosts[0].rect)
	assert.Equal(t, Position{Left: 82, Top: 60}, note.pos)

	s.Reflow()
	assert.Len(t, page.live("ghost"), 1, "ghosts are replaced, not stacked")

	marker.attached = true
	s.Reflow()
	assert.Empty(t, page.live("ghost"))
}

func TestResolveMarkerFallsBackToQuery(t *testing.T) {
	s, page, _, _ := newTestSession(t)
	replacement := &fakeEl{kind: "marker", id: "h9", attached: true}
	entry := &highlightEntry{id: "h9", marker: &fakeEl{kind: "marker", id: "h9"}}

	assert.Nil(t, s.resolveMarker(entry))

	page.els = append(page.els, replacement)
	assert.Same(t, replacement, s.resolveMarker(entry))
	assert.Same(t, replacement, entry.marker)
}

func TestUnsaveClearsAndDropsLateResults(t *testing.T) {
	s, page, persist, notes := newTestSession(t)
	saveSession(t, s)
	s.PressTool(ToolHighlight)
	persist.gate = make(chan struct{})

	marker := highlightSelection(t, s, page)
	s.AddNote(Position{Left: 1, Top: 1})
	marker.attached = false
	s.Reflow()
	require.NotEmpty(t, page.live("ghost"))

	s.Unsave()

	assert.False(t, s.Saved())
	assert.Equal(t, ToolNone, s.Tool())
	assert.False(t, page.ui)
	assert.Empty(t, page.live("note"))
	assert.Empty(t, page.live("ghost"))
	assert.False(t, notes.last().IsSaved())

	close(persist.gate)
	settle(t, s)
	assert.Equal(t, "1", marker.id)
	assert.Empty(t, s.byID)
}

func TestDrawingStrokeIsStored(t *testing.T) {
	s, page, persist, _ := newTestSession(t)
	saveSession(t, s)
	s.PressTool(ToolDraw)

	s.PointerDown(Point{X: 10, Y: 10})
	s.PointerMove(Point{X: 20, Y: 30})
	s.PointerUp()
	settle(t, s)

	assert.Equal(t, 1, page.segments)
	require.Len(t, persist.drawings, 1)
	assert.Equal(t, Rect{Top: 110, Left: 10, Width: 10, Height: 20}, persist.drawings[0].Bounds)
	assert.Equal(t, []Point{{X: 10, Y: 110}, {X: 20, Y: 130}}, persist.drawings[0].Points)
}

func TestSingleClickDrawsNothing(t *testing.T) {
	s, _, persist, _ := newTestSession(t)
	saveSession(t, s)
	s.PressTool(ToolDraw)

	s.PointerDown(Point{X: 10, Y: 10})
	s.PointerUp()
	settle(t, s)

	assert.Empty(t, persist.drawings)
}

func TestHandleMessage(t *testing.T) {
	s, _, persist, _ := newTestSession(t)

	require.NoError(t, s.HandleMessage(context.Background(), messages.Message{Type: messages.SaveRequest}))
	assert.Equal(t, []string{"https://example.com/article"}, persist.items)
	assert.True(t, s.Saved())

	require.NoError(t, s.HandleMessage(context.Background(), messages.NewSaveRequest("https://example.com/other", "Other")))
	assert.Equal(t, "https://example.com/other", persist.items[1])

	require.NoError(t, s.HandleMessage(context.Background(), messages.NewUnsaveRequest()))
	assert.False(t, s.Saved())
}

func TestFlushSignalsReady(t *testing.T) {
	s, page, _, _ := newTestSession(t)
	saveSession(t, s)
	s.PressTool(ToolHighlight)
	highlightSelection(t, s, page)

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("no result signalled")
	}
	assert.Equal(t, 1, s.Flush())
	assert.Contains(t, s.byID, "hl-1")
}
