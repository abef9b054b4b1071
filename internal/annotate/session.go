// Package annotate is the page-side annotation engine. A Session owns the
// highlight and note registry for one page; only the goroutine driving the
// Session mutates it, while persistence runs on background goroutines and
// hands its results back through Flush or Settle.
package annotate

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"rabbithole/api/internal/messages"
	"rabbithole/api/internal/util"
)

const (
	defaultNoteText = "Edit me"
	headerHighlight = "Highlight note"
	headerNote      = "Note"
)

var restoredNotePosition = Position{Left: 24, Top: 24}

type highlightEntry struct {
	id       string
	marker   Element
	rects    []Rect // page coordinates
	note     *noteEntry
	ghosts   []Element
	revision int64
}

type noteEntry struct {
	id          string
	el          Element
	highlightID string
	position    Position
	revision    int64
}

type Session struct {
	page    Page
	persist Persister
	notify  Notifier
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	saved      bool
	itemID     string
	tool       Tool
	generation int
	seq        int

	highlights []*highlightEntry
	byID       map[string]*highlightEntry
	notes      []*noteEntry
	stroke     []Point // page coordinates of the stroke in progress
	last       Point   // viewport coordinates of the previous stroke point

	inflight sync.WaitGroup
	qmu      sync.Mutex
	queue    []func()
	ready    chan struct{}
}

func New(page Page, persist Persister, notify Notifier, log zerolog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		page:    page,
		persist: persist,
		notify:  notify,
		log:     log.With().Str("component", "annotate").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		tool:    ToolNone,
		byID:    map[string]*highlightEntry{},
		ready:   make(chan struct{}, 1),
	}
}

func (s *Session) Saved() bool    { return s.saved }
func (s *Session) ItemID() string { return s.itemID }
func (s *Session) Tool() Tool     { return s.tool }

// Ready fires whenever results are waiting for Flush.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Close stops outstanding persistence and waits for it to return.
func (s *Session) Close() {
	s.cancel()
	s.inflight.Wait()
}

// HandleMessage applies a background request to this page.
func (s *Session) HandleMessage(ctx context.Context, msg messages.Message) error {
	switch msg.Type {
	case messages.SaveRequest:
		url, title := s.page.Location()
		if msg.URL != nil && *msg.URL != "" {
			url = *msg.URL
		}
		if msg.Title != nil {
			title = *msg.Title
		}
		return s.Save(ctx, url, &title)
	case messages.UnsaveRequest:
		s.Unsave()
	}
	return nil
}

// Save stores the page, restores its annotations and reveals the tools.
// A failed save leaves the session as it was and reports that state.
func (s *Session) Save(ctx context.Context, pageURL string, title *string) error {
	itemID, err := s.persist.SaveItem(ctx, pageURL, title)
	if err != nil {
		s.log.Error().Err(err).Str("url", pageURL).Msg("save item failed")
		s.notify.Notify(messages.NewSaveStateChanged(s.saved))
		return err
	}

	s.reset()
	s.saved = true
	s.itemID = itemID
	s.page.ShowUI(true)
	s.page.SetActiveTool(s.tool)
	s.page.SetPointerCapture(s.tool == ToolDraw)

	snapshot, err := s.persist.LoadItem(ctx, itemID)
	if err != nil {
		s.log.Warn().Err(err).Str("item_id", itemID).Msg("load annotations failed")
	} else {
		s.restore(snapshot)
	}

	s.notify.Notify(messages.NewSaveStateChanged(true))
	return nil
}

func (s *Session) Unsave() {
	s.tool = ToolNone
	s.page.SetActiveTool(ToolNone)
	s.page.SetPointerCapture(false)
	s.page.ShowUI(false)
	s.reset()
	s.saved = false
	s.itemID = ""
	s.notify.Notify(messages.NewSaveStateChanged(false))
}

// Navigate is called when the tab starts loading another document.
func (s *Session) Navigate() {
	s.Unsave()
}

// reset drops every rendered annotation and invalidates pending results.
func (s *Session) reset() {
	for _, n := range s.notes {
		s.page.Remove(n.el)
	}
	for _, entry := range s.highlights {
		s.removeGhosts(entry)
	}
	s.page.ClearStrokes()
	s.highlights = nil
	s.byID = map[string]*highlightEntry{}
	s.notes = nil
	s.stroke = nil
	s.generation++
}

func (s *Session) restore(snapshot Snapshot) {
	for _, h := range snapshot.Highlights {
		entry := s.entry(h.ID)
		entry.rects = append([]Rect(nil), h.Rects...)
	}
	for _, n := range snapshot.Notes {
		pos := restoredNotePosition
		if n.Position != nil {
			pos = *n.Position
		}
		note := s.addNote(n.ID, pos, headerNote, n.Content)
		note.revision = n.Revision
	}
	for _, d := range snapshot.Drawings {
		if len(d.Points) > 1 {
			s.page.DrawStroke(d.Points)
		}
	}
	s.ensureVisible()
}

func (s *Session) PressTool(tool Tool) {
	if !s.saved {
		return
	}
	if tool == s.tool || tool == ToolNone {
		s.tool = ToolNone
	} else {
		s.tool = tool
	}
	s.stroke = nil
	s.page.SetActiveTool(s.tool)
	s.page.SetPointerCapture(s.tool == ToolDraw)
}

// MouseUp turns the current selection into a highlight.
func (s *Session) MouseUp() {
	if !s.saved || s.tool != ToolHighlight {
		return
	}
	sel, ok := s.page.Selection()
	if !ok {
		return
	}

	vp := s.page.Viewport()
	rects := make([]Rect, 0, len(sel.Rects))
	for _, r := range sel.Rects {
		rects = append(rects, vp.ToPage(r))
	}

	s.seq++
	clientID := strconv.Itoa(s.seq)
	marker, err := s.page.WrapSelection(clientID)
	if err != nil {
		s.log.Debug().Err(err).Msg("selection could not be wrapped")
		marker = nil
	}
	s.page.ClearSelection()

	entry := s.entry(clientID)
	entry.marker = marker
	entry.rects = rects
	entry.revision++
	s.ensureVisible()

	draft := HighlightDraft{Text: sel.Text, Rects: append([]Rect(nil), rects...), Revision: entry.revision}
	itemID, gen := s.itemID, s.generation
	s.spawn(func(ctx context.Context) func() {
		id, err := s.persist.SaveHighlight(ctx, itemID, draft)
		if err != nil {
			s.log.Warn().Err(err).Str("item_id", itemID).Msg("save highlight failed")
			return nil
		}
		return func() {
			if gen == s.generation {
				s.renameHighlight(clientID, id)
			}
		}
	})
}

// DoubleClick opens a note beside the marker under target.
func (s *Session) DoubleClick(target Element) {
	if !s.saved || s.tool != ToolNote {
		return
	}
	marker, id, ok := s.page.MarkerAt(target)
	if !ok {
		return
	}
	entry := s.entry(id)
	entry.marker = marker
	if entry.note != nil {
		s.updateNotePosition(entry)
		return
	}

	rect := s.page.BoundingRect(marker)
	note := s.addNote(util.NewID(), Position{Left: rect.Right() + noteOffsetX, Top: rect.Top + noteOffsetY}, headerHighlight, defaultNoteText)
	note.highlightID = entry.id
	entry.note = note
	s.updateNotePosition(entry)
}

// AddNote places a free-standing note at a viewport position.
func (s *Session) AddNote(pos Position) Element {
	if !s.saved {
		return nil
	}
	return s.addNote(util.NewID(), pos, headerNote, defaultNoteText).el
}

// BlurNote persists the note's text with the rects of its highlight.
func (s *Session) BlurNote(el Element, content string) {
	if !s.saved {
		return
	}
	note := s.noteFor(el)
	if note == nil {
		return
	}

	var rects []Rect
	if entry, ok := s.byID[note.highlightID]; ok && note.highlightID != "" {
		rects = append([]Rect(nil), entry.rects...)
	}
	note.revision++
	draft := NoteDraft{
		ID:       note.id,
		Content:  content,
		Rects:    rects,
		Position: note.position,
		Revision: note.revision,
	}
	itemID, gen := s.itemID, s.generation
	s.spawn(func(ctx context.Context) func() {
		id, err := s.persist.SaveNote(ctx, itemID, draft)
		if err != nil {
			s.log.Warn().Err(err).Str("item_id", itemID).Msg("save note failed")
			return nil
		}
		return func() {
			if gen == s.generation {
				note.id = id
			}
		}
	})
}

// PointerDown starts a stroke while the draw tool is active. Points are
// in viewport coordinates.
func (s *Session) PointerDown(p Point) {
	if !s.saved || s.tool != ToolDraw {
		return
	}
	s.stroke = []Point{s.page.Viewport().PointToPage(p)}
	s.last = p
}

func (s *Session) PointerMove(p Point) {
	if s.stroke == nil {
		return
	}
	s.page.DrawSegment(s.last, p)
	s.stroke = append(s.stroke, s.page.Viewport().PointToPage(p))
	s.last = p
}

// PointerUp finishes the stroke and stores it as a drawing.
func (s *Session) PointerUp() {
	stroke := s.stroke
	s.stroke = nil
	if len(stroke) < 2 {
		return
	}
	draft := DrawingDraft{Points: stroke, Bounds: bounds(stroke), Revision: 1}
	itemID := s.itemID
	s.spawn(func(ctx context.Context) func() {
		if _, err := s.persist.SaveDrawing(ctx, itemID, draft); err != nil {
			s.log.Warn().Err(err).Str("item_id", itemID).Msg("save drawing failed")
		}
		return nil
	})
}

// Reflow runs after scroll or resize: notes move first, then every
// highlight shows either its live marker or its ghosts.
func (s *Session) Reflow() {
	if !s.saved {
		return
	}
	for _, entry := range s.highlights {
		s.updateNotePosition(entry)
	}
	s.ensureVisible()
}

// Flush applies every completed persistence result.
func (s *Session) Flush() int {
	s.qmu.Lock()
	pending := s.queue
	s.queue = nil
	s.qmu.Unlock()

	for _, apply := range pending {
		apply()
	}
	return len(pending)
}

// Settle waits for in-flight persistence and applies the results.
func (s *Session) Settle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.Flush()
		return nil
	case <-ctx.Done():
		s.Flush()
		return ctx.Err()
	}
}

func (s *Session) spawn(task func(ctx context.Context) func()) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		apply := task(s.ctx)
		if apply == nil {
			return
		}
		s.qmu.Lock()
		s.queue = append(s.queue, apply)
		s.qmu.Unlock()
		select {
		case s.ready <- struct{}{}:
		default:
		}
	}()
}

func (s *Session) entry(id string) *highlightEntry {
	if entry, ok := s.byID[id]; ok {
		return entry
	}
	entry := &highlightEntry{id: id}
	s.byID[id] = entry
	s.highlights = append(s.highlights, entry)
	return entry
}

func (s *Session) addNote(id string, pos Position, header, content string) *noteEntry {
	el := s.page.CreateNote(NoteView{Header: header, Content: content, Position: pos})
	note := &noteEntry{id: id, el: el, position: pos}
	s.notes = append(s.notes, note)
	return note
}

func (s *Session) noteFor(el Element) *noteEntry {
	for _, n := range s.notes {
		if n.el == el {
			return n
		}
	}
	return nil
}

// renameHighlight swaps a client id for the stored id everywhere it is
// referenced.
func (s *Session) renameHighlight(oldID, newID string) {
	entry, ok := s.byID[oldID]
	if !ok || oldID == newID {
		return
	}
	marker := s.resolveMarker(entry)
	delete(s.byID, oldID)
	entry.id = newID
	s.byID[newID] = entry
	if marker != nil {
		s.page.SetMarkerID(marker, newID)
	}
	if entry.note != nil {
		entry.note.highlightID = newID
	}
}

// resolveMarker returns the live marker for entry or nil.
func (s *Session) resolveMarker(entry *highlightEntry) Element {
	if entry.marker != nil && s.page.Contains(entry.marker) {
		return entry.marker
	}
	entry.marker = s.page.FindMarker(entry.id)
	return entry.marker
}

func (s *Session) updateNotePosition(entry *highlightEntry) {
	if entry.note == nil {
		return
	}
	vp := s.page.Viewport()
	var anchor Rect
	if marker := s.resolveMarker(entry); marker != nil {
		anchor = s.page.BoundingRect(marker)
	} else if len(entry.rects) > 0 {
		anchor = vp.ToViewport(entry.rects[0])
	} else {
		return
	}
	pos := PlaceNote(anchor, s.page.NoteSize(entry.note.el), vp)
	s.page.MoveNote(entry.note.el, pos)
}

func (s *Session) ensureVisible() {
	for _, entry := range s.highlights {
		if s.resolveMarker(entry) != nil {
			s.removeGhosts(entry)
			continue
		}
		if len(entry.rects) == 0 {
			continue
		}
		s.removeGhosts(entry)
		for _, r := range entry.rects {
			entry.ghosts = append(entry.ghosts, s.page.CreateGhost(r))
		}
	}
}

func (s *Session) removeGhosts(entry *highlightEntry) {
	for _, g := range entry.ghosts {
		s.page.Remove(g)
	}
	entry.ghosts = nil
}
