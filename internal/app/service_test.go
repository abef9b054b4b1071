package app

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"rabbithole/api/internal/config"
	"rabbithole/api/internal/export"
	"rabbithole/api/internal/grouping"
	"rabbithole/api/internal/history"
	"rabbithole/api/internal/recommend"
	"rabbithole/api/internal/search"
	"rabbithole/api/internal/store"
)

type fakeStore struct {
	pingFn              func(context.Context) error
	findItemByURLFn     func(context.Context, string, string) (store.Item, error)
	upsertItemFn        func(context.Context, store.Item) (store.Item, error)
	getOwnedItemFn      func(context.Context, string, string) (store.Item, error)
	updateItemTitleFn   func(context.Context, string, string, *string) (store.Item, error)
	deleteItemFn        func(context.Context, string, string) error
	listNotesFn         func(context.Context, string) ([]store.Note, error)
	upsertNoteFn        func(context.Context, store.Note) (store.Note, bool, error)
	getOwnedNoteFn      func(context.Context, string, string) (store.Note, error)
	deleteNoteFn        func(context.Context, string, string) error
	listHighlightsFn    func(context.Context, string) ([]store.Highlight, error)
	upsertHighlightFn   func(context.Context, store.Highlight) (store.Highlight, bool, error)
	getOwnedHighlightFn func(context.Context, string, string) (store.Highlight, error)
	deleteHighlightFn   func(context.Context, string, string) error
	listDrawingsFn      func(context.Context, string) ([]store.Drawing, error)
	upsertDrawingFn     func(context.Context, store.Drawing) (store.Drawing, bool, error)
	getOwnedDrawingFn   func(context.Context, string, string) (store.Drawing, error)
	deleteDrawingFn     func(context.Context, string, string) error
	touchGroupFn        func(context.Context, string, string) error
	listGroupsFn        func(context.Context, string, int, int) ([]store.GroupWithItems, error)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}
func (f *fakeStore) FindItemByURL(ctx context.Context, userID, pageURL string) (store.Item, error) {
	if f.findItemByURLFn != nil {
		return f.findItemByURLFn(ctx, userID, pageURL)
	}
	return store.Item{}, sql.ErrNoRows
}
func (f *fakeStore) UpsertItem(ctx context.Context, item store.Item) (store.Item, error) {
	if f.upsertItemFn != nil {
		return f.upsertItemFn(ctx, item)
	}
	if item.ID == "" {
		item.ID = "item-1"
	}
	return item, nil
}
func (f *fakeStore) GetOwnedItem(ctx context.Context, itemID, userID string) (store.Item, error) {
	if f.getOwnedItemFn != nil {
		return f.getOwnedItemFn(ctx, itemID, userID)
	}
	return store.Item{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateItemTitle(ctx context.Context, itemID, userID string, title *string) (store.Item, error) {
	if f.updateItemTitleFn != nil {
		return f.updateItemTitleFn(ctx, itemID, userID, title)
	}
	return store.Item{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteItem(ctx context.Context, itemID, userID string) error {
	if f.deleteItemFn != nil {
		return f.deleteItemFn(ctx, itemID, userID)
	}
	return nil
}
func (f *fakeStore) ListNotes(ctx context.Context, itemID string) ([]store.Note, error) {
	if f.listNotesFn != nil {
		return f.listNotesFn(ctx, itemID)
	}
	return nil, nil
}
func (f *fakeStore) UpsertNote(ctx context.Context, note store.Note) (store.Note, bool, error) {
	if f.upsertNoteFn != nil {
		return f.upsertNoteFn(ctx, note)
	}
	return note, true, nil
}
func (f *fakeStore) GetOwnedNote(ctx context.Context, noteID, userID string) (store.Note, error) {
	if f.getOwnedNoteFn != nil {
		return f.getOwnedNoteFn(ctx, noteID, userID)
	}
	return store.Note{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteNote(ctx context.Context, noteID, itemID string) error {
	if f.deleteNoteFn != nil {
		return f.deleteNoteFn(ctx, noteID, itemID)
	}
	return nil
}
func (f *fakeStore) ListHighlights(ctx context.Context, itemID string) ([]store.Highlight, error) {
	if f.listHighlightsFn != nil {
		return f.listHighlightsFn(ctx, itemID)
	}
	return nil, nil
}
func (f *fakeStore) UpsertHighlight(ctx context.Context, highlight store.Highlight) (store.Highlight, bool, error) {
	if f.upsertHighlightFn != nil {
		return f.upsertHighlightFn(ctx, highlight)
	}
	return highlight, true, nil
}
func (f *fakeStore) GetOwnedHighlight(ctx context.Context, highlightID, userID string) (store.Highlight, error) {
	if f.getOwnedHighlightFn != nil {
		return f.getOwnedHighlightFn(ctx, highlightID, userID)
	}
	return store.Highlight{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteHighlight(ctx context.Context, highlightID, itemID string) error {
	if f.deleteHighlightFn != nil {
		return f.deleteHighlightFn(ctx, highlightID, itemID)
	}
	return nil
}
func (f *fakeStore) ListDrawings(ctx context.Context, itemID string) ([]store.Drawing, error) {
	if f.listDrawingsFn != nil {
		return f.listDrawingsFn(ctx, itemID)
	}
	return nil, nil
}
func (f *fakeStore) UpsertDrawing(ctx context.Context, drawing store.Drawing) (store.Drawing, bool, error) {
	if f.upsertDrawingFn != nil {
		return f.upsertDrawingFn(ctx, drawing)
	}
	return drawing, true, nil
}
func (f *fakeStore) GetOwnedDrawing(ctx context.Context, drawingID, userID string) (store.Drawing, error) {
	if f.getOwnedDrawingFn != nil {
		return f.getOwnedDrawingFn(ctx, drawingID, userID)
	}
	return store.Drawing{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteDrawing(ctx context.Context, drawingID, itemID string) error {
	if f.deleteDrawingFn != nil {
		return f.deleteDrawingFn(ctx, drawingID, itemID)
	}
	return nil
}
func (f *fakeStore) TouchGroup(ctx context.Context, groupID, userID string) error {
	if f.touchGroupFn != nil {
		return f.touchGroupFn(ctx, groupID, userID)
	}
	return nil
}
func (f *fakeStore) ListGroupsWithItems(ctx context.Context, userID string, groupLimit, itemsPerGroup int) ([]store.GroupWithItems, error) {
	if f.listGroupsFn != nil {
		return f.listGroupsFn(ctx, userID, groupLimit, itemsPerGroup)
	}
	return nil, nil
}

type fakeGrouper struct {
	calls  []grouping.Input
	result *string
}

func (f *fakeGrouper) Determine(_ context.Context, in grouping.Input) *string {
	f.calls = append(f.calls, in)
	return f.result
}

type fakeRecommender struct {
	result      recommend.Result
	invalidated []string
}

func (f *fakeRecommender) Generate(context.Context, string) recommend.Result {
	return f.result
}

func (f *fakeRecommender) Invalidate(_ context.Context, userID string) {
	f.invalidated = append(f.invalidated, userID)
}

type fakeSearch struct {
	mu      sync.Mutex
	indexed []search.Record
	deleted []string
	lastQ   search.Query
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.lastQ = q
	return search.Response{Results: []search.Result{}, Engine: search.EngineSQL, Query: q.Text}
}

func (f *fakeSearch) Index(records ...search.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, records...)
}

func (f *fakeSearch) Delete(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids...)
}

type fakeHistory struct {
	recorded []string
	removed  []string
	dropped  []string
	list     []history.Revision
}

func (f *fakeHistory) Record(itemID, noteID, content, author string) (history.Revision, bool, error) {
	f.recorded = append(f.recorded, noteID+":"+content)
	return history.Revision{Content: content, Author: author}, true, nil
}

func (f *fakeHistory) Remove(itemID, noteID, author string) error {
	f.removed = append(f.removed, noteID)
	return nil
}

func (f *fakeHistory) DropItem(itemID string) error {
	f.dropped = append(f.dropped, itemID)
	return nil
}

func (f *fakeHistory) List(itemID, noteID string, limit int) ([]history.Revision, error) {
	return f.list, nil
}

type fakeExporter struct {
	err error
}

func (f *fakeExporter) Export(_ context.Context, req export.Request) (*export.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &export.Result{Data: []byte("<html></html>"), Filename: "page.html", MimeType: "text/html; charset=utf-8"}, nil
}

func newTestService(fs *fakeStore, deps Dependencies) *Service {
	return New(config.Config{BlobMaxBytes: 16}, fs, deps, zerolog.Nop())
}

func strPtr(value string) *string { return &value }

func ownedItem(id string) func(context.Context, string, string) (store.Item, error) {
	return func(_ context.Context, itemID, userID string) (store.Item, error) {
		if itemID != id || userID != "u1" {
			return store.Item{}, sql.ErrNoRows
		}
		return store.Item{ID: id, UserID: userID, PageURL: "https://example.com/a"}, nil
	}
}

func TestSaveItemReusesExistingGroup(t *testing.T) {
	grouper := &fakeGrouper{result: strPtr("other")}
	recs := &fakeRecommender{}
	touched := ""
	fs := &fakeStore{
		findItemByURLFn: func(context.Context, string, string) (store.Item, error) {
			return store.Item{ID: "item-1", GroupID: strPtr("g1"), Title: strPtr("Old")}, nil
		},
		upsertItemFn: func(_ context.Context, item store.Item) (store.Item, error) {
			if item.GroupID == nil || *item.GroupID != "g1" {
				t.Fatalf("UpsertItem() group = %v, want g1", item.GroupID)
			}
			item.ID = "item-1"
			return item, nil
		},
		touchGroupFn: func(_ context.Context, groupID, _ string) error {
			touched = groupID
			return nil
		},
	}
	svc := newTestService(fs, Dependencies{Grouper: grouper, Recommender: recs})

	item, err := svc.SaveItem(context.Background(), "u1", SaveItemInput{PageURL: "https://example.com/a"})
	if err != nil {
		t.Fatalf("SaveItem() error = %v", err)
	}
	if item.ID != "item-1" {
		t.Fatalf("SaveItem() id = %q", item.ID)
	}
	if len(grouper.calls) != 0 {
		t.Fatalf("grouper called %d times, want 0", len(grouper.calls))
	}
	if touched != "g1" {
		t.Fatalf("TouchGroup() group = %q, want g1", touched)
	}
	if len(recs.invalidated) != 1 || recs.invalidated[0] != "u1" {
		t.Fatalf("invalidated = %v", recs.invalidated)
	}
}

func TestSaveItemGroupsWithExistingTitle(t *testing.T) {
	grouper := &fakeGrouper{result: strPtr("g2")}
	fs := &fakeStore{
		findItemByURLFn: func(context.Context, string, string) (store.Item, error) {
			return store.Item{ID: "item-1", Title: strPtr("Stored title")}, nil
		},
	}
	svc := newTestService(fs, Dependencies{Grouper: grouper})

	item, err := svc.SaveItem(context.Background(), "u1", SaveItemInput{PageURL: "https://example.com/a"})
	if err != nil {
		t.Fatalf("SaveItem() error = %v", err)
	}
	if len(grouper.calls) != 1 {
		t.Fatalf("grouper called %d times, want 1", len(grouper.calls))
	}
	if got := grouper.calls[0].Title; got == nil || *got != "Stored title" {
		t.Fatalf("grouper title = %v, want stored title", got)
	}
	if item.GroupID == nil || *item.GroupID != "g2" {
		t.Fatalf("item group = %v, want g2", item.GroupID)
	}
}

func TestSaveItemToleratesTouchGroupFailure(t *testing.T) {
	fs := &fakeStore{
		touchGroupFn: func(context.Context, string, string) error { return errors.New("boom") },
	}
	svc := newTestService(fs, Dependencies{Grouper: &fakeGrouper{result: strPtr("g1")}})

	if _, err := svc.SaveItem(context.Background(), "u1", SaveItemInput{PageURL: "https://example.com/a"}); err != nil {
		t.Fatalf("SaveItem() error = %v", err)
	}
}

func TestSaveItemStoreFailure(t *testing.T) {
	fs := &fakeStore{
		findItemByURLFn: func(context.Context, string, string) (store.Item, error) {
			return store.Item{}, errors.New("connection reset")
		},
	}
	svc := newTestService(fs, Dependencies{})

	_, err := svc.SaveItem(context.Background(), "u1", SaveItemInput{PageURL: "https://example.com/a"})
	if status, code, _, _ := mapError(err); status != http.StatusInternalServerError || code != "SERVER_ERROR" {
		t.Fatalf("mapError() = %d %s, want 500 SERVER_ERROR", status, code)
	}
}

func TestGetItemReturnsEmptyChildren(t *testing.T) {
	svc := newTestService(&fakeStore{getOwnedItemFn: ownedItem("item-1")}, Dependencies{})

	bundle, err := svc.GetItem(context.Background(), "u1", "item-1")
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if bundle.Notes == nil || bundle.Highlights == nil || bundle.Drawings == nil {
		t.Fatalf("GetItem() children must be non-nil: %+v", bundle)
	}
}

func TestGetItemNotOwned(t *testing.T) {
	svc := newTestService(&fakeStore{getOwnedItemFn: ownedItem("item-1")}, Dependencies{})

	_, err := svc.GetItem(context.Background(), "u2", "item-1")
	status, code, message, _ := mapError(err)
	if status != http.StatusNotFound || code != "NOT_FOUND" || message != "Item not found" {
		t.Fatalf("mapError() = %d %s %q", status, code, message)
	}
}

func TestGetItemByURLRequiresURL(t *testing.T) {
	svc := newTestService(&fakeStore{}, Dependencies{})

	_, err := svc.GetItemByURL(context.Background(), "u1", "  ")
	status, _, message, _ := mapError(err)
	if status != http.StatusBadRequest || message != "Missing url param" {
		t.Fatalf("mapError() = %d %q", status, message)
	}
}

func TestSaveNoteRecordsSideEffects(t *testing.T) {
	searcher := &fakeSearch{}
	hist := &fakeHistory{}
	recs := &fakeRecommender{}
	var saved store.Note
	fs := &fakeStore{
		getOwnedItemFn: ownedItem("item-1"),
		upsertNoteFn: func(_ context.Context, note store.Note) (store.Note, bool, error) {
			saved = note
			return note, true, nil
		},
	}
	svc := newTestService(fs, Dependencies{Search: searcher, History: hist, Recommender: recs})

	note, err := svc.SaveNote(context.Background(), "u1", "item-1", NoteInput{Content: strPtr("remember this"), Revision: 3})
	if err != nil {
		t.Fatalf("SaveNote() error = %v", err)
	}
	if note.ID == "" || saved.ID != note.ID {
		t.Fatalf("SaveNote() should generate an id, got %q", note.ID)
	}
	if saved.ItemID != "item-1" || saved.Revision != 3 {
		t.Fatalf("UpsertNote() input = %+v", saved)
	}
	if len(searcher.indexed) != 1 || searcher.indexed[0].Type != search.ResultNote {
		t.Fatalf("indexed = %+v", searcher.indexed)
	}
	if len(hist.recorded) != 1 || !strings.HasSuffix(hist.recorded[0], ":remember this") {
		t.Fatalf("history = %v", hist.recorded)
	}
	if len(recs.invalidated) != 1 {
		t.Fatalf("invalidated = %v", recs.invalidated)
	}
}

func TestSaveNoteKeepsClientID(t *testing.T) {
	id := "3F2504E0-4F89-11D3-9A0C-0305E82C3301"
	fs := &fakeStore{getOwnedItemFn: ownedItem("item-1")}
	svc := newTestService(fs, Dependencies{})

	note, err := svc.SaveNote(context.Background(), "u1", "item-1", NoteInput{ID: &id})
	if err != nil {
		t.Fatalf("SaveNote() error = %v", err)
	}
	if note.ID != strings.ToLower(id) {
		t.Fatalf("SaveNote() id = %q", note.ID)
	}
}

func TestSaveNoteStaleWriteSkipsSideEffects(t *testing.T) {
	searcher := &fakeSearch{}
	hist := &fakeHistory{}
	fs := &fakeStore{
		getOwnedItemFn: ownedItem("item-1"),
		upsertNoteFn: func(_ context.Context, note store.Note) (store.Note, bool, error) {
			note.Revision = 9
			return note, false, nil
		},
	}
	svc := newTestService(fs, Dependencies{Search: searcher, History: hist})

	note, err := svc.SaveNote(context.Background(), "u1", "item-1", NoteInput{Revision: 2})
	if err != nil {
		t.Fatalf("SaveNote() error = %v", err)
	}
	if note.Revision != 9 {
		t.Fatalf("SaveNote() revision = %d, want stored 9", note.Revision)
	}
	if len(searcher.indexed) != 0 || len(hist.recorded) != 0 {
		t.Fatalf("stale write should not index or record history")
	}
}

func TestSaveNoteForeignID(t *testing.T) {
	fs := &fakeStore{
		getOwnedItemFn: ownedItem("item-1"),
		upsertNoteFn: func(context.Context, store.Note) (store.Note, bool, error) {
			return store.Note{}, false, sql.ErrNoRows
		},
	}
	svc := newTestService(fs, Dependencies{})

	_, err := svc.SaveNote(context.Background(), "u1", "item-1", NoteInput{})
	if status, _, message, _ := mapError(err); status != http.StatusNotFound || message != "Note not found" {
		t.Fatalf("mapError() = %d %q", status, message)
	}
}

func TestDeleteItemCleansUp(t *testing.T) {
	searcher := &fakeSearch{}
	hist := &fakeHistory{}
	deleted := ""
	fs := &fakeStore{
		getOwnedItemFn: ownedItem("item-1"),
		listNotesFn: func(context.Context, string) ([]store.Note, error) {
			return []store.Note{{ID: "n1"}}, nil
		},
		listHighlightsFn: func(context.Context, string) ([]store.Highlight, error) {
			return []store.Highlight{{ID: "h1"}}, nil
		},
		deleteItemFn: func(_ context.Context, itemID, _ string) error {
			deleted = itemID
			return nil
		},
	}
	svc := newTestService(fs, Dependencies{Search: searcher, History: hist})

	if err := svc.DeleteItem(context.Background(), "u1", "item-1"); err != nil {
		t.Fatalf("DeleteItem() error = %v", err)
	}
	if deleted != "item-1" {
		t.Fatalf("DeleteItem() deleted %q", deleted)
	}
	if strings.Join(searcher.deleted, ",") != "item-1,n1,h1" {
		t.Fatalf("search deletes = %v", searcher.deleted)
	}
	if len(hist.dropped) != 1 || hist.dropped[0] != "item-1" {
		t.Fatalf("history dropped = %v", hist.dropped)
	}
}

func TestDeleteNoteUsesParentItem(t *testing.T) {
	hist := &fakeHistory{}
	var gotNote, gotItem string
	fs := &fakeStore{
		getOwnedNoteFn: func(_ context.Context, noteID, userID string) (store.Note, error) {
			if userID != "u1" {
				return store.Note{}, sql.ErrNoRows
			}
			return store.Note{ID: noteID, ItemID: "item-1"}, nil
		},
		deleteNoteFn: func(_ context.Context, noteID, itemID string) error {
			gotNote, gotItem = noteID, itemID
			return nil
		},
	}
	svc := newTestService(fs, Dependencies{History: hist})

	if err := svc.DeleteNote(context.Background(), "u1", "n1"); err != nil {
		t.Fatalf("DeleteNote() error = %v", err)
	}
	if gotNote != "n1" || gotItem != "item-1" {
		t.Fatalf("DeleteNote() = %q/%q", gotNote, gotItem)
	}
	if len(hist.removed) != 1 {
		t.Fatalf("history removed = %v", hist.removed)
	}

	err := svc.DeleteNote(context.Background(), "u2", "n1")
	if status, _, _, _ := mapError(err); status != http.StatusNotFound {
		t.Fatalf("DeleteNote() foreign status = %d", status)
	}
}

func TestNoteHistoryWithoutRepository(t *testing.T) {
	fs := &fakeStore{
		getOwnedNoteFn: func(_ context.Context, noteID, _ string) (store.Note, error) {
			return store.Note{ID: noteID, ItemID: "item-1"}, nil
		},
	}
	svc := newTestService(fs, Dependencies{})

	revisions, err := svc.NoteHistory(context.Background(), "u1", "n1")
	if err != nil {
		t.Fatalf("NoteHistory() error = %v", err)
	}
	if revisions == nil || len(revisions) != 0 {
		t.Fatalf("NoteHistory() = %v, want empty", revisions)
	}
}

func TestRecommendationsWithoutGenerator(t *testing.T) {
	svc := newTestService(&fakeStore{}, Dependencies{})

	result := svc.Recommendations(context.Background(), "u1")
	if result.Recommendations == nil || len(result.Recommendations) != 0 {
		t.Fatalf("Recommendations() = %+v", result)
	}
	if result.Message != recommend.MsgDisabled {
		t.Fatalf("Recommendations() message = %q", result.Message)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	searcher := &fakeSearch{}
	svc := newTestService(&fakeStore{}, Dependencies{Search: searcher})

	if _, err := svc.Search(context.Background(), "u1", " ", 5); err == nil {
		t.Fatal("Search() expected error for blank query")
	}
	if _, err := svc.Search(context.Background(), "u1", "mvcc", 5); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if searcher.lastQ.UserID != "u1" || searcher.lastQ.Text != "mvcc" || searcher.lastQ.Limit != 5 {
		t.Fatalf("Search() query = %+v", searcher.lastQ)
	}
}

func TestUploadBlobLimits(t *testing.T) {
	svc := newTestService(&fakeStore{}, Dependencies{})
	ctx := context.Background()

	_, err := svc.UploadBlob(ctx, "u1", bytes.NewReader(nil), "")
	if status, _, _, _ := mapError(err); status != http.StatusBadRequest {
		t.Fatalf("empty upload status = %d", status)
	}

	_, err = svc.UploadBlob(ctx, "u1", strings.NewReader(strings.Repeat("x", 17)), "")
	if status, _, _, _ := mapError(err); status != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized upload status = %d", status)
	}

	upload, err := svc.UploadBlob(ctx, "u1", strings.NewReader("stroke"), "application/json")
	if err != nil {
		t.Fatalf("UploadBlob() error = %v", err)
	}
	if upload.Size != 6 || !strings.HasPrefix(upload.BlobRef, "ink") {
		t.Fatalf("UploadBlob() = %+v", upload)
	}

	info, reader, err := svc.OpenBlob(ctx, "u1", upload.BlobRef)
	if err != nil {
		t.Fatalf("OpenBlob() error = %v", err)
	}
	defer reader.Close()
	if info.ContentType != "application/json" {
		t.Fatalf("OpenBlob() content type = %q", info.ContentType)
	}

	if _, _, err := svc.OpenBlob(ctx, "u2", upload.BlobRef); err == nil {
		t.Fatal("OpenBlob() should not expose another user's blob")
	}
}

func TestExportItemErrors(t *testing.T) {
	ctx := context.Background()

	svc := newTestService(&fakeStore{}, Dependencies{Exporter: &fakeExporter{}})
	if _, err := svc.ExportItem(ctx, "u1", "item-1", "docx"); err == nil {
		t.Fatal("ExportItem() expected error for unknown format")
	}

	svc = newTestService(&fakeStore{}, Dependencies{Exporter: &fakeExporter{err: sql.ErrNoRows}})
	_, err := svc.ExportItem(ctx, "u1", "item-1", "html")
	if status, _, _, _ := mapError(err); status != http.StatusNotFound {
		t.Fatalf("missing item status = %d", status)
	}

	svc = newTestService(&fakeStore{}, Dependencies{Exporter: &fakeExporter{err: export.ErrPDFDependencyMissing}})
	_, err = svc.ExportItem(ctx, "u1", "item-1", "pdf")
	if status, _, _, _ := mapError(err); status != http.StatusServiceUnavailable {
		t.Fatalf("missing chrome status = %d", status)
	}
}
