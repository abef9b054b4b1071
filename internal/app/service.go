package app

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"rabbithole/api/internal/blob"
	"rabbithole/api/internal/config"
	"rabbithole/api/internal/export"
	"rabbithole/api/internal/grouping"
	"rabbithole/api/internal/history"
	"rabbithole/api/internal/recommend"
	"rabbithole/api/internal/search"
	"rabbithole/api/internal/store"
	"rabbithole/api/internal/util"
)

const (
	groupListLimit     = 50
	historyListLimit   = 50
	defaultBlobMax     = 2 << 20
	blobRefPrefix      = "ink"
	defaultInkMIME     = "application/octet-stream"
	messageNoItem      = "Item not found"
	messageNoNote      = "Note not found"
	messageNoHighlight = "Highlight not found"
	messageNoDrawing   = "Drawing not found"
	messageNoBlob      = "Blob not found"
)

type dataStore interface {
	Ping(context.Context) error
	FindItemByURL(context.Context, string, string) (store.Item, error)
	UpsertItem(context.Context, store.Item) (store.Item, error)
	GetOwnedItem(context.Context, string, string) (store.Item, error)
	UpdateItemTitle(context.Context, string, string, *string) (store.Item, error)
	DeleteItem(context.Context, string, string) error
	ListNotes(context.Context, string) ([]store.Note, error)
	UpsertNote(context.Context, store.Note) (store.Note, bool, error)
	GetOwnedNote(context.Context, string, string) (store.Note, error)
	DeleteNote(context.Context, string, string) error
	ListHighlights(context.Context, string) ([]store.Highlight, error)
	UpsertHighlight(context.Context, store.Highlight) (store.Highlight, bool, error)
	GetOwnedHighlight(context.Context, string, string) (store.Highlight, error)
	DeleteHighlight(context.Context, string, string) error
	ListDrawings(context.Context, string) ([]store.Drawing, error)
	UpsertDrawing(context.Context, store.Drawing) (store.Drawing, bool, error)
	GetOwnedDrawing(context.Context, string, string) (store.Drawing, error)
	DeleteDrawing(context.Context, string, string) error
	TouchGroup(context.Context, string, string) error
	ListGroupsWithItems(context.Context, string, int, int) ([]store.GroupWithItems, error)
}

// Grouper picks the group for a newly saved item. A nil result leaves the
// item ungrouped.
type Grouper interface {
	Determine(context.Context, grouping.Input) *string
}

type Recommender interface {
	Generate(context.Context, string) recommend.Result
	Invalidate(context.Context, string)
}

type Searcher interface {
	Search(context.Context, search.Query) search.Response
	Index(...search.Record)
	Delete(...string)
}

type Exporter interface {
	Export(context.Context, export.Request) (*export.Result, error)
}

type NoteHistory interface {
	Record(itemID, noteID, content, author string) (history.Revision, bool, error)
	Remove(itemID, noteID, author string) error
	DropItem(itemID string) error
	List(itemID, noteID string, limit int) ([]history.Revision, error)
}

// Dependencies carries the optional collaborators of a Service. Nil fields
// disable the matching side effect.
type Dependencies struct {
	Grouper     Grouper
	Recommender Recommender
	Search      Searcher
	Exporter    Exporter
	History     NoteHistory
	Blobs       blob.Store
}

type Service struct {
	store       dataStore
	grouper     Grouper
	recommender Recommender
	search      Searcher
	exporter    Exporter
	history     NoteHistory
	blobs       blob.Store
	blobMax     int64
	log         zerolog.Logger
}

func New(cfg config.Config, repo dataStore, deps Dependencies, log zerolog.Logger) *Service {
	blobMax := cfg.BlobMaxBytes
	if blobMax <= 0 {
		blobMax = defaultBlobMax
	}
	blobs := deps.Blobs
	if blobs == nil {
		blobs = blob.NewMemory()
	}
	return &Service{
		store:       repo,
		grouper:     deps.Grouper,
		recommender: deps.Recommender,
		search:      deps.Search,
		exporter:    deps.Exporter,
		history:     deps.History,
		blobs:       blobs,
		blobMax:     blobMax,
		log:         log.With().Str("component", "app").Logger(),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Items

func (s *Service) SaveItem(ctx context.Context, userID string, input SaveItemInput) (store.Item, error) {
	existing, err := s.store.FindItemByURL(ctx, userID, input.PageURL)
	found := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return store.Item{}, err
	}

	var groupID *string
	if found && existing.GroupID != nil {
		groupID = existing.GroupID
	} else if s.grouper != nil {
		title := input.Title
		if title == nil && found {
			title = existing.Title
		}
		groupID = s.grouper.Determine(ctx, grouping.Input{UserID: userID, PageURL: input.PageURL, Title: title})
	}

	item, err := s.store.UpsertItem(ctx, store.Item{
		UserID:  userID,
		PageURL: input.PageURL,
		Title:   input.Title,
		GroupID: groupID,
	})
	if err != nil {
		return store.Item{}, err
	}

	if item.GroupID != nil {
		if err := s.store.TouchGroup(ctx, *item.GroupID, userID); err != nil {
			s.log.Warn().Err(err).Str("group_id", *item.GroupID).Msg("touch group failed")
		}
	}
	s.index(search.ItemRecord(item))
	s.invalidate(ctx, userID)
	return item, nil
}

func (s *Service) GetItem(ctx context.Context, userID, itemID string) (store.ItemBundle, error) {
	item, err := s.store.GetOwnedItem(ctx, itemID, userID)
	if err != nil {
		return store.ItemBundle{}, notFound(err, messageNoItem)
	}
	return s.bundle(ctx, item)
}

func (s *Service) GetItemByURL(ctx context.Context, userID, pageURL string) (store.ItemBundle, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return store.ItemBundle{}, validationError("url", "required", "Missing url param")
	}
	item, err := s.store.FindItemByURL(ctx, userID, pageURL)
	if err != nil {
		return store.ItemBundle{}, notFound(err, messageNoItem)
	}
	return s.bundle(ctx, item)
}

func (s *Service) bundle(ctx context.Context, item store.Item) (store.ItemBundle, error) {
	notes, err := s.store.ListNotes(ctx, item.ID)
	if err != nil {
		return store.ItemBundle{}, err
	}
	highlights, err := s.store.ListHighlights(ctx, item.ID)
	if err != nil {
		return store.ItemBundle{}, err
	}
	drawings, err := s.store.ListDrawings(ctx, item.ID)
	if err != nil {
		return store.ItemBundle{}, err
	}
	if notes == nil {
		notes = []store.Note{}
	}
	if highlights == nil {
		highlights = []store.Highlight{}
	}
	if drawings == nil {
		drawings = []store.Drawing{}
	}
	return store.ItemBundle{Item: item, Notes: notes, Highlights: highlights, Drawings: drawings}, nil
}

func (s *Service) UpdateItem(ctx context.Context, userID, itemID string, input UpdateItemInput) (store.Item, error) {
	item, err := s.store.UpdateItemTitle(ctx, itemID, userID, input.Title)
	if err != nil {
		return store.Item{}, notFound(err, messageNoItem)
	}
	s.index(search.ItemRecord(item))
	s.invalidate(ctx, userID)
	return item, nil
}

// DeleteItem removes the item and, through the foreign keys, its children.
func (s *Service) DeleteItem(ctx context.Context, userID, itemID string) error {
	item, err := s.store.GetOwnedItem(ctx, itemID, userID)
	if err != nil {
		return notFound(err, messageNoItem)
	}

	ids := []string{item.ID}
	if notes, err := s.store.ListNotes(ctx, item.ID); err == nil {
		for _, note := range notes {
			ids = append(ids, note.ID)
		}
	}
	if highlights, err := s.store.ListHighlights(ctx, item.ID); err == nil {
		for _, highlight := range highlights {
			ids = append(ids, highlight.ID)
		}
	}

	if err := s.store.DeleteItem(ctx, item.ID, userID); err != nil {
		return notFound(err, messageNoItem)
	}

	if s.search != nil {
		s.search.Delete(ids...)
	}
	if s.history != nil {
		if err := s.history.DropItem(item.ID); err != nil {
			s.log.Warn().Err(err).Str("item_id", item.ID).Msg("drop note history failed")
		}
	}
	s.invalidate(ctx, userID)
	return nil
}

// Notes

func (s *Service) SaveNote(ctx context.Context, userID, itemID string, input NoteInput) (store.Note, error) {
	item, err := s.store.GetOwnedItem(ctx, itemID, userID)
	if err != nil {
		return store.Note{}, notFound(err, messageNoItem)
	}

	note, applied, err := s.store.UpsertNote(ctx, store.Note{
		ID:       idOrNew(input.ID),
		ItemID:   item.ID,
		Content:  input.Content,
		Position: input.Position,
		Rects:    input.Rects,
		Revision: input.Revision,
	})
	if err != nil {
		return store.Note{}, notFound(err, messageNoNote)
	}
	if !applied {
		s.log.Debug().Str("note_id", note.ID).Int64("revision", input.Revision).Msg("stale note write ignored")
		return note, nil
	}

	s.index(search.NoteRecord(item, note))
	if s.history != nil {
		content := ""
		if note.Content != nil {
			content = *note.Content
		}
		if _, _, err := s.history.Record(item.ID, note.ID, content, userID); err != nil {
			s.log.Warn().Err(err).Str("note_id", note.ID).Msg("record note history failed")
		}
	}
	s.invalidate(ctx, userID)
	return note, nil
}

func (s *Service) DeleteNote(ctx context.Context, userID, noteID string) error {
	note, err := s.store.GetOwnedNote(ctx, noteID, userID)
	if err != nil {
		return notFound(err, messageNoNote)
	}
	if err := s.store.DeleteNote(ctx, note.ID, note.ItemID); err != nil {
		return notFound(err, messageNoNote)
	}
	if s.search != nil {
		s.search.Delete(note.ID)
	}
	if s.history != nil {
		if err := s.history.Remove(note.ItemID, note.ID, userID); err != nil {
			s.log.Warn().Err(err).Str("note_id", note.ID).Msg("record note removal failed")
		}
	}
	return nil
}

// NoteHistory lists recorded versions of a note, newest first.
func (s *Service) NoteHistory(ctx context.Context, userID, noteID string) ([]history.Revision, error) {
	note, err := s.store.GetOwnedNote(ctx, noteID, userID)
	if err != nil {
		return nil, notFound(err, messageNoNote)
	}
	if s.history == nil {
		return []history.Revision{}, nil
	}
	revisions, err := s.history.List(note.ItemID, note.ID, historyListLimit)
	if err != nil {
		return nil, fmt.Errorf("list note history: %w", err)
	}
	if revisions == nil {
		revisions = []history.Revision{}
	}
	return revisions, nil
}

// Highlights

func (s *Service) SaveHighlight(ctx context.Context, userID, itemID string, input HighlightInput) (store.Highlight, error) {
	item, err := s.store.GetOwnedItem(ctx, itemID, userID)
	if err != nil {
		return store.Highlight{}, notFound(err, messageNoItem)
	}

	highlight, applied, err := s.store.UpsertHighlight(ctx, store.Highlight{
		ID:       idOrNew(input.ID),
		ItemID:   item.ID,
		Text:     input.Text,
		Rects:    input.Rects,
		Revision: input.Revision,
	})
	if err != nil {
		return store.Highlight{}, notFound(err, messageNoHighlight)
	}
	if applied {
		s.index(search.HighlightRecord(item, highlight))
	}
	return highlight, nil
}

func (s *Service) DeleteHighlight(ctx context.Context, userID, highlightID string) error {
	highlight, err := s.store.GetOwnedHighlight(ctx, highlightID, userID)
	if err != nil {
		return notFound(err, messageNoHighlight)
	}
	if err := s.store.DeleteHighlight(ctx, highlight.ID, highlight.ItemID); err != nil {
		return notFound(err, messageNoHighlight)
	}
	if s.search != nil {
		s.search.Delete(highlight.ID)
	}
	return nil
}

// Drawings

func (s *Service) SaveDrawing(ctx context.Context, userID, itemID string, input DrawingInput) (store.Drawing, error) {
	item, err := s.store.GetOwnedItem(ctx, itemID, userID)
	if err != nil {
		return store.Drawing{}, notFound(err, messageNoItem)
	}

	drawing, _, err := s.store.UpsertDrawing(ctx, store.Drawing{
		ID:       idOrNew(input.ID),
		ItemID:   item.ID,
		BlobRef:  input.BlobRef,
		Bounds:   input.Bounds,
		Revision: input.Revision,
	})
	if err != nil {
		return store.Drawing{}, notFound(err, messageNoDrawing)
	}
	return drawing, nil
}

func (s *Service) DeleteDrawing(ctx context.Context, userID, drawingID string) error {
	drawing, err := s.store.GetOwnedDrawing(ctx, drawingID, userID)
	if err != nil {
		return notFound(err, messageNoDrawing)
	}
	if err := s.store.DeleteDrawing(ctx, drawing.ID, drawing.ItemID); err != nil {
		return notFound(err, messageNoDrawing)
	}
	return nil
}

// Groups and recommendations

func (s *Service) ListGroups(ctx context.Context, userID string) ([]store.GroupWithItems, error) {
	groups, err := s.store.ListGroupsWithItems(ctx, userID, groupListLimit, 0)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []store.GroupWithItems{}
	}
	return groups, nil
}

func (s *Service) Recommendations(ctx context.Context, userID string) recommend.Result {
	if s.recommender == nil {
		return recommend.Result{Recommendations: []recommend.Recommendation{}, Message: recommend.MsgDisabled}
	}
	return s.recommender.Generate(ctx, userID)
}

// Search

func (s *Service) Search(ctx context.Context, userID, text string, limit int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{}, validationError("q", "required", "Missing q param")
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Engine: search.EngineSQL, Query: text}, nil
	}
	return s.search.Search(ctx, search.Query{UserID: userID, Text: text, Limit: limit}), nil
}

// Ink blobs

// UploadBlob stores a drawing's ink payload under the caller's namespace and
// returns the opaque reference a drawing row points at.
func (s *Service) UploadBlob(ctx context.Context, userID string, body io.Reader, contentType string) (BlobUpload, error) {
	if body == nil {
		return BlobUpload{}, validationError("body", "required", "blob body is empty")
	}
	data, err := io.ReadAll(io.LimitReader(body, s.blobMax+1))
	if err != nil {
		return BlobUpload{}, fmt.Errorf("read blob body: %w", err)
	}
	if len(data) == 0 {
		return BlobUpload{}, validationError("body", "required", "blob body is empty")
	}
	if int64(len(data)) > s.blobMax {
		return BlobUpload{}, domainError(http.StatusRequestEntityTooLarge, codePayloadTooLarge,
			"blob exceeds the size limit", map[string]any{"maxBytes": s.blobMax})
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = defaultInkMIME
	}

	ref := util.NewRef(blobRefPrefix)
	key, err := blob.Key(userID, ref)
	if err != nil {
		return BlobUpload{}, err
	}
	info, err := s.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return BlobUpload{}, err
	}
	return BlobUpload{BlobRef: ref, Size: info.Size}, nil
}

// OpenBlob returns a reader over a stored ink payload. The caller closes it.
func (s *Service) OpenBlob(ctx context.Context, userID, ref string) (blob.Info, io.ReadCloser, error) {
	key, err := blob.Key(userID, ref)
	if err != nil {
		return blob.Info{}, nil, domainError(http.StatusNotFound, codeNotFound, messageNoBlob, nil)
	}
	info, reader, err := s.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return blob.Info{}, nil, domainError(http.StatusNotFound, codeNotFound, messageNoBlob, nil)
		}
		return blob.Info{}, nil, err
	}
	return info, reader, nil
}

// Export

func (s *Service) ExportItem(ctx context.Context, userID, itemID, format string) (*export.Result, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, domainError(http.StatusBadRequest, codeValidation, "format must be 'html' or 'pdf'", map[string]any{
			"fields": []map[string]string{{"field": "format", "rule": "oneof", "message": "format must be 'html' or 'pdf'"}},
		})
	}
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, codeExportUnavailable, "Export is not configured", nil)
	}
	result, err := s.exporter.Export(ctx, export.Request{UserID: userID, ItemID: itemID, Format: parsed})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, codeExportUnavailable, "PDF export requires Chrome or Chromium", nil)
		}
		return nil, notFound(err, messageNoItem)
	}
	return result, nil
}

func (s *Service) index(records ...search.Record) {
	if s.search == nil {
		return
	}
	s.search.Index(records...)
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.recommender == nil {
		return
	}
	s.recommender.Invalidate(ctx, userID)
}

func idOrNew(id *string) string {
	if id != nil && strings.TrimSpace(*id) != "" {
		return strings.ToLower(strings.TrimSpace(*id))
	}
	return util.NewID()
}
