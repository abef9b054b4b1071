package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rabbithole/api/internal/util"
)

// SQLStore persists items, annotations and groups in Postgres or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

// WithClock replaces the timestamp source. Tests use it to order rows.
func (s *SQLStore) WithClock(now func() time.Time) *SQLStore {
	s.now = now
	return s
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) q(query string) string {
	return s.dialect.Rebind(query)
}

func (s *SQLStore) timestamp() time.Time {
	return s.now().UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const itemColumns = `id, user_id, page_url, title, group_id, created_at, updated_at`

func scanItem(row rowScanner) (Item, error) {
	var item Item
	var title, groupID sql.NullString
	if err := row.Scan(&item.ID, &item.UserID, &item.PageURL, &title, &groupID, timeOf(&item.CreatedAt), timeOf(&item.UpdatedAt)); err != nil {
		return Item{}, err
	}
	item.Title = nullableString(title)
	item.GroupID = nullableString(groupID)
	return item, nil
}

// FindItemByURL returns sql.ErrNoRows when the user has not saved the page.
func (s *SQLStore) FindItemByURL(ctx context.Context, userID, pageURL string) (Item, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+itemColumns+` FROM items WHERE user_id=$1 AND page_url=$2`), userID, pageURL)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, err
		}
		return Item{}, fmt.Errorf("find item by url: %w", err)
	}
	return item, nil
}

// UpsertItem inserts or refreshes the item keyed by (user_id, page_url).
// An existing title survives a nil title and an existing group is never replaced.
func (s *SQLStore) UpsertItem(ctx context.Context, item Item) (Item, error) {
	if item.ID == "" {
		item.ID = util.NewID()
	}
	now := s.timestamp()
	row := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO items (id, user_id, page_url, title, group_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id, page_url) DO UPDATE SET
			title = COALESCE(EXCLUDED.title, items.title),
			group_id = COALESCE(items.group_id, EXCLUDED.group_id),
			updated_at = EXCLUDED.updated_at
		RETURNING `+itemColumns),
		item.ID, item.UserID, item.PageURL, nullString(item.Title), nullString(item.GroupID), now,
	)
	saved, err := scanItem(row)
	if err != nil {
		return Item{}, fmt.Errorf("upsert item: %w", err)
	}
	return saved, nil
}

// GetOwnedItem loads an item filtered by both id and owner in one lookup.
func (s *SQLStore) GetOwnedItem(ctx context.Context, itemID, userID string) (Item, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+itemColumns+` FROM items WHERE id=$1 AND user_id=$2`), itemID, userID)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, err
		}
		return Item{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func (s *SQLStore) UpdateItemTitle(ctx context.Context, itemID, userID string, title *string) (Item, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		UPDATE items SET title=$3, updated_at=$4
		WHERE id=$1 AND user_id=$2
		RETURNING `+itemColumns),
		itemID, userID, nullString(title), s.timestamp(),
	)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, err
		}
		return Item{}, fmt.Errorf("update item title: %w", err)
	}
	return item, nil
}

func (s *SQLStore) DeleteItem(ctx context.Context, itemID, userID string) error {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM items WHERE id=$1 AND user_id=$2`), itemID, userID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return requireAffected(result)
}

func (s *SQLStore) ListRecentItems(ctx context.Context, userID string, limit int) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+itemColumns+` FROM items
		WHERE user_id=$1
		ORDER BY updated_at DESC, id
		LIMIT $2`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Notes

const noteColumns = `id, item_id, content, position, rects, revision, created_at, updated_at`

func scanNote(row rowScanner) (Note, error) {
	var note Note
	var content, position, rects sql.NullString
	if err := row.Scan(&note.ID, &note.ItemID, &content, &position, &rects, &note.Revision, timeOf(&note.CreatedAt), timeOf(&note.UpdatedAt)); err != nil {
		return Note{}, err
	}
	note.Content = nullableString(content)
	if err := decodeJSON(position, &note.Position); err != nil {
		return Note{}, fmt.Errorf("decode note position: %w", err)
	}
	if err := decodeJSON(rects, &note.Rects); err != nil {
		return Note{}, fmt.Errorf("decode note rects: %w", err)
	}
	return note, nil
}

func (s *SQLStore) ListNotes(ctx context.Context, itemID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+noteColumns+` FROM notes WHERE item_id=$1 ORDER BY created_at, id`), itemID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	notes := make([]Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// ListRecentNotes returns the newest notes across the given items.
func (s *SQLStore) ListRecentNotes(ctx context.Context, itemIDs []string, limit int) ([]Note, error) {
	if len(itemIDs) == 0 {
		return []Note{}, nil
	}
	args := make([]any, 0, len(itemIDs)+1)
	for _, id := range itemIDs {
		args = append(args, id)
	}
	args = append(args, limit)
	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE item_id IN (` + placeholders(1, len(itemIDs)) + `)
		ORDER BY updated_at DESC, id
		LIMIT $` + strconv.Itoa(len(itemIDs)+1)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list recent notes: %w", err)
	}
	defer rows.Close()

	notes := make([]Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// UpsertNote writes a note keyed by id. applied is false when the stored
// revision is newer and the write was ignored; the stored row is returned.
func (s *SQLStore) UpsertNote(ctx context.Context, note Note) (saved Note, applied bool, err error) {
	if note.ID == "" {
		note.ID = util.NewID()
	}
	position, err := encodeJSON(note.Position, note.Position == nil)
	if err != nil {
		return Note{}, false, fmt.Errorf("encode note position: %w", err)
	}
	rects, err := encodeJSON(note.Rects, note.Rects == nil)
	if err != nil {
		return Note{}, false, fmt.Errorf("encode note rects: %w", err)
	}

	row := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO notes (id, item_id, content, position, rects, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			position = EXCLUDED.position,
			rects = EXCLUDED.rects,
			revision = CASE WHEN EXCLUDED.revision = 0 THEN notes.revision ELSE EXCLUDED.revision END,
			updated_at = EXCLUDED.updated_at
		WHERE notes.item_id = EXCLUDED.item_id
			AND (EXCLUDED.revision = 0 OR notes.revision <= EXCLUDED.revision)
		RETURNING `+noteColumns),
		note.ID, note.ItemID, nullString(note.Content), position, rects, note.Revision, s.timestamp(),
	)
	saved, err = scanNote(row)
	if err == nil {
		return saved, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Note{}, false, fmt.Errorf("upsert note: %w", err)
	}

	current := s.db.QueryRowContext(ctx, s.q(`SELECT `+noteColumns+` FROM notes WHERE id=$1 AND item_id=$2`), note.ID, note.ItemID)
	saved, err = scanNote(current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Note{}, false, err
		}
		return Note{}, false, fmt.Errorf("load current note: %w", err)
	}
	return saved, false, nil
}

// GetOwnedNote resolves a note through its parent item's owner.
func (s *SQLStore) GetOwnedNote(ctx context.Context, noteID, userID string) (Note, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT n.id, n.item_id, n.content, n.position, n.rects, n.revision, n.created_at, n.updated_at
		FROM notes n
		JOIN items i ON i.id = n.item_id
		WHERE n.id=$1 AND i.user_id=$2`), noteID, userID)
	note, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Note{}, err
		}
		return Note{}, fmt.Errorf("get note: %w", err)
	}
	return note, nil
}

func (s *SQLStore) DeleteNote(ctx context.Context, noteID, itemID string) error {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM notes WHERE id=$1 AND item_id=$2`), noteID, itemID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return requireAffected(result)
}

// Highlights

const highlightColumns = `id, item_id, text, rects, revision, created_at, updated_at`

func scanHighlight(row rowScanner) (Highlight, error) {
	var highlight Highlight
	var text, rects sql.NullString
	if err := row.Scan(&highlight.ID, &highlight.ItemID, &text, &rects, &highlight.Revision, timeOf(&highlight.CreatedAt), timeOf(&highlight.UpdatedAt)); err != nil {
		return Highlight{}, err
	}
	highlight.Text = nullableString(text)
	if err := decodeJSON(rects, &highlight.Rects); err != nil {
		return Highlight{}, fmt.Errorf("decode highlight rects: %w", err)
	}
	if highlight.Rects == nil {
		highlight.Rects = []Rect{}
	}
	return highlight, nil
}

func (s *SQLStore) ListHighlights(ctx context.Context, itemID string) ([]Highlight, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+highlightColumns+` FROM highlights WHERE item_id=$1 ORDER BY created_at, id`), itemID)
	if err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}
	defer rows.Close()

	highlights := make([]Highlight, 0)
	for rows.Next() {
		highlight, err := scanHighlight(rows)
		if err != nil {
			return nil, fmt.Errorf("scan highlight: %w", err)
		}
		highlights = append(highlights, highlight)
	}
	return highlights, rows.Err()
}

func (s *SQLStore) UpsertHighlight(ctx context.Context, highlight Highlight) (saved Highlight, applied bool, err error) {
	if highlight.ID == "" {
		highlight.ID = util.NewID()
	}
	if highlight.Rects == nil {
		highlight.Rects = []Rect{}
	}
	rects, err := encodeJSON(highlight.Rects, false)
	if err != nil {
		return Highlight{}, false, fmt.Errorf("encode highlight rects: %w", err)
	}

	row := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO highlights (id, item_id, text, rects, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			rects = EXCLUDED.rects,
			revision = CASE WHEN EXCLUDED.revision = 0 THEN highlights.revision ELSE EXCLUDED.revision END,
			updated_at = EXCLUDED.updated_at
		WHERE highlights.item_id = EXCLUDED.item_id
			AND (EXCLUDED.revision = 0 OR highlights.revision <= EXCLUDED.revision)
		RETURNING `+highlightColumns),
		highlight.ID, highlight.ItemID, nullString(highlight.Text), rects, highlight.Revision, s.timestamp(),
	)
	saved, err = scanHighlight(row)
	if err == nil {
		return saved, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Highlight{}, false, fmt.Errorf("upsert highlight: %w", err)
	}

	current := s.db.QueryRowContext(ctx, s.q(`SELECT `+highlightColumns+` FROM highlights WHERE id=$1 AND item_id=$2`), highlight.ID, highlight.ItemID)
	saved, err = scanHighlight(current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Highlight{}, false, err
		}
		return Highlight{}, false, fmt.Errorf("load current highlight: %w", err)
	}
	return saved, false, nil
}

func (s *SQLStore) GetOwnedHighlight(ctx context.Context, highlightID, userID string) (Highlight, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT h.id, h.item_id, h.text, h.rects, h.revision, h.created_at, h.updated_at
		FROM highlights h
		JOIN items i ON i.id = h.item_id
		WHERE h.id=$1 AND i.user_id=$2`), highlightID, userID)
	highlight, err := scanHighlight(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Highlight{}, err
		}
		return Highlight{}, fmt.Errorf("get highlight: %w", err)
	}
	return highlight, nil
}

func (s *SQLStore) DeleteHighlight(ctx context.Context, highlightID, itemID string) error {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM highlights WHERE id=$1 AND item_id=$2`), highlightID, itemID)
	if err != nil {
		return fmt.Errorf("delete highlight: %w", err)
	}
	return requireAffected(result)
}

// Drawings

const drawingColumns = `id, item_id, blob_ref, bounds, revision, created_at, updated_at`

func scanDrawing(row rowScanner) (Drawing, error) {
	var drawing Drawing
	var bounds sql.NullString
	if err := row.Scan(&drawing.ID, &drawing.ItemID, &drawing.BlobRef, &bounds, &drawing.Revision, timeOf(&drawing.CreatedAt), timeOf(&drawing.UpdatedAt)); err != nil {
		return Drawing{}, err
	}
	if err := decodeJSON(bounds, &drawing.Bounds); err != nil {
		return Drawing{}, fmt.Errorf("decode drawing bounds: %w", err)
	}
	return drawing, nil
}

func (s *SQLStore) ListDrawings(ctx context.Context, itemID string) ([]Drawing, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+drawingColumns+` FROM drawings WHERE item_id=$1 ORDER BY created_at, id`), itemID)
	if err != nil {
		return nil, fmt.Errorf("list drawings: %w", err)
	}
	defer rows.Close()

	drawings := make([]Drawing, 0)
	for rows.Next() {
		drawing, err := scanDrawing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan drawing: %w", err)
		}
		drawings = append(drawings, drawing)
	}
	return drawings, rows.Err()
}

func (s *SQLStore) UpsertDrawing(ctx context.Context, drawing Drawing) (saved Drawing, applied bool, err error) {
	if drawing.ID == "" {
		drawing.ID = util.NewID()
	}
	bounds, err := encodeJSON(drawing.Bounds, drawing.Bounds == nil)
	if err != nil {
		return Drawing{}, false, fmt.Errorf("encode drawing bounds: %w", err)
	}

	row := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO drawings (id, item_id, blob_ref, bounds, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			blob_ref = EXCLUDED.blob_ref,
			bounds = EXCLUDED.bounds,
			revision = CASE WHEN EXCLUDED.revision = 0 THEN drawings.revision ELSE EXCLUDED.revision END,
			updated_at = EXCLUDED.updated_at
		WHERE drawings.item_id = EXCLUDED.item_id
			AND (EXCLUDED.revision = 0 OR drawings.revision <= EXCLUDED.revision)
		RETURNING `+drawingColumns),
		drawing.ID, drawing.ItemID, drawing.BlobRef, bounds, drawing.Revision, s.timestamp(),
	)
	saved, err = scanDrawing(row)
	if err == nil {
		return saved, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Drawing{}, false, fmt.Errorf("upsert drawing: %w", err)
	}

	current := s.db.QueryRowContext(ctx, s.q(`SELECT `+drawingColumns+` FROM drawings WHERE id=$1 AND item_id=$2`), drawing.ID, drawing.ItemID)
	saved, err = scanDrawing(current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Drawing{}, false, err
		}
		return Drawing{}, false, fmt.Errorf("load current drawing: %w", err)
	}
	return saved, false, nil
}

func (s *SQLStore) GetOwnedDrawing(ctx context.Context, drawingID, userID string) (Drawing, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT d.id, d.item_id, d.blob_ref, d.bounds, d.revision, d.created_at, d.updated_at
		FROM drawings d
		JOIN items i ON i.id = d.item_id
		WHERE d.id=$1 AND i.user_id=$2`), drawingID, userID)
	drawing, err := scanDrawing(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Drawing{}, err
		}
		return Drawing{}, fmt.Errorf("get drawing: %w", err)
	}
	return drawing, nil
}

func (s *SQLStore) DeleteDrawing(ctx context.Context, drawingID, itemID string) error {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM drawings WHERE id=$1 AND item_id=$2`), drawingID, itemID)
	if err != nil {
		return fmt.Errorf("delete drawing: %w", err)
	}
	return requireAffected(result)
}

// Groups

const groupColumns = `id, user_id, label, summary, created_at, updated_at`

func scanGroup(row rowScanner) (ItemGroup, error) {
	var group ItemGroup
	var summary sql.NullString
	if err := row.Scan(&group.ID, &group.UserID, &group.Label, &summary, timeOf(&group.CreatedAt), timeOf(&group.UpdatedAt)); err != nil {
		return ItemGroup{}, err
	}
	group.Summary = nullableString(summary)
	return group, nil
}

// UpsertGroup creates the group or refreshes the one already carrying label.
func (s *SQLStore) UpsertGroup(ctx context.Context, userID, label string, summary *string) (ItemGroup, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO item_groups (id, user_id, label, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id, label) DO UPDATE SET
			summary = COALESCE(EXCLUDED.summary, item_groups.summary),
			updated_at = EXCLUDED.updated_at
		RETURNING `+groupColumns),
		util.NewID(), userID, label, nullString(summary), s.timestamp(),
	)
	group, err := scanGroup(row)
	if err != nil {
		return ItemGroup{}, fmt.Errorf("upsert group: %w", err)
	}
	return group, nil
}

func (s *SQLStore) TouchGroup(ctx context.Context, groupID, userID string) error {
	result, err := s.db.ExecContext(ctx, s.q(`UPDATE item_groups SET updated_at=$3 WHERE id=$1 AND user_id=$2`), groupID, userID, s.timestamp())
	if err != nil {
		return fmt.Errorf("touch group: %w", err)
	}
	return requireAffected(result)
}

func (s *SQLStore) GetOwnedGroup(ctx context.Context, groupID, userID string) (ItemGroup, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+groupColumns+` FROM item_groups WHERE id=$1 AND user_id=$2`), groupID, userID)
	group, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ItemGroup{}, err
		}
		return ItemGroup{}, fmt.Errorf("get group: %w", err)
	}
	return group, nil
}

// ListGroups returns the user's most recently updated groups.
func (s *SQLStore) ListGroups(ctx context.Context, userID string, limit int) ([]ItemGroup, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+groupColumns+` FROM item_groups
		WHERE user_id=$1
		ORDER BY updated_at DESC, id
		LIMIT $2`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	groups := make([]ItemGroup, 0)
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// ListGroupsWithItems returns the user's most recently updated groups, each
// carrying up to itemsPerGroup of its newest items (all when itemsPerGroup <= 0).
func (s *SQLStore) ListGroupsWithItems(ctx context.Context, userID string, groupLimit, itemsPerGroup int) ([]GroupWithItems, error) {
	plain, err := s.ListGroups(ctx, userID, groupLimit)
	if err != nil {
		return nil, err
	}
	groups := make([]GroupWithItems, 0, len(plain))
	index := map[string]int{}
	for _, group := range plain {
		index[group.ID] = len(groups)
		groups = append(groups, GroupWithItems{ItemGroup: group, Items: []GroupItem{}})
	}
	if len(groups) == 0 {
		return groups, nil
	}

	args := make([]any, 0, len(groups)+1)
	args = append(args, userID)
	for _, group := range groups {
		args = append(args, group.ID)
	}
	itemRows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, title, page_url, group_id, created_at, updated_at FROM items
		WHERE user_id=$1 AND group_id IN (`+placeholders(2, len(groups))+`)
		ORDER BY updated_at DESC, id`), args...)
	if err != nil {
		return nil, fmt.Errorf("list group items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item GroupItem
		var title sql.NullString
		var groupID string
		if err := itemRows.Scan(&item.ID, &title, &item.PageURL, &groupID, timeOf(&item.CreatedAt), timeOf(&item.UpdatedAt)); err != nil {
			return nil, fmt.Errorf("scan group item: %w", err)
		}
		item.Title = nullableString(title)
		pos, ok := index[groupID]
		if !ok {
			continue
		}
		if itemsPerGroup > 0 && len(groups[pos].Items) >= itemsPerGroup {
			continue
		}
		groups[pos].Items = append(groups[pos].Items, item)
	}
	return groups, itemRows.Err()
}

// helpers

func placeholders(start, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ", ")
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// timeScanner accepts both native timestamps and the text form SQLite hands
// back when a column's declared type is unavailable.
type timeScanner struct {
	dst *time.Time
}

func timeOf(dst *time.Time) sql.Scanner {
	return timeScanner{dst: dst}
}

var textTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (s timeScanner) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*s.dst = v
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	case nil:
		*s.dst = time.Time{}
		return nil
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (s timeScanner) parse(value string) error {
	for _, layout := range textTimeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			*s.dst = parsed
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q", value)
}

func nullString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func encodeJSON(value any, isNil bool) (any, error) {
	if isNil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func decodeJSON(value sql.NullString, target any) error {
	if !value.Valid || strings.TrimSpace(value.String) == "" || value.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(value.String), target)
}
