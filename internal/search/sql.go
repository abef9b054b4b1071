package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"rabbithole/api/internal/store"
	"rabbithole/api/internal/util"
)

// SQLSearch implements Searcher with case-insensitive LIKE matching over the
// relational store. It is the fallback when Meilisearch is absent or down.
type SQLSearch struct {
	db      *sql.DB
	dialect store.Dialect
}

func NewSQLSearch(db *sql.DB, dialect store.Dialect) *SQLSearch {
	return &SQLSearch{db: db, dialect: dialect}
}

// Healthy always returns true; without the database the whole app is down.
func (p *SQLSearch) Healthy() bool {
	return true
}

func (p *SQLSearch) Search(q Query) ([]Result, error) {
	return p.SearchContext(context.Background(), q)
}

// SearchContext runs one UNION ALL query across items, notes and highlights
// owned by q.UserID, newest first.
func (p *SQLSearch) SearchContext(ctx context.Context, q Query) ([]Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(q.Text))) + "%"

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultItem {
		subQueries = append(subQueries, `
			SELECT 'item' AS type, i.id AS id, i.id AS item_id, COALESCE(i.title, '') AS title,
				i.page_url AS snippet, i.page_url AS page_url, i.updated_at AS updated_at
			FROM items i
			WHERE i.user_id = $1
				AND (LOWER(COALESCE(i.title, '')) LIKE $2 ESCAPE '\' OR LOWER(i.page_url) LIKE $2 ESCAPE '\')`)
	}
	if q.FilterType == "" || q.FilterType == ResultNote {
		subQueries = append(subQueries, `
			SELECT 'note' AS type, n.id AS id, n.item_id AS item_id, COALESCE(i.title, '') AS title,
				COALESCE(n.content, '') AS snippet, i.page_url AS page_url, n.updated_at AS updated_at
			FROM notes n
			JOIN items i ON i.id = n.item_id
			WHERE i.user_id = $1
				AND LOWER(COALESCE(n.content, '')) LIKE $2 ESCAPE '\'`)
	}
	if q.FilterType == "" || q.FilterType == ResultHighlight {
		subQueries = append(subQueries, `
			SELECT 'highlight' AS type, h.id AS id, h.item_id AS item_id, COALESCE(i.title, '') AS title,
				COALESCE(h.text, '') AS snippet, i.page_url AS page_url, h.updated_at AS updated_at
			FROM highlights h
			JOIN items i ON i.id = h.item_id
			WHERE i.user_id = $1
				AND LOWER(COALESCE(h.text, '')) LIKE $2 ESCAPE '\'`)
	}
	if len(subQueries) == 0 {
		return nil, nil
	}

	query := strings.Join(subQueries, "\nUNION ALL\n") + "\nORDER BY updated_at DESC, id\nLIMIT $3"
	rows, err := p.db.QueryContext(ctx, p.dialect.Rebind(query), q.UserID, pattern, clampLimit(q.Limit))
	if err != nil {
		return nil, fmt.Errorf("sql search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		var updatedAt any
		if err := rows.Scan(&typ, &r.ID, &r.ItemID, &r.Title, &r.Snippet, &r.PageURL, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		r.Type = ResultType(typ)
		r.Snippet = util.Truncate(strings.TrimSpace(r.Snippet), snippetRunes)
		results = append(results, r)
	}
	return results, rows.Err()
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

const snippetRunes = 160

