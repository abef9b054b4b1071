package export

import (
	"context"
	"fmt"
	"strings"

	"rabbithole/api/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetOwnedItem(ctx context.Context, itemID, userID string) (store.Item, error)
	GetOwnedGroup(ctx context.Context, groupID, userID string) (store.ItemGroup, error)
	ListNotes(ctx context.Context, itemID string) ([]store.Note, error)
	ListHighlights(ctx context.Context, itemID string) ([]store.Highlight, error)
	ListDrawings(ctx context.Context, itemID string) ([]store.Drawing, error)
}

// PDFRenderer turns rendered HTML into a PDF result.
type PDFRenderer func(ctx context.Context, html, title string) (*Result, error)

// Service provides item export functionality
type Service struct {
	store     DataStore
	renderPDF PDFRenderer
}

func NewService(store DataStore) *Service {
	return &Service{store: store, renderPDF: renderChromePDF}
}

// WithPDFRenderer swaps the headless Chrome renderer.
func (s *Service) WithPDFRenderer(render PDFRenderer) *Service {
	s.renderPDF = render
	return s
}

// Export generates an export in the requested format. A missing or foreign
// item surfaces the store's sql.ErrNoRows unchanged.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if req.Format != FormatHTML && req.Format != FormatPDF {
		return nil, ErrUnsupportedFormat
	}

	item, err := s.store.GetOwnedItem(ctx, req.ItemID, req.UserID)
	if err != nil {
		return nil, err
	}

	title := item.PageURL
	if item.Title != nil && strings.TrimSpace(*item.Title) != "" {
		title = strings.TrimSpace(*item.Title)
	}
	data := TemplateData{
		Title:      title,
		PageURL:    item.PageURL,
		SavedAt:    item.CreatedAt,
		Highlights: []TemplateHighlight{},
		Notes:      []TemplateNote{},
		Drawings:   []TemplateDrawing{},
	}

	if item.GroupID != nil {
		// group label is decoration; a vanished group is not an export failure
		if group, err := s.store.GetOwnedGroup(ctx, *item.GroupID, req.UserID); err == nil {
			data.GroupLabel = group.Label
		}
	}

	highlights, err := s.store.ListHighlights(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}
	for _, h := range highlights {
		if h.Text == nil || strings.TrimSpace(*h.Text) == "" {
			continue
		}
		data.Highlights = append(data.Highlights, TemplateHighlight{Text: *h.Text})
	}

	notes, err := s.store.ListNotes(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	for _, n := range notes {
		if n.Content == nil || strings.TrimSpace(*n.Content) == "" {
			continue
		}
		note := TemplateNote{Content: *n.Content}
		if n.Position != nil {
			note.Left, note.Top, note.Placed = n.Position.Left, n.Position.Top, true
		}
		data.Notes = append(data.Notes, note)
	}

	drawings, err := s.store.ListDrawings(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("list drawings: %w", err)
	}
	for _, d := range drawings {
		drawing := TemplateDrawing{BlobRef: d.BlobRef}
		if d.Bounds != nil {
			drawing.Width, drawing.Height = d.Bounds.Width, d.Bounds.Height
		}
		data.Drawings = append(data.Drawings, drawing)
	}

	html, err := RenderItemHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	if req.Format == FormatPDF {
		return s.renderPDF(ctx, html, title)
	}
	return &Result{
		Data:     []byte(html),
		Filename: sanitizeFilename(title) + ".html",
		MimeType: "text/html; charset=utf-8",
	}, nil
}
