package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"rabbithole/api/internal/annotate"
	"rabbithole/api/internal/model"
	"rabbithole/api/internal/util"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 200 * time.Millisecond
	inkContentType  = "application/json"
)

// Persister stores annotation sessions through the API. Entity ids are
// minted before the first attempt so a repeated write lands on the same
// row.
type Persister struct {
	client   *Client
	attempts int
	backoff  time.Duration
	log      zerolog.Logger
}

func NewPersister(c *Client, log zerolog.Logger) *Persister {
	return &Persister{
		client:   c,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		log:      log.With().Str("component", "persister").Logger(),
	}
}

// WithRetry overrides the attempt count and the initial backoff.
func (p *Persister) WithRetry(attempts int, backoff time.Duration) *Persister {
	if attempts < 1 {
		attempts = 1
	}
	p.attempts = attempts
	p.backoff = backoff
	return p
}

func (p *Persister) SaveItem(ctx context.Context, pageURL string, title *string) (string, error) {
	var item model.Item
	err := p.retry(ctx, "save item", func() error {
		var err error
		item, err = p.client.SaveItem(ctx, model.SaveItemInput{PageURL: pageURL, Title: title})
		return err
	})
	return item.ID, err
}

// LoadItem fetches every annotation for itemID. Drawings whose ink
// cannot be fetched are skipped.
func (p *Persister) LoadItem(ctx context.Context, itemID string) (annotate.Snapshot, error) {
	var bundle model.ItemBundle
	err := p.retry(ctx, "load item", func() error {
		var err error
		bundle, err = p.client.GetItem(ctx, itemID)
		return err
	})
	if err != nil {
		return annotate.Snapshot{}, err
	}

	snapshot := annotate.Snapshot{}
	for _, h := range bundle.Highlights {
		snapshot.Highlights = append(snapshot.Highlights, annotate.SavedHighlight{ID: h.ID, Rects: fromStoreRects(h.Rects)})
	}
	for _, n := range bundle.Notes {
		saved := annotate.SavedNote{ID: n.ID, Revision: n.Revision}
		if n.Content != nil {
			saved.Content = *n.Content
		}
		if n.Position != nil {
			pos := annotate.Position(*n.Position)
			saved.Position = &pos
		}
		snapshot.Notes = append(snapshot.Notes, saved)
	}
	for _, d := range bundle.Drawings {
		data, _, err := p.client.DownloadBlob(ctx, d.BlobRef)
		if err != nil {
			p.log.Warn().Err(err).Str("drawing_id", d.ID).Msg("ink unavailable")
			continue
		}
		var points []annotate.Point
		if err := json.Unmarshal(data, &points); err != nil {
			p.log.Warn().Err(err).Str("drawing_id", d.ID).Msg("ink unreadable")
			continue
		}
		snapshot.Drawings = append(snapshot.Drawings, annotate.SavedDrawing{ID: d.ID, Points: points})
	}
	return snapshot, nil
}

func (p *Persister) SaveHighlight(ctx context.Context, itemID string, draft annotate.HighlightDraft) (string, error) {
	id := draft.ID
	if !util.IsUUID(id) {
		id = util.NewID()
	}
	input := model.HighlightInput{
		ID:       &id,
		Text:     &draft.Text,
		Rects:    toStoreRects(draft.Rects),
		Revision: draft.Revision,
	}
	var saved model.Highlight
	err := p.retry(ctx, "save highlight", func() error {
		var err error
		saved, err = p.client.SaveHighlight(ctx, itemID, input)
		return err
	})
	return saved.ID, err
}

func (p *Persister) SaveNote(ctx context.Context, itemID string, draft annotate.NoteDraft) (string, error) {
	id := draft.ID
	if !util.IsUUID(id) {
		id = util.NewID()
	}
	position := model.Position(draft.Position)
	input := model.NoteInput{
		ID:       &id,
		Content:  &draft.Content,
		Position: &position,
		Rects:    toStoreRects(draft.Rects),
		Revision: draft.Revision,
	}
	var saved model.Note
	err := p.retry(ctx, "save note", func() error {
		var err error
		saved, err = p.client.SaveNote(ctx, itemID, input)
		return err
	})
	return saved.ID, err
}

// SaveDrawing uploads the stroke as an ink blob and records it.
func (p *Persister) SaveDrawing(ctx context.Context, itemID string, draft annotate.DrawingDraft) (string, error) {
	ink, err := json.Marshal(draft.Points)
	if err != nil {
		return "", err
	}
	var upload model.BlobUpload
	err = p.retry(ctx, "upload ink", func() error {
		var err error
		upload, err = p.client.UploadBlob(ctx, ink, inkContentType)
		return err
	})
	if err != nil {
		return "", err
	}

	id := util.NewID()
	bounds := model.Rect(draft.Bounds)
	input := model.DrawingInput{ID: &id, BlobRef: upload.BlobRef, Bounds: &bounds, Revision: draft.Revision}
	var saved model.Drawing
	err = p.retry(ctx, "save drawing", func() error {
		var err error
		saved, err = p.client.SaveDrawing(ctx, itemID, input)
		return err
	})
	return saved.ID, err
}

func (p *Persister) retry(ctx context.Context, op string, fn func() error) error {
	wait := p.backoff
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = fn(); err == nil || !Retryable(err) || attempt == p.attempts {
			return err
		}
		p.log.Debug().Err(err).Str("op", op).Int("attempt", attempt).Msg("retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait *= 2
	}
	return err
}

func toStoreRects(rects []annotate.Rect) []model.Rect {
	if rects == nil {
		return nil
	}
	out := make([]model.Rect, len(rects))
	for i, r := range rects {
		out[i] = model.Rect(r)
	}
	return out
}

func fromStoreRects(rects []model.Rect) []annotate.Rect {
	out := make([]annotate.Rect, len(rects))
	for i, r := range rects {
		out[i] = annotate.Rect(r)
	}
	return out
}
